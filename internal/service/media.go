package service

import (
	"context"
	"time"

	"github.com/livekit/protocol/auth"
	"roomsync/internal/config"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

// Token - сигнальный токен видеопровайдера для канала звонка
type Token struct {
	Token       string    `json:"token"`
	URL         string    `json:"url"`
	ChannelName string    `json:"channelName"`
	UID         string    `json:"uid"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type MediaService interface {
	IssueToken(ctx context.Context, channelName, username, uid string) (*Token, error)
}

type mediaService struct {
	cfg config.LiveKitConfig
	log logger.Logger
	now func() time.Time
}

func NewMediaService(cfg config.LiveKitConfig, log logger.Logger) MediaService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &mediaService{
		cfg: cfg,
		log: log,
		now: defaultClock,
	}
}

func (s *mediaService) IssueToken(ctx context.Context, channelName, username, uid string) (*Token, error) {
	if channelName == "" || username == "" || uid == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Channel name, username, and uid are required")
	}
	if s.cfg.APIKey == "" || s.cfg.APISecret == "" {
		s.log.Error("LiveKit credentials are missing")
		return nil, apperrors.New(apperrors.ErrInternal, "video provider credentials are not configured")
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	type result struct {
		jwt string
		err error
	}
	done := make(chan result, 1)
	go func() {
		canPublish := true
		canSubscribe := true
		at := auth.NewAccessToken(s.cfg.APIKey, s.cfg.APISecret)
		at.AddGrant(&auth.VideoGrant{
			RoomJoin:     true,
			Room:         channelName,
			CanPublish:   &canPublish,
			CanSubscribe: &canSubscribe,
		}).
			SetIdentity(uid).
			SetName(username).
			SetValidFor(s.cfg.TokenTTL)

		jwt, err := at.ToJWT()
		done <- result{jwt: jwt, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, apperrors.New(apperrors.ErrInternal, "token issuance timed out")
	case r := <-done:
		if r.err != nil {
			s.log.Error("Failed to generate LiveKit token", "error", r.err)
			return nil, apperrors.New(apperrors.ErrInternal, "failed to generate token")
		}
		return &Token{
			Token:       r.jwt,
			URL:         s.cfg.URL,
			ChannelName: channelName,
			UID:         uid,
			ExpiresAt:   s.now().Add(s.cfg.TokenTTL),
		}, nil
	}
}
