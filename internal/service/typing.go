package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"roomsync/internal/domain"
	"roomsync/internal/repository"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

type TypingService interface {
	SetTyping(ctx context.Context, room, username string, isTyping bool) error
	// ListTyping - кто печатает в пределах TTL, без exclude
	ListTyping(ctx context.Context, room, exclude string) ([]string, error)
}

type typingService struct {
	typingRepo repository.TypingRepository
	ttl        time.Duration
	log        logger.Logger
	now        func() time.Time
}

func NewTypingService(typingRepo repository.TypingRepository, ttl time.Duration, log logger.Logger) TypingService {
	return &typingService{
		typingRepo: typingRepo,
		ttl:        ttl,
		log:        log,
		now:        defaultClock,
	}
}

func (s *typingService) SetTyping(ctx context.Context, room, username string, isTyping bool) error {
	if room == "" || username == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "Username and room are required")
	}
	if !isTyping {
		return s.typingRepo.Delete(ctx, room, username)
	}
	return s.typingRepo.Set(ctx, &domain.TypingStatus{
		Username:  username,
		Room:      room,
		IsTyping:  true,
		Timestamp: s.now(),
	})
}

func (s *typingService) ListTyping(ctx context.Context, room, exclude string) ([]string, error) {
	if room == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "Room is required")
	}
	statuses, err := s.typingRepo.List(ctx, room)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Timestamp.Before(statuses[j].Timestamp) })
	users := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if !st.IsTyping || now.Sub(st.Timestamp) >= s.ttl {
			continue
		}
		if exclude != "" && strings.EqualFold(st.Username, exclude) {
			continue
		}
		users = append(users, st.Username)
	}
	return users, nil
}
