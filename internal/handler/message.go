package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"roomsync/internal/domain"
	"roomsync/internal/repository"
	"roomsync/internal/service"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

const idempotencyHeader = "Idempotency-Key"

type MessageHandler struct {
	messageService service.MessageService
	dispatcher     *service.Dispatcher
	audit          service.AuditService
	idempotency    repository.IdempotencyRepository
	idempotencyTTL time.Duration
	log            logger.Logger
}

func NewMessageHandler(
	messageService service.MessageService,
	dispatcher *service.Dispatcher,
	audit service.AuditService,
	idempotency repository.IdempotencyRepository,
	idempotencyTTL time.Duration,
	log logger.Logger,
) *MessageHandler {
	if idempotencyTTL <= 0 {
		idempotencyTTL = 10 * time.Minute
	}
	return &MessageHandler{
		messageService: messageService,
		dispatcher:     dispatcher,
		audit:          audit,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		log:            log,
	}
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

// List - GET /messages?room&limit&before; с after работает как poll-хелпер
func (h *MessageHandler) List(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Room parameter is required"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	after, err := parseTimeQuery(c, "after")
	if err != nil {
		_ = c.Error(err)
		return
	}
	before, err := parseTimeQuery(c, "before")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var messages []*domain.Message
	if after != nil {
		messages, err = h.messageService.ListSince(c.Request.Context(), room, *after, limit)
	} else {
		messages, err = h.messageService.List(c.Request.Context(), room, limit, before)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

type CreateMessageRequest struct {
	Text     string `json:"text"`
	Username string `json:"username" binding:"notblank"`
	Room     string `json:"room" binding:"notblank"`
}

func (h *MessageHandler) Create(c *gin.Context) {
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	idemKey := ""
	if key := c.GetHeader(idempotencyHeader); key != "" {
		idemKey = "messages:" + key
		fresh, err := h.idempotency.Claim(c.Request.Context(), idemKey, h.idempotencyTTL)
		if err != nil {
			_ = c.Error(err)
			return
		}
		if !fresh {
			_ = c.Error(apperrors.New(apperrors.ErrConflict, "duplicate request"))
			return
		}
	}

	message, err := h.messageService.Append(c.Request.Context(), req.Room, actor(c, req.Username), req.Text)
	if err != nil {
		if idemKey != "" {
			h.releaseKey(c.Request.Context(), idemKey)
		}
		_ = c.Error(err)
		return
	}
	published(h.log, domain.EventMessage, h.dispatcher.MessageCreated(c.Request.Context(), message))

	c.JSON(http.StatusCreated, message)
}

// releaseKey освобождает ключ после неудачного Append; запрос мог уже истечь по таймауту
func (h *MessageHandler) releaseKey(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := h.idempotency.Release(ctx, key); err != nil {
		h.log.Warn("Failed to release idempotency key", "key", key, "error", err)
	}
}

// Purge - DELETE /messages?id, физическое удаление
func (h *MessageHandler) Purge(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Message ID is required"))
		return
	}

	message, err := h.messageService.Purge(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	who, role := actor(c, c.Query("username")), domain.ActorRoleModerator
	if who == "" {
		who, role = domain.SystemUsername, domain.ActorRoleSystem
	}
	_ = h.audit.LogEvent(c.Request.Context(), who, role, message.Room, domain.AuditMessagePurged, message.ID, map[string]any{"author": message.Username})
	published(h.log, domain.EventMessageDeleted, h.dispatcher.MessagePurged(c.Request.Context(), message))

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type EditMessageRequest struct {
	Text     string `json:"text"`
	Username string `json:"username" binding:"notblank"`
}

func (h *MessageHandler) Edit(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	message, err := h.messageService.Edit(c.Request.Context(), c.Param("id"), actor(c, req.Username), req.Text)
	if err != nil {
		_ = c.Error(err)
		return
	}
	published(h.log, domain.EventMessageUpdated, h.dispatcher.MessageUpdated(c.Request.Context(), message))

	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// SoftDelete - DELETE /messages/:id?username
func (h *MessageHandler) SoftDelete(c *gin.Context) {
	username := actor(c, c.Query("username"))
	if username == "" {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Username is required"))
		return
	}

	message, err := h.messageService.SoftDelete(c.Request.Context(), c.Param("id"), username)
	if err != nil {
		_ = c.Error(err)
		return
	}
	published(h.log, domain.EventMessageDeleted, h.dispatcher.MessageDeleted(c.Request.Context(), message))

	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

type ReactionRequest struct {
	MessageID string `json:"messageId" binding:"notblank"`
	Emoji     string `json:"emoji" binding:"notblank"`
	Username  string `json:"username" binding:"notblank"`
	Room      string `json:"room" binding:"notblank"`
}

func (h *MessageHandler) React(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "MessageId, emoji, username, and room are required"))
		return
	}

	username := actor(c, req.Username)
	message, added, err := h.messageService.ToggleReaction(c.Request.Context(), req.MessageID, req.Room, req.Emoji, username)
	if err != nil {
		_ = c.Error(err)
		return
	}
	published(h.log, domain.EventMessageReaction, h.dispatcher.ReactionToggled(c.Request.Context(), message, req.Emoji, username, added))

	c.JSON(http.StatusOK, message)
}
