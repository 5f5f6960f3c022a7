package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"roomsync/internal/domain"
	"roomsync/internal/service"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

type TypingHandler struct {
	typingService service.TypingService
	dispatcher    *service.Dispatcher
	log           logger.Logger
}

func NewTypingHandler(typingService service.TypingService, dispatcher *service.Dispatcher, log logger.Logger) *TypingHandler {
	return &TypingHandler{
		typingService: typingService,
		dispatcher:    dispatcher,
		log:           log,
	}
}

// List - GET /typing?room[&username]; username исключается из ответа
func (h *TypingHandler) List(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Room parameter is required"))
		return
	}

	users, err := h.typingService.ListTyping(c.Request.Context(), room, c.Query("username"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, users)
}

type TypingRequest struct {
	Username string `json:"username" binding:"notblank"`
	Room     string `json:"room" binding:"notblank"`
	IsTyping *bool  `json:"isTyping" binding:"required"`
}

func (h *TypingHandler) Set(c *gin.Context) {
	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Username, room, and isTyping are required"))
		return
	}

	username := actor(c, req.Username)
	if err := h.typingService.SetTyping(c.Request.Context(), req.Room, username, *req.IsTyping); err != nil {
		_ = c.Error(err)
		return
	}
	published(h.log, domain.EventUserTyping, h.dispatcher.TypingChanged(c.Request.Context(), req.Room, username, *req.IsTyping))

	c.JSON(http.StatusOK, gin.H{"success": true})
}
