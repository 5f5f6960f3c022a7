package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"roomsync/internal/service"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

// UserHandler - присутствие для poll-клиентов
type UserHandler struct {
	presenceService service.PresenceService
	dispatcher      *service.Dispatcher
	log             logger.Logger
}

func NewUserHandler(presenceService service.PresenceService, dispatcher *service.Dispatcher, log logger.Logger) *UserHandler {
	return &UserHandler{
		presenceService: presenceService,
		dispatcher:      dispatcher,
		log:             log,
	}
}

func (h *UserHandler) List(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Room parameter is required"))
		return
	}

	users, err := h.presenceService.List(c.Request.Context(), room)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, users)
}

type TouchRequest struct {
	Username string `json:"username" binding:"notblank"`
	Room     string `json:"room" binding:"notblank"`
}

// Touch - вход в комнату или heartbeat
func (h *UserHandler) Touch(c *gin.Context) {
	var req TouchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Username and room are required"))
		return
	}

	user, events, err := h.presenceService.Touch(c.Request.Context(), req.Room, actor(c, req.Username))
	if err != nil {
		_ = c.Error(err)
		return
	}
	_ = h.dispatcher.Dispatch(c.Request.Context(), events)

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) Leave(c *gin.Context) {
	username := actor(c, c.Query("username"))
	room := c.Query("room")
	if username == "" || room == "" {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Username and room are required"))
		return
	}

	events, err := h.presenceService.Leave(c.Request.Context(), room, username, "")
	if err != nil {
		_ = c.Error(err)
		return
	}
	_ = h.dispatcher.Dispatch(c.Request.Context(), events)

	c.JSON(http.StatusOK, gin.H{"success": true})
}
