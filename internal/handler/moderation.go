package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"roomsync/internal/domain"
	"roomsync/internal/service"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

type ModerationHandler struct {
	moderationService service.ModerationService
	dispatcher        *service.Dispatcher
	log               logger.Logger
}

func NewModerationHandler(moderationService service.ModerationService, dispatcher *service.Dispatcher, log logger.Logger) *ModerationHandler {
	return &ModerationHandler{
		moderationService: moderationService,
		dispatcher:        dispatcher,
		log:               log,
	}
}

type ModerationRequest struct {
	Action         string `json:"action"`
	Room           string `json:"room"`
	Username       string `json:"username"`
	TargetUsername string `json:"targetUsername"`
	Moderator      string `json:"moderator"`
	Duration       int    `json:"duration"`
}

func (h *ModerationHandler) Apply(c *gin.Context) {
	var req ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Invalid request body"))
		return
	}

	moderator := req.Moderator
	if moderator == "" {
		moderator = req.Username
	}

	result, err := h.moderationService.Apply(c.Request.Context(), service.ModerationRequest{
		Action:    req.Action,
		Room:      req.Room,
		Moderator: actor(c, moderator),
		Target:    req.TargetUsername,
		Duration:  req.Duration,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if len(result.Events) > 0 {
		_ = h.dispatcher.Dispatch(c.Request.Context(), result.Events)
	} else {
		// мьют и смена роли меняют записи присутствия
		published(h.log, domain.EventRoomUsers, h.dispatcher.RoomUsers(c.Request.Context(), req.Room))
	}

	c.JSON(http.StatusOK, result)
}
