package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"roomsync/internal/service"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

type MediaHandler struct {
	mediaService service.MediaService
	log          logger.Logger
}

func NewMediaHandler(mediaService service.MediaService, log logger.Logger) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		log:          log,
	}
}

// GetTokenRequest: uid принимается и числом, и строкой с числом
type GetTokenRequest struct {
	ChannelName string      `json:"channelName" binding:"notblank"`
	Username    string      `json:"username" binding:"notblank"`
	UID         json.Number `json:"uid" binding:"required"`
}

func (h *MediaHandler) GetToken(c *gin.Context) {
	var req GetTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Channel name, username, and uid are required"))
		return
	}

	token, err := h.mediaService.IssueToken(c.Request.Context(), req.ChannelName, actor(c, req.Username), req.UID.String())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, token)
}
