package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"roomsync/internal/domain"
	"roomsync/internal/service"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

type CallHandler struct {
	callService service.CallService
	dispatcher  *service.Dispatcher
	log         logger.Logger
}

func NewCallHandler(callService service.CallService, dispatcher *service.Dispatcher, log logger.Logger) *CallHandler {
	return &CallHandler{
		callService: callService,
		dispatcher:  dispatcher,
		log:         log,
	}
}

// Active - GET /video/call?roomId, {call: null} если звонка нет
func (h *CallHandler) Active(c *gin.Context) {
	roomID := c.Query("roomId")
	if roomID == "" {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Room ID is required"))
		return
	}

	call, err := h.callService.Active(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": call})
}

type StartCallRequest struct {
	RoomID   string `json:"roomId" binding:"notblank"`
	Username string `json:"username" binding:"notblank"`
}

func (h *CallHandler) Start(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Room ID and username are required"))
		return
	}

	call, events, err := h.callService.Start(c.Request.Context(), req.RoomID, actor(c, req.Username))
	if err != nil {
		_ = c.Error(err)
		return
	}
	_ = h.dispatcher.Dispatch(c.Request.Context(), events)

	c.JSON(http.StatusCreated, call)
}

type UpdateCallRequest struct {
	CallID   string `json:"callId" binding:"notblank"`
	Action   string `json:"action" binding:"notblank"`
	Username string `json:"username"`
}

// Update - PATCH /video/call: join, leave, end
func (h *CallHandler) Update(c *gin.Context) {
	var req UpdateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Call ID and action are required"))
		return
	}

	ctx := c.Request.Context()
	username := actor(c, req.Username)

	var (
		call *domain.VideoCall
		err  error
	)
	switch req.Action {
	case service.CallActionJoin:
		call, err = h.callService.Join(ctx, req.CallID, username)
	case service.CallActionLeave:
		call, err = h.callService.Leave(ctx, req.CallID, username)
	case service.CallActionEnd:
		call, err = h.callService.End(ctx, req.CallID, username)
	default:
		err = apperrors.New(apperrors.ErrInvalidInput, "Invalid action")
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	published(h.log, domain.EventCallUpdated, h.dispatcher.CallUpdated(ctx, call))

	c.JSON(http.StatusOK, call)
}
