package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"roomsync/internal/realtime"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 500
)

// EventsHandler - лента изменений для poll-клиентов
type EventsHandler struct {
	poll *realtime.PollTransport
	log  logger.Logger
}

func NewEventsHandler(poll *realtime.PollTransport, log logger.Logger) *EventsHandler {
	return &EventsHandler{
		poll: poll,
		log:  log,
	}
}

// Since - GET /events?room&cursor&limit
func (h *EventsHandler) Since(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		_ = c.Error(apperrors.New(apperrors.ErrInvalidInput, "Room parameter is required"))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventsLimit)))
	if err != nil || limit <= 0 {
		limit = defaultEventsLimit
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	page, err := h.poll.Since(c.Request.Context(), room, c.Query("cursor"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}
