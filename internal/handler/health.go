package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"roomsync/internal/realtime"
)

type HealthHandler struct {
	mode string
	hub  *realtime.Hub
}

func NewHealthHandler(mode string, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{
		mode: mode,
		hub:  hub,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	body := gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
		"mode":      h.mode,
	}
	if h.hub != nil {
		body["connections"] = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}
