package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"roomsync/internal/service"
	"roomsync/pkg/logger"
)

type RoomHandler struct {
	roomService service.RoomService
	log         logger.Logger
}

func NewRoomHandler(roomService service.RoomService, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		log:         log,
	}
}

func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.roomService.ListActive(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

type CreateRoomRequest struct {
	Name        string  `json:"name" binding:"notblank"`
	Description *string `json:"description"`
	Owner       *string `json:"owner"`
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	owner := req.Owner
	if name := actor(c, ""); name != "" {
		owner = &name
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), req.Name, req.Description, owner)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.log.Info("Room created", "room", room.ID)

	c.JSON(http.StatusCreated, room)
}

type DMHandler struct {
	roomService service.RoomService
	log         logger.Logger
}

func NewDMHandler(roomService service.RoomService, log logger.Logger) *DMHandler {
	return &DMHandler{
		roomService: roomService,
		log:         log,
	}
}

func (h *DMHandler) List(c *gin.Context) {
	rooms, err := h.roomService.ListDMs(c.Request.Context(), actor(c, c.Query("username")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

type CreateDMRequest struct {
	User1 string `json:"user1" binding:"notblank"`
	User2 string `json:"user2" binding:"notblank"`
}

func (h *DMHandler) Create(c *gin.Context) {
	var req CreateDMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	room, err := h.roomService.CreateOrGetDM(c.Request.Context(), actor(c, req.User1), req.User2)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}
