package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"roomsync/internal/config"
	"roomsync/internal/domain"
	"roomsync/internal/middleware"
	"roomsync/internal/realtime"
	"roomsync/internal/service"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type joinRoomPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type sendMessagePayload struct {
	Text string `json:"text"`
}

type typingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type reactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type editMessagePayload struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// WebSocketHandler - push-режим: апгрейд соединения и обработка событий клиента
type WebSocketHandler struct {
	hub      *realtime.Hub
	services *service.Services
	chat     config.ChatConfig
	log      logger.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, services *service.Services, chat config.ChatConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		services: services,
		chat:     chat,
		log:      log,
	}
}

func (h *WebSocketHandler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	identity, _ := middleware.Username(c)
	client := realtime.NewClient(h.hub, conn, h, realtime.ClientOptions{
		HeartbeatInterval: h.chat.PresenceHeartbeat,
		Identity:          identity,
	})
	h.hub.Register(client)
	client.Start()
	h.log.Debug("WebSocket client connected", "client", client.ID())
}

func (h *WebSocketHandler) HandleEvent(ctx context.Context, c *realtime.Client, msg realtime.InboundMessage) {
	var err error
	switch msg.Type {
	case domain.ClientJoinRoom:
		var p joinRoomPayload
		if err = decodePayload(msg.Data, &p); err == nil {
			err = h.joinRoom(ctx, c, p)
		}
	case domain.ClientLeaveRoom:
		err = h.leaveRoom(ctx, c)
	case domain.ClientSendMessage:
		var p sendMessagePayload
		if err = decodePayload(msg.Data, &p); err == nil {
			err = h.sendMessage(ctx, c, p)
		}
	case domain.ClientTyping:
		var p typingPayload
		if err = decodePayload(msg.Data, &p); err == nil {
			err = h.typing(ctx, c, p)
		}
	case domain.ClientAddReaction:
		var p reactionPayload
		if err = decodePayload(msg.Data, &p); err == nil {
			err = h.addReaction(ctx, c, p)
		}
	case domain.ClientEditMessage:
		var p editMessagePayload
		if err = decodePayload(msg.Data, &p); err == nil {
			err = h.editMessage(ctx, c, p)
		}
	case domain.ClientDeleteMessage:
		var p deleteMessagePayload
		if err = decodePayload(msg.Data, &p); err == nil {
			err = h.deleteMessage(ctx, c, p)
		}
	case domain.ClientHeartbeat:
		h.HandleHeartbeat(ctx, c)
	default:
		err = apperrors.Newf(apperrors.ErrInvalidInput, "Unknown event type %q", msg.Type)
	}

	if err != nil {
		h.sendError(c, err)
	}
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.New(apperrors.ErrInvalidInput, "invalid message format")
	}
	return nil
}

// sendError отправляет ошибку только клиенту-источнику
func (h *WebSocketHandler) sendError(c *realtime.Client, err error) {
	apiErr := apperrors.ToAPIError(err)
	if apiErr.Code >= http.StatusInternalServerError {
		h.log.Error("WebSocket event failed", "client", c.ID(), "room", c.Room(), "error", err)
	}
	ev, mErr := domain.NewEvent(domain.EventError, c.Room(), domain.ErrorPayload{Message: apiErr.Message, Code: apiErr.Code})
	if mErr != nil {
		return
	}
	_ = h.hub.SendTo(c, ev)
}

func (h *WebSocketHandler) sendTo(c *realtime.Client, eventType, room string, payload any) {
	ev, err := domain.NewEvent(eventType, room, payload)
	if err != nil {
		h.log.Error("Failed to build event", "event", eventType, "error", err)
		return
	}
	if err := h.hub.SendTo(c, ev); err != nil {
		h.log.Warn("Failed to send event to client", "client", c.ID(), "event", eventType, "error", err)
	}
}

// requireRoom - текущие комната и имя клиента; без joinRoom события не принимаются
func requireRoom(c *realtime.Client) (string, string, error) {
	room, username := c.Room(), c.Username()
	if room == "" || username == "" {
		return "", "", apperrors.New(apperrors.ErrInvalidState, "Join a room first")
	}
	return room, username, nil
}

func (h *WebSocketHandler) joinRoom(ctx context.Context, c *realtime.Client, p joinRoomPayload) error {
	room := domain.NormalizeRoomName(p.Room)
	username := strings.TrimSpace(p.Username)
	// имя из токена главнее имени в payload
	if identity := c.Identity(); identity != "" {
		username = identity
	}
	if room == "" || username == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "Username and room are required")
	}

	prevRoom, prevUser := c.Room(), c.Username()
	sameSeat := prevRoom == room && prevUser == username
	if !sameSeat && h.hub.UsernameTaken(room, username, c) {
		return apperrors.New(apperrors.ErrConflict, "Username already taken in this room")
	}

	_, events, err := h.services.Presence.Touch(ctx, room, username)
	if err != nil {
		return err
	}
	if err := h.hub.Subscribe(c, room, username); err != nil {
		return err
	}

	// переход из другой комнаты - выход из прежней
	if prevRoom != "" && !sameSeat {
		left, err := h.services.Presence.Leave(ctx, prevRoom, prevUser, domain.LeaveReasonLeft)
		if err != nil {
			h.log.Warn("Failed to leave previous room", "room", prevRoom, "username", prevUser, "error", err)
		}
		_ = h.services.Dispatcher.Dispatch(ctx, left)
	}

	history, err := h.services.Message.List(ctx, room, h.chat.HistoryLimit, nil)
	if err != nil {
		return err
	}
	h.sendTo(c, domain.EventHistory, room, domain.HistoryPayload{Room: room, Messages: history})

	// приветствие не сохраняется и видно только вошедшему
	welcome := &domain.Message{
		ID:        uuid.NewString(),
		Username:  domain.SystemUsername,
		Text:      fmt.Sprintf("Welcome to room #%s!", room),
		Room:      room,
		Timestamp: time.Now().UTC(),
		Type:      domain.MessageTypeSystem,
	}
	welcome.Normalize()
	h.sendTo(c, domain.EventMessage, room, welcome)

	if len(events) == 0 {
		// запись присутствия уже была (poll-клиент или повторный join)
		published(h.log, domain.EventRoomUsers, h.services.Dispatcher.RoomUsers(ctx, room))
		return nil
	}
	_ = h.services.Dispatcher.Dispatch(ctx, events)
	h.log.Info("User joined room", "room", room, "username", username, "client", c.ID())
	return nil
}

func (h *WebSocketHandler) leaveRoom(ctx context.Context, c *realtime.Client) error {
	room, username := h.hub.Unsubscribe(c)
	if room == "" {
		return nil
	}
	return h.leave(ctx, room, username)
}

func (h *WebSocketHandler) leave(ctx context.Context, room, username string) error {
	events, err := h.services.Presence.Leave(ctx, room, username, domain.LeaveReasonLeft)
	if err != nil {
		return err
	}
	published(h.log, domain.EventUserTyping, h.services.Dispatcher.TypingChanged(ctx, room, username, false))
	return h.services.Dispatcher.Dispatch(ctx, events)
}

func (h *WebSocketHandler) sendMessage(ctx context.Context, c *realtime.Client, p sendMessagePayload) error {
	room, username, err := requireRoom(c)
	if err != nil {
		return err
	}

	message, err := h.services.Message.Append(ctx, room, username, p.Text)
	if err != nil {
		return err
	}
	published(h.log, domain.EventMessage, h.services.Dispatcher.MessageCreated(ctx, message))

	// отправка сообщения сбрасывает индикатор набора
	if err := h.services.Typing.SetTyping(ctx, room, username, false); err == nil {
		published(h.log, domain.EventUserTyping, h.services.Dispatcher.TypingChanged(ctx, room, username, false))
	}
	return nil
}

func (h *WebSocketHandler) typing(ctx context.Context, c *realtime.Client, p typingPayload) error {
	room, username, err := requireRoom(c)
	if err != nil {
		return err
	}
	if err := h.services.Typing.SetTyping(ctx, room, username, p.IsTyping); err != nil {
		return err
	}
	return h.services.Dispatcher.TypingChanged(ctx, room, username, p.IsTyping)
}

func (h *WebSocketHandler) addReaction(ctx context.Context, c *realtime.Client, p reactionPayload) error {
	room, username, err := requireRoom(c)
	if err != nil {
		return err
	}

	message, added, err := h.services.Message.ToggleReaction(ctx, p.MessageID, room, p.Emoji, username)
	if err != nil {
		return err
	}
	return h.services.Dispatcher.ReactionToggled(ctx, message, p.Emoji, username, added)
}

func (h *WebSocketHandler) editMessage(ctx context.Context, c *realtime.Client, p editMessagePayload) error {
	_, username, err := requireRoom(c)
	if err != nil {
		return err
	}

	message, err := h.services.Message.Edit(ctx, p.MessageID, username, p.Text)
	if err != nil {
		return err
	}
	return h.services.Dispatcher.MessageUpdated(ctx, message)
}

func (h *WebSocketHandler) deleteMessage(ctx context.Context, c *realtime.Client, p deleteMessagePayload) error {
	_, username, err := requireRoom(c)
	if err != nil {
		return err
	}

	message, err := h.services.Message.SoftDelete(ctx, p.MessageID, username)
	if err != nil {
		return err
	}
	return h.services.Dispatcher.MessageDeleted(ctx, message)
}

// HandleHeartbeat продлевает присутствие подключенного клиента.
// Если запись успела истечь, Touch вернет событие повторного входа.
func (h *WebSocketHandler) HandleHeartbeat(ctx context.Context, c *realtime.Client) {
	room, username := c.Room(), c.Username()
	if room == "" {
		return
	}
	_, events, err := h.services.Presence.Touch(ctx, room, username)
	if err != nil {
		h.log.Warn("Presence heartbeat failed", "room", room, "username", username, "error", err)
		return
	}
	_ = h.services.Dispatcher.Dispatch(ctx, events)
}

// HandleDisconnect - закрытие соединения равносильно выходу из комнаты
func (h *WebSocketHandler) HandleDisconnect(ctx context.Context, c *realtime.Client) {
	room, username := h.hub.Unsubscribe(c)
	if room == "" {
		return
	}
	if err := h.leave(ctx, room, username); err != nil {
		h.log.Warn("Failed to leave room on disconnect", "room", room, "username", username, "error", err)
	}
	h.log.Debug("WebSocket client disconnected", "client", c.ID(), "room", room)
}
