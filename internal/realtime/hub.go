package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"roomsync/internal/domain"
	"roomsync/internal/metrics"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

// Hub - push транспорт: держит websocket клиентов и их подписки на комнаты.
// Клиент подписан не более чем на одну комнату.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	log     logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	h.log.Debug("Client connected", "client", c.id)
}

// Unregister удаляет клиента и закрывает его очередь. Повторный вызов ничего не делает.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		h.removeFromRoomLocked(c, c.Room())
	}
	h.mu.Unlock()

	if ok {
		c.close()
		metrics.WebSocketConnections.Dec()
		h.log.Debug("Client disconnected", "client", c.id)
	}
}

func (h *Hub) removeFromRoomLocked(c *Client, room string) {
	if room == "" {
		return
	}
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Subscribe подписывает клиента на комнату под именем username, снимая прежнюю подписку.
// Имя должно быть свободно среди живых соединений комнаты (без учета регистра).
func (h *Hub) Subscribe(c *Client, room, username string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return apperrors.New(apperrors.ErrInvalidState, "connection is closed")
	}
	if h.usernameTakenLocked(room, username, c) {
		return apperrors.New(apperrors.ErrConflict, "Username already taken in this room")
	}

	h.removeFromRoomLocked(c, c.Room())
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.setIdentity(room, username)
	return nil
}

// Unsubscribe снимает подписку и возвращает прежние комнату и имя
func (h *Hub) Unsubscribe(c *Client) (string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, username := c.Room(), c.Username()
	h.removeFromRoomLocked(c, room)
	c.setIdentity("", "")
	return room, username
}

func (h *Hub) UsernameTaken(room, username string, except *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.usernameTakenLocked(room, username, except)
}

func (h *Hub) usernameTakenLocked(room, username string, except *Client) bool {
	for c := range h.rooms[room] {
		if c != except && strings.EqualFold(c.Username(), username) {
			return true
		}
	}
	return false
}

// Publish рассылает событие подписчикам комнаты, глобальные события (Room == "") - всем.
// Клиенты с переполненным буфером отключаются.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var slow []*Client
	h.mu.RLock()
	targets := h.clients
	if ev.Room != "" {
		targets = h.rooms[ev.Room]
	}
	for c := range targets {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("Dropping slow client", "client", c.id, "room", c.Room())
		metrics.SlowClientsDropped.Inc()
		h.Unregister(c)
	}

	if ev.Type == domain.EventUserLeft {
		h.evictOnLeave(ev)
	}
	return nil
}

// evictOnLeave снимает с комнаты соединения выгнанного или забаненного пользователя.
// Событие приходит и от других инстансов через relay.
func (h *Hub) evictOnLeave(ev domain.Event) {
	var p domain.PresencePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return
	}
	if p.Reason != domain.LeaveReasonKicked && p.Reason != domain.LeaveReasonBanned {
		return
	}
	h.Evict(ev.Room, p.Username, p.Reason)
}

// Evict отписывает все соединения username от комнаты и отправляет им ошибку с причиной.
// Соединения остаются открытыми, повторный joinRoom решает Presence.
func (h *Hub) Evict(room, username, reason string) int {
	h.mu.Lock()
	var evicted []*Client
	for c := range h.rooms[room] {
		if strings.EqualFold(c.Username(), username) {
			evicted = append(evicted, c)
		}
	}
	for _, c := range evicted {
		h.removeFromRoomLocked(c, room)
		c.setIdentity("", "")
	}
	h.mu.Unlock()

	if len(evicted) == 0 {
		return 0
	}
	ev, err := domain.NewEvent(domain.EventError, room, domain.ErrorPayload{
		Message: fmt.Sprintf("You have been %s from this room", reason),
		Code:    403,
	})
	if err != nil {
		return len(evicted)
	}
	for _, c := range evicted {
		_ = h.SendTo(c, ev)
	}
	h.log.Info("Evicted clients from room", "room", room, "username", username, "reason", reason, "clients", len(evicted))
	return len(evicted)
}

// SendTo отправляет событие одному клиенту (history, error, приветствие)
func (h *Hub) SendTo(c *Client, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if !c.enqueue(data) {
		return fmt.Errorf("client %s send buffer unavailable", c.id)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close отключает всех клиентов
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
