package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы событий сервер -> клиент
const (
	EventMessage         = "message"
	EventMessageUpdated  = "messageUpdated"
	EventMessageDeleted  = "messageDeleted"
	EventMessageReaction = "messageReaction"
	EventUserJoined      = "userJoined"
	EventUserLeft        = "userLeft"
	EventUserTyping      = "userTyping"
	EventRoomUsers       = "roomUsers"
	EventRoomList        = "roomList"
	EventCallStarted     = "callStarted"
	EventCallUpdated     = "callUpdated"
	EventHistory         = "history"
	EventError           = "error"
)

// Типы событий клиент -> сервер
const (
	ClientJoinRoom      = "joinRoom"
	ClientLeaveRoom     = "leaveRoom"
	ClientSendMessage   = "sendMessage"
	ClientTyping        = "typing"
	ClientAddReaction   = "addReaction"
	ClientEditMessage   = "editMessage"
	ClientDeleteMessage = "deleteMessage"
	ClientHeartbeat     = "heartbeat"
)

// Event - изменение состояния, которое транспорт доставляет подписчикам.
// Пустой Room означает глобальное событие (например, roomList).
type Event struct {
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
	Cursor    string          `json:"cursor,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEvent(eventType, room string, payload any) (Event, error) {
	ev := Event{Type: eventType, Room: room, Timestamp: time.Now()}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ev, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev.Data = data
	return ev, nil
}

// ReactionPayload - тело события messageReaction
type ReactionPayload struct {
	MessageID string   `json:"messageId"`
	Emoji     string   `json:"emoji"`
	Username  string   `json:"username"`
	Added     bool     `json:"added"`
	Message   *Message `json:"message"`
}

type TypingPayload struct {
	Username string   `json:"username"`
	IsTyping bool     `json:"isTyping"`
	Typing   []string `json:"typing"`
}

type PresencePayload struct {
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
}

// PurgePayload - messageDeleted для физически удаленного сообщения
type PurgePayload struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Purged bool   `json:"purged"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SystemEventKind - доменные события, которые превращаются в системные сообщения
type SystemEventKind string

const (
	SystemUserJoined  SystemEventKind = "UserJoined"
	SystemUserLeft    SystemEventKind = "UserLeft"
	SystemCallStarted SystemEventKind = "CallStarted"
)

const (
	LeaveReasonLeft    = "left"
	LeaveReasonKicked  = "kicked"
	LeaveReasonBanned  = "banned"
	LeaveReasonExpired = "expired"
)

type SystemEvent struct {
	Kind     SystemEventKind
	Room     string
	Username string
	Reason   string
	Call     *VideoCall
}

// Text - текст системного сообщения для события
func (e SystemEvent) Text() string {
	switch e.Kind {
	case SystemUserJoined:
		return e.Username + " joined the room"
	case SystemUserLeft:
		return e.Username + " left the room"
	case SystemCallStarted:
		return "🎥 " + e.Username + " started a video call"
	default:
		return ""
	}
}

// HistoryPayload - история комнаты, отправляется только вошедшему клиенту
type HistoryPayload struct {
	Room     string     `json:"room"`
	Messages []*Message `json:"messages"`
}
