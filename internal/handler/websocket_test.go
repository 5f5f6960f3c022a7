package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"roomsync/internal/domain"
	"roomsync/internal/middleware"
	"roomsync/pkg/logger"
)

func dialWS(t *testing.T, srv *httptest.Server, query ...string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + strings.Join(query, "")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, eventType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": eventType, "data": json.RawMessage(raw)}))
}

// readUntil читает события до первого события нужного типа
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev domain.Event
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", eventType)
		if ev.Type == eventType {
			return ev
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	alice := dialWS(t, srv)
	sendWS(t, alice, domain.ClientJoinRoom, map[string]string{"username": "alice", "room": " #General "})

	ev := readUntil(t, alice, domain.EventHistory)
	var history domain.HistoryPayload
	require.NoError(t, json.Unmarshal(ev.Data, &history))
	assert.Equal(t, "general", history.Room)
	assert.Empty(t, history.Messages)

	ev = readUntil(t, alice, domain.EventMessage)
	var welcome domain.Message
	require.NoError(t, json.Unmarshal(ev.Data, &welcome))
	assert.Equal(t, "Welcome to room #general!", welcome.Text)
	assert.Equal(t, domain.MessageTypeSystem, welcome.Type)

	readUntil(t, alice, domain.EventRoomUsers)

	// занятое имя - ошибка только отправителю
	impostor := dialWS(t, srv)
	sendWS(t, impostor, domain.ClientJoinRoom, map[string]string{"username": "ALICE", "room": "general"})
	ev = readUntil(t, impostor, domain.EventError)
	var errPayload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &errPayload))
	assert.Equal(t, "Username already taken in this room", errPayload.Message)
	assert.Equal(t, 409, errPayload.Code)

	bob := dialWS(t, srv)
	sendWS(t, bob, domain.ClientJoinRoom, map[string]string{"username": "bob", "room": "general"})
	readUntil(t, bob, domain.EventHistory)

	ev = readUntil(t, alice, domain.EventUserJoined)
	var joined domain.PresencePayload
	require.NoError(t, json.Unmarshal(ev.Data, &joined))
	assert.Equal(t, "bob", joined.Username)

	sendWS(t, bob, domain.ClientSendMessage, map[string]string{"text": "hi alice"})
	var got domain.Message
	for got.Text != "hi alice" {
		ev = readUntil(t, alice, domain.EventMessage)
		require.NoError(t, json.Unmarshal(ev.Data, &got))
	}
	assert.Equal(t, "bob", got.Username)
	assert.NotZero(t, ev.Seq)

	sendWS(t, alice, domain.ClientAddReaction, map[string]string{"messageId": got.ID, "emoji": "🎉"})
	ev = readUntil(t, bob, domain.EventMessageReaction)
	var reaction domain.ReactionPayload
	require.NoError(t, json.Unmarshal(ev.Data, &reaction))
	assert.True(t, reaction.Added)
	assert.Equal(t, "alice", reaction.Username)
	require.Len(t, reaction.Message.Reactions, 1)

	sendWS(t, alice, domain.ClientSendMessage, map[string]string{"text": "   "})
	ev = readUntil(t, alice, domain.EventError)
	require.NoError(t, json.Unmarshal(ev.Data, &errPayload))
	assert.Equal(t, "Message cannot be empty", errPayload.Message)

	// закрытие соединения - неявный выход
	require.NoError(t, bob.Close())
	ev = readUntil(t, alice, domain.EventUserLeft)
	var left domain.PresencePayload
	require.NoError(t, json.Unmarshal(ev.Data, &left))
	assert.Equal(t, "bob", left.Username)
}

func TestWebSocketRequiresJoin(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn := dialWS(t, srv)
	sendWS(t, conn, domain.ClientSendMessage, map[string]string{"text": "hello?"})
	ev := readUntil(t, conn, domain.EventError)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "Join a room first", payload.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev = readUntil(t, conn, domain.EventError)
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "invalid message format", payload.Message)
}

func TestWebSocketKickEvictsSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	w := s.do(t, http.MethodPost, "/api/rooms", map[string]any{"name": "r1", "owner": "mod"})
	require.Equal(t, http.StatusCreated, w.Code)

	alice := dialWS(t, srv)
	sendWS(t, alice, domain.ClientJoinRoom, map[string]string{"username": "alice", "room": "r1"})
	readUntil(t, alice, domain.EventRoomUsers)

	w = s.do(t, http.MethodPost, "/api/moderation", map[string]any{"action": "kick", "room": "r1", "username": "mod", "targetUsername": "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	ev := readUntil(t, alice, domain.EventError)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "You have been kicked from this room", payload.Message)
	assert.Equal(t, 403, payload.Code)

	// heartbeat выгнанного соединения не возвращает его в комнату
	sendWS(t, alice, domain.ClientHeartbeat, nil)
	sendWS(t, alice, domain.ClientSendMessage, map[string]string{"text": "still here?"})
	ev = readUntil(t, alice, domain.EventError)
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "Join a room first", payload.Message)

	w = s.do(t, http.MethodGet, "/api/users?room=r1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []domain.User
	decodeBody(t, w, &users)
	assert.Empty(t, users)
}

func TestWebSocketUsesTokenIdentity(t *testing.T) {
	const secret = "ws-identity-secret"
	s := newTestServer(t)

	r := gin.New()
	r.GET("/ws", middleware.NewIdentityMiddleware(secret, true, logger.Nop()).Identify(), s.handlers.WebSocket.ServeWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	// без токена апгрейд отклоняется
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.IdentityClaims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	conn := dialWS(t, srv, "?access_token="+signed)
	// имя в payload игнорируется, важен токен
	sendWS(t, conn, domain.ClientJoinRoom, map[string]string{"username": "bob", "room": "general"})
	readUntil(t, conn, domain.EventRoomUsers)

	sendWS(t, conn, domain.ClientSendMessage, map[string]string{"text": "who am i"})
	var got domain.Message
	for got.Text != "who am i" {
		ev := readUntil(t, conn, domain.EventMessage)
		require.NoError(t, json.Unmarshal(ev.Data, &got))
	}
	assert.Equal(t, "alice", got.Username)

	online, err := s.svc.Presence.IsOnline(context.Background(), "general", "bob")
	require.NoError(t, err)
	assert.False(t, online)
}
