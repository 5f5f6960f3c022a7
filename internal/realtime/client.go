package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"roomsync/internal/domain"
)

const (
	// Время на запись сообщения в сокет
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// InboundMessage - событие от клиента: {"type": "...", "data": {...}}
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClientHandler обрабатывает события клиента
type ClientHandler interface {
	HandleEvent(ctx context.Context, c *Client, msg InboundMessage)
	HandleHeartbeat(ctx context.Context, c *Client)
	HandleDisconnect(ctx context.Context, c *Client)
}

type ClientOptions struct {
	EventTimeout      time.Duration
	HeartbeatInterval time.Duration
	// Identity - имя из проверенного токена; пустое для анонимных соединений
	Identity string
}

// Client - одно websocket соединение
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	handler ClientHandler
	opts    ClientOptions

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	done     chan struct{}
	room     string
	username string
}

func NewClient(hub *Hub, conn *websocket.Conn, handler ClientHandler, opts ClientOptions) *Client {
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}
	return &Client{
		id:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		handler: handler,
		opts:    opts,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() string { return c.opts.Identity }

// Room - комната, на которую подписан клиент ("" до joinRoom)
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) setIdentity(room, username string) {
	c.mu.Lock()
	c.room = room
	c.username = username
	c.mu.Unlock()
}

// enqueue не блокируется: false означает, что буфер полон или клиент закрыт
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	close(c.done)
}

// Start запускает pump-горутины. Возвращается сразу.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
	if c.opts.HeartbeatInterval > 0 && c.handler != nil {
		go c.heartbeatLoop()
	}
}

func (c *Client) readPump() {
	defer func() {
		if c.handler != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.EventTimeout)
			c.handler.HandleDisconnect(ctx, c)
			cancel()
		}
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("WebSocket read error", "client", c.id, "error", err)
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message format", 400)
			continue
		}
		if c.handler == nil {
			continue
		}

		// события клиента обрабатываются последовательно
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.EventTimeout)
		c.handler.HandleEvent(ctx, c, msg)
		cancel()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.Room() == "" {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.EventTimeout)
			c.handler.HandleHeartbeat(ctx, c)
			cancel()
		case <-c.done:
			return
		}
	}
}

func (c *Client) sendError(message string, code int) {
	ev, err := domain.NewEvent(domain.EventError, c.Room(), domain.ErrorPayload{Message: message, Code: code})
	if err != nil {
		return
	}
	_ = c.hub.SendTo(c, ev)
}
