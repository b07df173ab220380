package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/reelroom/reelroom/internal/engine"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Conn wraps one websocket session. Every connection is authenticated
// before it is constructed, so the user snapshot is always populated.
type Conn struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	user      engine.UserInfo
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, hub *Hub, user engine.UserInfo) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	return &Conn{
		conn:   ws,
		send:   make(chan []byte, 256),
		hub:    hub,
		logger: hub.logger.WithPrefix("conn").With("user", user.Username),
		ctx:    ctx,
		cancel: cancel,
		user:   user,
	}
}

// Start begins handling the connection
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// User returns the session's user snapshot.
func (c *Conn) User() engine.UserInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// UserID returns the authenticated user's id.
func (c *Conn) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user.ID
}

// setBalance refreshes the cached balance shown in roster pushes.
func (c *Conn) setBalance(balance int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user.Balance = balance
}

// Send queues raw bytes for delivery. A full buffer closes the connection
// rather than blocking the broadcaster.
func (c *Conn) Send(data []byte) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, expected during shutdown.
			c.logger.Debug("Attempted to send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

func (c *Conn) sendJSON(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal event", "error", err)
		return
	}
	_ = c.Send(data)
}

func (c *Conn) sendError(message string) {
	c.sendJSON(ErrorEvent{Type: EventError, Message: message})
}

// readPump handles incoming messages from the client
func (c *Conn) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) handleMessage(msg inboundMessage) {
	c.logger.Debug("Received message", "type", msg.Type)

	switch msg.Type {
	case ActionPlaceBet:
		c.hub.placeBet(c, msg.Amount)
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}
