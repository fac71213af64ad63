package rpc

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"norelock.dev/rpcsite/internal/utils"
)

// Client is one WebSocket connection.
type Client struct {
	// ID is a unique identifier for the client.
	ID string

	// server is the WebSocket server that created this client.
	server *WebSocketServer

	// conn is the WebSocket connection.
	conn *websocket.Conn

	// send is a channel of outbound messages.
	send chan []byte

	// ctx carries the principal and is canceled on disconnect or shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	logger *utils.Logger

	// mutex protects closed
	mutex  sync.RWMutex
	closed bool
}

// safelySendMessage queues a message without blocking. It returns false if
// the client is gone or its queue is full.
func (c *Client) safelySendMessage(message []byte) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn("Client send channel is full, message dropped")
		return false
	}
}

func (c *Client) leave() {
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()

	c.cancel()
	select {
	case c.server.unregister <- c:
	case <-c.server.done:
		c.server.forget(c)
	}
}

// readPump dispatches frames from the connection until it closes.
func (c *Client) readPump() {
	defer func() {
		c.leave()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("Unexpected close error", err)
			} else {
				c.logger.Debug("Connection closed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		c.handleMessage(bytes.TrimSpace(message))
	}
}

// writePump writes queued responses and keeps the connection alive.
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
				c.logger.Error("Failed to write message", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Failed to write ping message", "error", err)
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// handleMessage dispatches one frame. Frames holding only successful
// notifications get no reply.
func (c *Client) handleMessage(message []byte) {
	result := c.server.site.Dispatcher().DispatchJSON(c.ctx, message)
	if len(result.Body) == 0 {
		return
	}
	c.safelySendMessage(result.Body)
}
