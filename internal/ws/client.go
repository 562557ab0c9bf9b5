package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
)

// MessageHandler receives every text frame the client sends
type MessageHandler func(data []byte)

// Client represents a single WebSocket connection
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	memberID  string
	onMessage MessageHandler

	quit      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new WebSocket client. onMessage may be nil for push-only connections.
func NewClient(hub *Hub, conn *websocket.Conn, memberID string, onMessage MessageHandler) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		memberID:  memberID,
		onMessage: onMessage,
		quit:      make(chan struct{}),
	}
}

// MemberID of the connection owner
func (c *Client) MemberID() string {
	return c.memberID
}

// Done is closed once the connection is closing
func (c *Client) Done() <-chan struct{} {
	return c.quit
}

// Send queues a frame. It reports false when the client is closed or too slow to keep up.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.quit:
		return false
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.quit) })
}

// ReadPump reads frames from the WebSocket until the peer goes away
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return nil
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if kind == websocket.TextMessage && c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

// WritePump sends queued frames and keepalive pings to the WebSocket
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message) //nolint:errcheck
			if err := w.Close(); err != nil {
				return
			}

		case <-c.quit:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))    //nolint:errcheck
			c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes frames still queued when the client was closed
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
