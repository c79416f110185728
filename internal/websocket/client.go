package websocket

import (
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moveboard/moveboard-go/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	// clientQueueSize must exceed the pending buffer capacity plus the
	// acknowledgement, so a freshly drained backlog always fits.
	clientQueueSize = 64
)

// Client is one live subscription: the middleman between a websocket
// connection and the hub. The hub owns its lifecycle; the pumps only
// move events.
type Client struct {
	id        string
	projectID string
	hub       *Hub
	conn      *websocket.Conn
	send      chan models.CompletionEvent
	openedAt  time.Time

	// closed is guarded by hub.mu. Closed is terminal.
	closed bool
}

// ID returns the connection id, which doubles as the hub's index key.
func (c *Client) ID() string {
	return c.id
}

// ProjectID returns the project this subscription watches.
func (c *Client) ProjectID() string {
	return c.projectID
}

// queueLocked enqueues an event for the write pump without blocking.
// It reports false when the client's queue is full or closed, which
// the hub treats as a delivery failure. Callers must hold hub.mu (it
// protects c.closed and guarantees nobody closes c.send mid-send).
func (c *Client) queueLocked(event models.CompletionEvent) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Start begins reading and writing for the client. It requires conn to
// be attached; hub tests exercise clients without one.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump discards inbound frames (subscribers never send data) and
// exists to notice disconnects and answer pings. Exiting unregisters
// the client; this is the normal cancellation path, not an error.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Subscriber %s read error: %v", c.id, err)
			}
			return
		}
	}
}

// writePump streams queued events to the connection and keeps it alive
// with pings. When the hub closes the send channel (eviction, idle
// timeout, unsubscribe) it writes a close frame and exits.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// The hub closed this subscription.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				log.Printf("Subscriber %s write failed: %v", c.id, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
