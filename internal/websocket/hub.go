// The subscription hub: one long-lived stream per browser tab watching
// a project. The hub owns the live connection set, the global
// connection cap, and the no-subscriber fallback into the pending
// event buffer.

package websocket

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/moveboard/moveboard-go/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser tabs connect from the app's own pages; auth is handled
	// upstream of this core.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub maintains the set of active subscriptions and fans events out to
// them. All mutations of the connection set happen under one lock, so
// "count subscribers, then buffer" and "check cap, then admit" are
// single critical sections.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client // connection id -> client

	pending        *PendingEventBuffer
	maxConnections int
}

// NewHub creates a hub that stores undeliverable events in pending and
// admits at most maxConnections concurrent subscriptions system-wide.
func NewHub(pending *PendingEventBuffer, maxConnections int) *Hub {
	return &Hub{
		clients:        make(map[string]*Client),
		pending:        pending,
		maxConnections: maxConnections,
	}
}

// Buffer exposes the pending event buffer for maintenance sweeps.
func (h *Hub) Buffer() *PendingEventBuffer {
	return h.pending
}

// Subscribe registers a new subscription for a project and returns its
// client handle. The first queued event is always the connection
// acknowledgement, followed by any buffered events for the project in
// storage order; live events arrive after those. If the hub is at its
// connection cap, the single oldest connection across all projects is
// evicted first.
func (h *Hub) Subscribe(projectID string) *Client {
	now := time.Now()
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	client := &Client{
		id:        fmt.Sprintf("%s-%d-%s", projectID, now.UnixMilli(), suffix),
		projectID: projectID,
		hub:       h,
		send:      make(chan models.CompletionEvent, clientQueueSize),
		openedAt:  now,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxConnections {
		h.evictOldestLocked()
	}
	h.clients[client.id] = client

	// The acknowledgement and the buffered backlog go into the queue
	// while the lock is held, so a concurrent Publish cannot interleave
	// a live event ahead of the backlog.
	client.queueLocked(models.CompletionEvent{
		Type:         models.EventConnected,
		ProjectID:    projectID,
		ConnectionID: client.id,
		Timestamp:    now,
	})
	for _, event := range h.pending.Drain(projectID) {
		client.queueLocked(event)
	}

	log.Printf("Subscriber %s connected (%d total)", client.id, len(h.clients))
	return client
}

// Unsubscribe removes a connection. It is idempotent: unknown or
// already-closed ids are a no-op, so a client-initiated cancel and a
// later failed-write cleanup can both call it safely.
func (h *Hub) Unsubscribe(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[connectionID]; ok {
		h.closeLocked(client)
		log.Printf("Subscriber %s disconnected (%d total)", connectionID, len(h.clients))
	}
}

// Publish delivers an event to every live subscription of the project.
// A failed delivery removes only that connection and the fan-out
// continues. With zero live subscribers the event goes to the pending
// buffer instead, so a client that connects within the TTL still sees
// it. Returns the number of subscribers the event was queued for.
func (h *Hub) Publish(projectID string, event models.CompletionEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	var matched []*Client
	for _, client := range h.clients {
		if client.projectID == projectID {
			matched = append(matched, client)
		}
	}

	if len(matched) == 0 {
		h.pending.Store(projectID, event)
		return 0
	}

	delivered := 0
	for _, client := range matched {
		if client.queueLocked(event) {
			delivered++
		} else {
			// Slow or broken pipe; drop the one connection, keep fanning out.
			log.Printf("Dropping unresponsive subscriber %s", client.id)
			h.closeLocked(client)
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions for a project.
func (h *Hub) SubscriberCount(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, client := range h.clients {
		if client.projectID == projectID {
			n++
		}
	}
	return n
}

// ClientCount returns the total number of live subscriptions.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseIdle closes every subscription open longer than maxAge,
// regardless of client activity, to bound resource usage. Returns the
// number of connections closed.
func (h *Hub) CloseIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	for _, client := range h.clients {
		if client.openedAt.Before(cutoff) {
			h.closeLocked(client)
			closed++
		}
	}
	if closed > 0 {
		log.Printf("Closed %d idle subscriptions (%d remain)", closed, len(h.clients))
	}
	return closed
}

// ServeWs upgrades an HTTP request to a websocket subscription for the
// given project and pumps events until disconnect or eviction.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, projectID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		log.Printf("Websocket upgrade failed for project %s: %v", projectID, err)
		return
	}

	client := h.Subscribe(projectID)
	client.conn = conn
	client.Start()
}

// evictOldestLocked closes the single oldest connection across all
// projects. Deterministic oldest-first eviction keeps the cap an
// invariant rather than advisory. Callers must hold h.mu.
func (h *Hub) evictOldestLocked() {
	var oldest *Client
	for _, client := range h.clients {
		if oldest == nil || client.openedAt.Before(oldest.openedAt) {
			oldest = client
		}
	}
	if oldest != nil {
		log.Printf("Connection cap reached, evicting oldest subscriber %s", oldest.id)
		h.closeLocked(oldest)
	}
}

// closeLocked transitions a client to its terminal Closed state.
// Closing an already-closed client is a no-op, never an error, which
// prevents double-close faults between eviction, failed writes, and
// client disconnects. Callers must hold h.mu.
func (h *Hub) closeLocked(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	close(client.send)
	delete(h.clients, client.id)
}
