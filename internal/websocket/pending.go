package websocket

import (
	"sync"
	"time"

	"github.com/moveboard/moveboard-go/internal/models"
)

// PendingEvent wraps a CompletionEvent with the time it was queued,
// used only for TTL and eviction bookkeeping.
type PendingEvent struct {
	Event    models.CompletionEvent
	QueuedAt time.Time
}

// PendingEventBuffer holds completion events produced while a project
// had no live subscribers, so a client that connects moments later
// still receives them. Queues are bounded per project (oldest dropped)
// and entries expire after a TTL: the contract is "deliver within TTL
// or not at all".
type PendingEventBuffer struct {
	mu       sync.Mutex
	queues   map[string][]PendingEvent
	capacity int
	ttl      time.Duration
}

// NewPendingEventBuffer creates a buffer keeping at most capacity
// events per project, each eligible for delivery for ttl.
func NewPendingEventBuffer(capacity int, ttl time.Duration) *PendingEventBuffer {
	return &PendingEventBuffer{
		queues:   make(map[string][]PendingEvent),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Store appends an event to the project's queue. When the queue is
// full the oldest entry is silently dropped; bounded memory takes
// priority over completeness for very bursty projects.
func (b *PendingEventBuffer) Store(projectID string, event models.CompletionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := append(b.queues[projectID], PendingEvent{Event: event, QueuedAt: time.Now()})
	if len(queue) > b.capacity {
		queue = queue[len(queue)-b.capacity:]
	}
	b.queues[projectID] = queue
}

// Drain returns the project's buffered events that are still within
// the TTL, in storage order, and clears the queue. Expired entries are
// discarded, not returned. A second Drain returns nothing: each
// buffered event is delivered at most once.
func (b *PendingEventBuffer) Drain(projectID string) []models.CompletionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queues[projectID]
	if len(queue) == 0 {
		return nil
	}
	delete(b.queues, projectID)

	cutoff := time.Now().Add(-b.ttl)
	events := make([]models.CompletionEvent, 0, len(queue))
	for _, pe := range queue {
		if pe.QueuedAt.Before(cutoff) {
			continue
		}
		events = append(events, pe.Event)
	}
	return events
}

// Sweep drops expired entries for projects nobody drained, keeping
// memory bounded when clients never reconnect.
func (b *PendingEventBuffer) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-b.ttl)
	dropped := 0
	for projectID, queue := range b.queues {
		kept := queue[:0]
		for _, pe := range queue {
			if pe.QueuedAt.Before(cutoff) {
				dropped++
			} else {
				kept = append(kept, pe)
			}
		}
		if len(kept) == 0 {
			delete(b.queues, projectID)
		} else {
			b.queues[projectID] = kept
		}
	}
	return dropped
}

// Len returns the number of buffered events for a project.
func (b *PendingEventBuffer) Len(projectID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[projectID])
}
