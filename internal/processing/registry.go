// The in-memory table of analysis jobs believed to be in flight,
// grouped by project. Everything here is a cache for UI liveness: the
// durable processing_state table in the store package is the fallback
// when this table and a webhook disagree.

package processing

import (
	"sync"
	"time"

	"github.com/moveboard/moveboard-go/internal/models"
)

// Registry tracks in-flight ProcessingItems per project. All methods
// are safe for concurrent use; mutations for a project are serialized
// under one lock so a check-then-remove pair cannot lose updates.
type Registry struct {
	mu    sync.RWMutex
	items map[string][]models.ProcessingItem // projectID -> insertion-ordered items
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		items: make(map[string][]models.ProcessingItem),
	}
}

// Register inserts an item for a project. If an item with the same id
// already exists, the new one replaces it in place (last write wins).
func (r *Registry) Register(projectID string, item models.ProcessingItem) {
	if item.StartedAt.IsZero() {
		item.StartedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.items[projectID]
	for i := range list {
		if list[i].ID == item.ID {
			list[i] = item
			return
		}
	}
	r.items[projectID] = append(list, item)
}

// List returns a copy of the project's in-flight items in insertion
// order. An unknown project yields an empty slice, not an error.
func (r *Registry) List(projectID string) []models.ProcessingItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.items[projectID]
	out := make([]models.ProcessingItem, len(list))
	copy(out, list)
	return out
}

// Remove deletes the item with the given id and returns it. Removing an
// id that is not present is a no-op returning nil.
func (r *Registry) Remove(projectID, id string) *models.ProcessingItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(projectID, id)
}

func (r *Registry) removeLocked(projectID, id string) *models.ProcessingItem {
	list := r.items[projectID]
	for i := range list {
		if list[i].ID == id {
			removed := list[i]
			r.items[projectID] = append(list[:i:i], list[i+1:]...)
			r.dropIfEmpty(projectID)
			return &removed
		}
	}
	return nil
}

// PurgeOlderThan removes and returns every item whose StartedAt
// predates now minus age.
func (r *Registry) PurgeOlderThan(projectID string, age time.Duration) []models.ProcessingItem {
	cutoff := time.Now().Add(-age)

	r.mu.Lock()
	defer r.mu.Unlock()

	var kept, purged []models.ProcessingItem
	for _, item := range r.items[projectID] {
		if item.StartedAt.Before(cutoff) {
			purged = append(purged, item)
		} else {
			kept = append(kept, item)
		}
	}
	r.items[projectID] = kept
	r.dropIfEmpty(projectID)
	return purged
}

// RemoveAllOfType removes and returns every item of the given type for
// a project. Used by the reconciler's same-type cleanup: a completion
// for type T is proof at least one T job finished, so survivors of that
// type are presumed orphaned.
func (r *Registry) RemoveAllOfType(projectID string, t models.ItemType) []models.ProcessingItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept, removed []models.ProcessingItem
	for _, item := range r.items[projectID] {
		if item.Type == t {
			removed = append(removed, item)
		} else {
			kept = append(kept, item)
		}
	}
	r.items[projectID] = kept
	r.dropIfEmpty(projectID)
	return removed
}

// Projects returns the ids of all projects that currently have
// in-flight items. Order is unspecified.
func (r *Registry) Projects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.items))
	for id := range r.items {
		out = append(out, id)
	}
	return out
}

// Count returns the number of in-flight items for a project.
func (r *Registry) Count(projectID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items[projectID])
}

// dropIfEmpty keeps the map from accumulating empty project slices.
// Callers must hold the write lock.
func (r *Registry) dropIfEmpty(projectID string) {
	if len(r.items[projectID]) == 0 {
		delete(r.items, projectID)
	}
}
