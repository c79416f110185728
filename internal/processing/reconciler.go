package processing

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/moveboard/moveboard-go/internal/models"
)

// MatchStrategy names which rung of the matching ladder resolved a
// completion notice. Exposed on the delivered event for observability;
// correctness never depends on it.
type MatchStrategy string

const (
	MatchExact         MatchStrategy = "exact"
	MatchTypeSource    MatchStrategy = "type_source"
	MatchLegacyPattern MatchStrategy = "legacy_pattern"
	MatchNewestOfType  MatchStrategy = "newest_of_type"
	MatchSynthetic     MatchStrategy = "synthetic"
)

// legacyVideoIDPrefix matches video jobs registered by the older upload
// code path, which prefixed its generated ids.
const legacyVideoIDPrefix = "video-"

// StateStore is the narrow view of the durable processing-state table
// the reconciler needs. Both calls are best-effort: a failing store
// never blocks reconciliation.
type StateStore interface {
	// FindInFlight returns the persisted item, or nil when none exists.
	FindInFlight(projectID, itemID string) (*models.ProcessingItem, error)
	MarkComplete(projectID, itemID string) error
}

// Resolution is the outcome of matching one completion notice.
type Resolution struct {
	Item     models.ProcessingItem
	Strategy MatchStrategy
}

// Synthetic reports whether the resolved item was fabricated rather
// than matched against a tracked in-flight job.
func (res Resolution) Synthetic() bool {
	return res.Strategy == MatchSynthetic
}

// Reconciler resolves which in-flight item a completion webhook refers
// to. The worker's reported id is not guaranteed to equal the id the UI
// registered: it may be empty, a placeholder, or an internally
// generated id that never round-tripped. The ladder trades exactness
// for liveness; an imperfect match that updates the UI beats a
// perfectly correct silent miss.
type Reconciler struct {
	registry   *Registry
	states     StateStore
	staleAfter time.Duration
}

// NewReconciler wires a reconciler over the registry and the durable
// state view. staleAfter is the age past which surviving registry
// entries are presumed orphaned; it is tuned in minutes, not hours,
// because customer uploads are expected to complete quickly.
func NewReconciler(registry *Registry, states StateStore, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		registry:   registry,
		states:     states,
		staleAfter: staleAfter,
	}
}

// Resolve matches a completion notice to at most one in-flight item,
// removes it from the registry, and runs the safety sweeps. It always
// produces a Resolution: when every strategy misses, the item is
// fabricated and flagged synthetic so the UI never silently loses a
// completion.
func (rc *Reconciler) Resolve(notice *models.CompletionNotice) Resolution {
	itemType := notice.ItemType()
	reportedID := notice.ReportedID()

	res := rc.match(notice.ProjectID, reportedID, itemType)

	log.Printf("Reconciled completion for project %s: item=%s strategy=%s",
		notice.ProjectID, res.Item.ID, res.Strategy)

	// Safety sweeps. Stale entries are worse than an occasional false
	// removal: a lingering "processing" indicator never clears itself.
	if purged := rc.registry.PurgeOlderThan(notice.ProjectID, rc.staleAfter); len(purged) > 0 {
		log.Printf("Purged %d stale in-flight items for project %s", len(purged), notice.ProjectID)
	}
	if removed := rc.registry.RemoveAllOfType(notice.ProjectID, itemType); len(removed) > 0 {
		log.Printf("Removed %d leftover %s items for project %s after completion",
			len(removed), itemType, notice.ProjectID)
	}

	return res
}

func (rc *Reconciler) match(projectID, reportedID string, itemType models.ItemType) Resolution {
	// Strategy 1: the reported id is one we are tracking.
	if reportedID != "" {
		if item := rc.registry.Remove(projectID, reportedID); item != nil {
			return Resolution{Item: *item, Strategy: MatchExact}
		}
	}

	inFlight := rc.registry.List(projectID)

	// Strategy 2: oldest customer upload of the same type. Customer
	// submitted jobs rarely keep a stable client-side id across the
	// webhook round trip, so this is the most common real-world case.
	for _, item := range inFlight {
		if item.Type == itemType && item.Source == models.SourceCustomerUpload {
			if removed := rc.registry.Remove(projectID, item.ID); removed != nil {
				return Resolution{Item: *removed, Strategy: MatchTypeSource}
			}
		}
	}

	// Strategy 3: legacy id pattern, videos only.
	if itemType == models.ItemTypeVideo {
		for _, item := range inFlight {
			if item.Type == models.ItemTypeVideo && strings.HasPrefix(item.ID, legacyVideoIDPrefix) {
				if removed := rc.registry.Remove(projectID, item.ID); removed != nil {
					return Resolution{Item: *removed, Strategy: MatchLegacyPattern}
				}
			}
		}
	}

	// Strategy 4: the most recently registered item of the matching
	// type. A completion notice very likely describes the newest still
	// open job of its type.
	var newest *models.ProcessingItem
	for i := range inFlight {
		item := &inFlight[i]
		if item.Type != itemType {
			continue
		}
		if newest == nil || item.StartedAt.After(newest.StartedAt) {
			newest = item
		}
	}
	if newest != nil {
		if removed := rc.registry.Remove(projectID, newest.ID); removed != nil {
			return Resolution{Item: *removed, Strategy: MatchNewestOfType}
		}
	}

	// Strategy 5: fabricate. Consult the durable state view first so
	// the synthetic record carries the real display name when the row
	// survived a restart that emptied the registry.
	return Resolution{
		Item:     rc.syntheticItem(projectID, reportedID, itemType),
		Strategy: MatchSynthetic,
	}
}

func (rc *Reconciler) syntheticItem(projectID, reportedID string, itemType models.ItemType) models.ProcessingItem {
	if rc.states != nil && reportedID != "" {
		persisted, err := rc.states.FindInFlight(projectID, reportedID)
		if err != nil {
			// The in-memory path is authoritative; a missing collaborator
			// only costs us the nicer display name.
			log.Printf("Processing-state lookup failed for project %s item %s: %v",
				projectID, reportedID, err)
		} else if persisted != nil {
			return *persisted
		}
	}

	id := reportedID
	if id == "" {
		id = fmt.Sprintf("unknown-%s-%d", itemType, time.Now().UnixNano())
	}
	name := "Image upload"
	if itemType == models.ItemTypeVideo {
		name = "Video upload"
	}
	return models.ProcessingItem{
		ID:        id,
		Type:      itemType,
		Name:      name,
		Source:    models.SourceCustomerUpload,
		StartedAt: time.Now(),
	}
}
