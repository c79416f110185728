package processing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moveboard/moveboard-go/internal/models"
	"github.com/moveboard/moveboard-go/internal/processing"
)

// fakeStateStore implements processing.StateStore for tests.
type fakeStateStore struct {
	items     map[string]*models.ProcessingItem // key: projectID + "/" + itemID
	completed []string
	err       error
}

func (f *fakeStateStore) FindInFlight(projectID, itemID string) (*models.ProcessingItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[projectID+"/"+itemID], nil
}

func (f *fakeStateStore) MarkComplete(projectID, itemID string) error {
	f.completed = append(f.completed, projectID+"/"+itemID)
	return f.err
}

func newReconciler(t *testing.T) (*processing.Reconciler, *processing.Registry, *fakeStateStore) {
	t.Helper()
	registry := processing.NewRegistry()
	states := &fakeStateStore{items: make(map[string]*models.ProcessingItem)}
	return processing.NewReconciler(registry, states, 10*time.Minute), registry, states
}

func TestReconciler_ExactMatch(t *testing.T) {
	rc, registry, _ := newReconciler(t)
	registry.Register("p1", item("img-1", models.ItemTypeImage, models.SourceAdminUpload))

	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", ImageID: "img-1", Success: true})

	assert.Equal(t, processing.MatchExact, res.Strategy)
	assert.Equal(t, "img-1", res.Item.ID)
	assert.False(t, res.Synthetic())
	assert.Zero(t, registry.Count("p1"))
}

func TestReconciler_FallbackBySource(t *testing.T) {
	rc, registry, _ := newReconciler(t)
	registry.Register("p1", item("temp-7", models.ItemTypeImage, models.SourceCustomerUpload))

	// The worker reports an id the UI never saw.
	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", ImageID: "unrelated-id", Success: true})

	assert.Equal(t, processing.MatchTypeSource, res.Strategy)
	assert.Equal(t, "temp-7", res.Item.ID)
	assert.Zero(t, registry.Count("p1"))
}

func TestReconciler_FallbackBySourcePrefersOldest(t *testing.T) {
	rc, registry, _ := newReconciler(t)
	first := item("first", models.ItemTypeImage, models.SourceCustomerUpload)
	first.StartedAt = time.Now().Add(-2 * time.Minute)
	registry.Register("p1", first)
	registry.Register("p1", item("second", models.ItemTypeImage, models.SourceCustomerUpload))

	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", ImageID: "mystery", Success: true})

	assert.Equal(t, processing.MatchTypeSource, res.Strategy)
	assert.Equal(t, "first", res.Item.ID)
}

func TestReconciler_LegacyVideoPrefix(t *testing.T) {
	rc, registry, _ := newReconciler(t)
	registry.Register("p1", item("video-1699999999", models.ItemTypeVideo, models.SourceAdminUpload))

	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", VideoID: "srv-generated", Success: true})

	assert.Equal(t, processing.MatchLegacyPattern, res.Strategy)
	assert.Equal(t, "video-1699999999", res.Item.ID)
}

func TestReconciler_NewestOfTypeFallback(t *testing.T) {
	rc, registry, _ := newReconciler(t)
	older := item("a", models.ItemTypeImage, models.SourceAdminUpload)
	older.StartedAt = time.Now().Add(-5 * time.Minute)
	newer := item("b", models.ItemTypeImage, models.SourceAdminUpload)
	registry.Register("p1", older)
	registry.Register("p1", newer)

	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", ImageID: "mystery", Success: true})

	assert.Equal(t, processing.MatchNewestOfType, res.Strategy)
	assert.Equal(t, "b", res.Item.ID)
}

func TestReconciler_SyntheticWhenNothingMatches(t *testing.T) {
	rc, registry, _ := newReconciler(t)

	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", VideoID: "ghost-42", Success: false})

	assert.Equal(t, processing.MatchSynthetic, res.Strategy)
	assert.True(t, res.Synthetic())
	assert.Equal(t, "ghost-42", res.Item.ID)
	assert.Equal(t, models.ItemTypeVideo, res.Item.Type)
	assert.Equal(t, "Video upload", res.Item.Name)
	assert.Zero(t, registry.Count("p1"))
}

func TestReconciler_SyntheticUsesPersistedState(t *testing.T) {
	rc, _, states := newReconciler(t)
	states.items["p1/ghost-42"] = &models.ProcessingItem{
		ID: "ghost-42", Type: models.ItemTypeImage, Name: "kitchen.jpg",
		Source: models.SourceCustomerUpload, StartedAt: time.Now(),
	}

	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", ImageID: "ghost-42", Success: true})

	require.Equal(t, processing.MatchSynthetic, res.Strategy)
	assert.Equal(t, "kitchen.jpg", res.Item.Name)
}

func TestReconciler_SyntheticSurvivesStateStoreOutage(t *testing.T) {
	rc, _, states := newReconciler(t)
	states.err = errors.New("connection refused")

	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", ImageID: "ghost", Success: true})

	assert.Equal(t, processing.MatchSynthetic, res.Strategy)
	assert.Equal(t, "ghost", res.Item.ID)
}

func TestReconciler_NuclearCleanupSameType(t *testing.T) {
	rc, registry, _ := newReconciler(t)
	registry.Register("p1", item("i1", models.ItemTypeImage, models.SourceAdminUpload))
	registry.Register("p1", item("i2", models.ItemTypeImage, models.SourceAdminUpload))
	registry.Register("p1", item("v1", models.ItemTypeVideo, models.SourceAdminUpload))

	rc.Resolve(&models.CompletionNotice{ProjectID: "p1", ImageID: "i1", Success: true})

	// Regardless of which image was matched, no image items survive.
	remaining := registry.List("p1")
	require.Len(t, remaining, 1)
	assert.Equal(t, models.ItemTypeVideo, remaining[0].Type)
}

func TestReconciler_AgeCleanupAfterResolution(t *testing.T) {
	rc, registry, _ := newReconciler(t)
	stale := item("stale-video", models.ItemTypeVideo, models.SourceCustomerUpload)
	stale.StartedAt = time.Now().Add(-time.Hour)
	registry.Register("p1", stale)
	registry.Register("p1", item("img-1", models.ItemTypeImage, models.SourceAdminUpload))

	rc.Resolve(&models.CompletionNotice{ProjectID: "p1", ImageID: "img-1", Success: true})

	// The stale video was swept even though the completion was an image.
	assert.Zero(t, registry.Count("p1"))
}

func TestReconciler_RemovesAtMostOneItemPerNotice(t *testing.T) {
	rc, registry, _ := newReconciler(t)
	registry.Register("p1", item("v1", models.ItemTypeVideo, models.SourceAdminUpload))
	registry.Register("p1", item("i1", models.ItemTypeImage, models.SourceAdminUpload))

	res := rc.Resolve(&models.CompletionNotice{ProjectID: "p1", VideoID: "v1", Success: true})

	assert.Equal(t, processing.MatchExact, res.Strategy)
	// The image item is untouched by a video completion.
	remaining := registry.List("p1")
	require.Len(t, remaining, 1)
	assert.Equal(t, "i1", remaining[0].ID)
}
