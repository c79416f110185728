package jobs_test

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/moveboard/moveboard-go/internal/config"
	"github.com/moveboard/moveboard-go/internal/jobs"
	"github.com/moveboard/moveboard-go/internal/processing"
	"github.com/moveboard/moveboard-go/internal/store"
	"github.com/moveboard/moveboard-go/internal/websocket"
)

type fakeJobContext struct {
	db       *sql.DB
	cfg      *config.Config
	hub      *websocket.Hub
	registry *processing.Registry
	states   *store.Store
	jobMgr   *jobs.JobManager
}

func (f *fakeJobContext) DB() *sql.DB                    { return f.db }
func (f *fakeJobContext) Config() *config.Config         { return f.cfg }
func (f *fakeJobContext) WsHub() *websocket.Hub          { return f.hub }
func (f *fakeJobContext) Registry() *processing.Registry { return f.registry }
func (f *fakeJobContext) StateStore() *store.Store       { return f.states }
func (f *fakeJobContext) JobManager() *jobs.JobManager   { return f.jobMgr }

func newFakeContext() *fakeJobContext {
	return &fakeJobContext{
		cfg:      &config.Config{},
		hub:      websocket.NewHub(websocket.NewPendingEventBuffer(20, 5*time.Minute), 10),
		registry: processing.NewRegistry(),
	}
}

func waitForStatus(t *testing.T, mgr *jobs.JobManager, id, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range mgr.GetStatus() {
			if s.ID == id && s.Status == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job '%s' never reached status '%s'", id, want)
}

func TestManager_NewManager(t *testing.T) {
	mgr := jobs.NewManager()
	assert.NotNil(t, mgr)
	assert.Empty(t, mgr.GetStatus())
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	mgr := jobs.NewManager()
	mgr.Register("jobA", "Job A", func(ctx jobs.JobContext) {})
	mgr.Register("jobB", "Job B", func(ctx jobs.JobContext) {})
	statuses := mgr.GetStatus()
	assert.Len(t, statuses, 2)
	var foundA, foundB bool
	for _, s := range statuses {
		if s.ID == "jobA" {
			foundA = true
			assert.Equal(t, "idle", s.Status)
		}
		if s.ID == "jobB" {
			foundB = true
		}
	}
	assert.True(t, foundA && foundB)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	ctx := newFakeContext()
	mgr := jobs.NewManager()
	ctx.jobMgr = mgr

	var mu sync.Mutex
	var called bool
	mgr.Register("jobX", "Job X", func(ctx jobs.JobContext) {
		mu.Lock()
		called = true
		mu.Unlock()
	})

	assert.NoError(t, mgr.RunJob("jobX", ctx))
	waitForStatus(t, mgr, "jobX", "success")

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, called)
}

func TestManager_RunJob_UnknownJob(t *testing.T) {
	mgr := jobs.NewManager()
	assert.Error(t, mgr.RunJob("nope", newFakeContext()))
}

func TestManager_RunJob_SingleFlight(t *testing.T) {
	ctx := newFakeContext()
	mgr := jobs.NewManager()
	ctx.jobMgr = mgr

	release := make(chan struct{})
	mgr.Register("slow", "Slow job", func(ctx jobs.JobContext) { <-release })
	mgr.Register("other", "Other job", func(ctx jobs.JobContext) {})

	assert.NoError(t, mgr.RunJob("slow", ctx))
	// A second job is refused while the first is still running.
	assert.Error(t, mgr.RunJob("other", ctx))

	close(release)
	waitForStatus(t, mgr, "slow", "success")
	assert.NoError(t, mgr.RunJob("other", ctx))
	waitForStatus(t, mgr, "other", "success")
}

func TestManager_RunJob_PanicMarksFailed(t *testing.T) {
	ctx := newFakeContext()
	mgr := jobs.NewManager()
	ctx.jobMgr = mgr

	mgr.Register("boom", "Panicking job", func(ctx jobs.JobContext) { panic("kaput") })
	assert.NoError(t, mgr.RunJob("boom", ctx))
	waitForStatus(t, mgr, "boom", "failed")

	// The manager recovered and can run jobs again.
	mgr.Register("after", "After panic", func(ctx jobs.JobContext) {})
	assert.NoError(t, mgr.RunJob("after", ctx))
	waitForStatus(t, mgr, "after", "success")
}
