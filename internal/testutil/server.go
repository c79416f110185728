// Shared test server setup utilities, which simplify all API tests.

package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/moveboard/moveboard-go/internal/api"
	"github.com/moveboard/moveboard-go/internal/config"
	"github.com/moveboard/moveboard-go/internal/core"
	"github.com/moveboard/moveboard-go/internal/jobs"
	"github.com/moveboard/moveboard-go/internal/processing"
	"github.com/moveboard/moveboard-go/internal/store"
	"github.com/moveboard/moveboard-go/internal/websocket"
)

// WorkerSecret is the shared secret tests configure and present on
// webhook requests.
const WorkerSecret = "test-worker-secret"

// TestConfig returns a Config with sane values for tests.
func TestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Port = 0
	cfg.Webhook.Secret = WorkerSecret
	cfg.Processing.StaleAfterMinutes = 10
	cfg.Processing.SweepIntervalMinutes = 5
	cfg.Events.BufferSize = 20
	cfg.Events.BufferTTLMinutes = 5
	cfg.Subscriptions.MaxConnections = 100
	cfg.Subscriptions.IdleTimeoutMinutes = 15
	return cfg
}

// SetupTestApp wires a full core.App against an in-memory database.
func SetupTestApp(t *testing.T) *core.App {
	t.Helper()
	database := SetupTestDB(t)

	cfg := TestConfig()
	pending := websocket.NewPendingEventBuffer(
		cfg.Events.BufferSize,
		time.Duration(cfg.Events.BufferTTLMinutes)*time.Minute,
	)
	hub := websocket.NewHub(pending, cfg.Subscriptions.MaxConnections)

	jobManager := jobs.NewManager()
	jobs.RegisterAll(jobManager)

	return core.NewApp(cfg, database, hub, processing.NewRegistry(),
		store.New(database), jobManager, "test")
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *sql.DB) {
	t.Helper()
	app := SetupTestApp(t)
	server := api.NewServer(app)
	return server, app.DB()
}
