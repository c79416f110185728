package core

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/moveboard/moveboard-go/internal/config"
	"github.com/moveboard/moveboard-go/internal/db"
	"github.com/moveboard/moveboard-go/internal/jobs"
	"github.com/moveboard/moveboard-go/internal/processing"
	"github.com/moveboard/moveboard-go/internal/store"
	"github.com/moveboard/moveboard-go/internal/websocket"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// App holds the core components of the application that are shared
// between the server, the jobs, and the tests.
type App struct {
	cfg        *config.Config
	database   *sql.DB
	hub        *websocket.Hub
	registry   *processing.Registry
	stateStore *store.Store
	jobManager *jobs.JobManager
	version    string
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, running
// migrations, and wiring the in-memory processing core.
func New() (*App, error) {
	// Load configuration from config.yml
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize the database connection
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	if err := db.RunMigrations(database); err != nil {
		// We can't proceed without a valid database schema.
		// Close the DB connection before failing.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	pending := websocket.NewPendingEventBuffer(
		cfg.Events.BufferSize,
		time.Duration(cfg.Events.BufferTTLMinutes)*time.Minute,
	)
	hub := websocket.NewHub(pending, cfg.Subscriptions.MaxConnections)

	jobManager := jobs.NewManager()
	jobs.RegisterAll(jobManager)

	log.Println("Core application setup complete.")
	return NewApp(cfg, database, hub, processing.NewRegistry(), store.New(database), jobManager, Version), nil
}

// NewApp assembles an App from pre-built components. The server
// entrypoint goes through New; tests wire their own components.
func NewApp(cfg *config.Config, database *sql.DB, hub *websocket.Hub,
	registry *processing.Registry, stateStore *store.Store,
	jobManager *jobs.JobManager, version string) *App {
	return &App{
		cfg:        cfg,
		database:   database,
		hub:        hub,
		registry:   registry,
		stateStore: stateStore,
		jobManager: jobManager,
		version:    version,
	}
}

func (a *App) Config() *config.Config         { return a.cfg }
func (a *App) DB() *sql.DB                    { return a.database }
func (a *App) WsHub() *websocket.Hub          { return a.hub }
func (a *App) Registry() *processing.Registry { return a.registry }
func (a *App) StateStore() *store.Store       { return a.stateStore }
func (a *App) JobManager() *jobs.JobManager   { return a.jobManager }
func (a *App) Version() string                { return a.version }

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.database != nil {
		a.database.Close()
	}
}
