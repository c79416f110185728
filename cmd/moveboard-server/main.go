package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moveboard/moveboard-go/internal/api"
	"github.com/moveboard/moveboard-go/internal/core"
	"github.com/moveboard/moveboard-go/internal/jobs"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	// Rehydrate the in-flight registry from the durable state table so
	// a restart doesn't orphan completions for jobs started before it.
	states, err := app.StateStore().ListAllInFlight()
	if err != nil {
		log.Printf("Warning: could not rehydrate processing state: %v", err)
	} else {
		for projectID, items := range states {
			for _, item := range items {
				app.Registry().Register(projectID, item)
			}
		}
		if n := len(states); n > 0 {
			log.Printf("Rehydrated in-flight processing state for %d projects.", n)
		}
	}

	// Start the periodic sweep and prune jobs in the background.
	jobs.StartJobs(app)

	// Setup the API server
	server := api.NewServer(app)
	addr := fmt.Sprintf(":%d", app.Config().Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}
	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Printf("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Attempt a graceful shutdown.
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
