package jobs

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// RegisterAll registers the maintenance jobs with the manager. Kept
// separate from scheduling so the admin endpoints can trigger any of
// them on demand.
func RegisterAll(jm *JobManager) {
	jm.Register("processing-sweep", "Processing sweep", runProcessingSweep)
	jm.Register("state-prune", "Processing state prune", runStatePrune)
}

// StartJobs starts the background job scheduler.
func StartJobs(app JobContext) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	scheduleJob(s, app, "processing-sweep", app.Config().Processing.SweepIntervalMinutes)
	scheduleJob(s, app, "state-prune", 24*60)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
}

func scheduleJob(s *gocron.Scheduler, app JobContext, jobID string, intervalMinutes int) {
	if intervalMinutes == 0 {
		log.Printf("Interval for job '%s' is 0, scheduled run is disabled.", jobID)
		return
	}

	log.Printf("Scheduling job: '%s' to run every %d minutes.", jobID, intervalMinutes)

	_, err := s.Every(intervalMinutes).Minutes().Do(func() {
		log.Println("Scheduler is triggering job:", jobID)
		// Submit the job to the manager instead of running it directly.
		// This prevents conflicts with manually triggered jobs.
		if err := app.JobManager().RunJob(jobID, app); err != nil {
			log.Printf("Scheduled job '%s' could not start: %v", jobID, err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", jobID, err)
	}
}

// runProcessingSweep enforces the liveness bounds of the in-memory
// core: stale registry entries, expired buffered events, and
// subscriptions held open past the idle ceiling.
func runProcessingSweep(ctx JobContext) {
	cfg := ctx.Config()
	staleAfter := time.Duration(cfg.Processing.StaleAfterMinutes) * time.Minute
	idleTimeout := time.Duration(cfg.Subscriptions.IdleTimeoutMinutes) * time.Minute

	registry := ctx.Registry()
	for _, projectID := range registry.Projects() {
		if purged := registry.PurgeOlderThan(projectID, staleAfter); len(purged) > 0 {
			log.Printf("Sweep purged %d stale in-flight items for project %s", len(purged), projectID)
		}
	}

	if dropped := ctx.WsHub().Buffer().Sweep(time.Now()); dropped > 0 {
		log.Printf("Sweep dropped %d expired pending events", dropped)
	}

	ctx.WsHub().CloseIdle(idleTimeout)
}

// runStatePrune trims completed rows from the durable processing-state
// view. A day of history is plenty for debugging missed webhooks.
func runStatePrune(ctx JobContext) {
	pruned, err := ctx.StateStore().PruneCompletedBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		log.Printf("State prune failed: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("Pruned %d completed processing-state rows", pruned)
	}
}
