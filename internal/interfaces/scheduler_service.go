package interfaces

import (
	"context"
	"time"
)

// JobStatus describes one registered cron job for the operational surface
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerService drives the freshness pipeline: on each tick it syncs the
// refresh task set with the current subscriptions and runs due tasks under
// per-key leases.
type SchedulerService interface {
	// Start registers the cron jobs and begins ticking
	Start() error

	// Stop halts the scheduler, letting in-flight tasks finish
	Stop() error

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// RunDueTasks executes one scheduler pass at the given time
	RunDueTasks(ctx context.Context, now time.Time) error

	// TriggerNow requests an immediate pass outside the cron cadence
	TriggerNow() error

	// JobStatuses reports the registered cron jobs
	JobStatuses() []JobStatus
}
