// Package scheduler drives the freshness pipeline. A cron tick syncs the
// refresh task set with the current subscriptions, then runs every due task
// under a per-key lease so concurrent instances cannot refresh the same
// scope twice.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/services/reconciler"
)

// Job names registered with the cron runner.
const (
	JobRefreshTick     = "refresh_tick"
	JobRetention       = "retention"
	JobSummaryBackfill = "summary_backfill"
)

// jobEntry represents a registered cron job with status metadata
type jobEntry struct {
	name      string
	schedule  string
	handler   func() error
	cronID    cron.EntryID
	lastRun   *time.Time
	isRunning bool
	lastError string
}

// Service implements SchedulerService.
type Service struct {
	config        *common.SchedulerConfig
	retention     *common.RetentionConfig
	adapters      map[string]interfaces.SourceAdapter
	tasks         interfaces.TaskStorage
	events        interfaces.EventStorage
	subscriptions interfaces.SubscriptionStorage
	locks         interfaces.LockProvider
	reconciler    *reconciler.Service
	summaries     interfaces.SummaryService
	bus           interfaces.EventService
	cron          *cron.Cron
	logger        arbor.ILogger

	jobMu   sync.Mutex // Protects jobs map
	jobs    map[string]*jobEntry
	tickMu  sync.Mutex // Prevents overlapping scheduler passes
	running bool
	now     func() time.Time
}

// NewService creates a scheduler over the given adapters and stores.
func NewService(
	config *common.SchedulerConfig,
	retention *common.RetentionConfig,
	adapters []interfaces.SourceAdapter,
	storage interfaces.StorageManager,
	rec *reconciler.Service,
	summaries interfaces.SummaryService,
	bus interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	byName := make(map[string]interfaces.SourceAdapter, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
	}

	return &Service{
		config:        config,
		retention:     retention,
		adapters:      byName,
		tasks:         storage.TaskStorage(),
		events:        storage.EventStorage(),
		subscriptions: storage.SubscriptionStorage(),
		locks:         storage.LockProvider(),
		reconciler:    rec,
		summaries:     summaries,
		bus:           bus,
		cron:          cron.New(),
		logger:        logger,
		jobs:          make(map[string]*jobEntry),
		now:           time.Now,
	}
}

// Start registers the cron jobs and begins ticking.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if err := s.registerJob(JobRefreshTick, s.config.TickSchedule, func() error {
		return s.RunDueTasks(context.Background(), s.now())
	}); err != nil {
		return err
	}

	if s.retention != nil && s.retention.Enabled {
		if err := s.registerJob(JobRetention, s.config.RetentionSchedule, func() error {
			return s.runRetention(context.Background())
		}); err != nil {
			return err
		}
	}

	if s.summaries != nil {
		if err := s.registerJob(JobSummaryBackfill, s.config.SummarySchedule, func() error {
			return s.runSummaryBackfill(context.Background())
		}); err != nil {
			return err
		}
	}

	if s.bus != nil {
		if err := s.bus.Subscribe(interfaces.EventRefreshTriggered, func(ctx context.Context, _ interfaces.Event) error {
			return s.RunDueTasks(ctx, s.now())
		}); err != nil {
			return fmt.Errorf("failed to subscribe to refresh trigger: %w", err)
		}
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("tick_schedule", s.config.TickSchedule).
		Int("adapters", len(s.adapters)).
		Msg("Scheduler started")

	return nil
}

// Stop halts the scheduler. In-flight tasks finish; their leases are
// released on completion.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active.
func (s *Service) IsRunning() bool {
	return s.running
}

// TriggerNow requests an immediate scheduler pass via the bus.
func (s *Service) TriggerNow() error {
	s.logger.Info().Msg("Manual refresh trigger requested")

	if s.bus == nil {
		return s.RunDueTasks(context.Background(), s.now())
	}
	return s.bus.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventRefreshTriggered,
	})
}

// JobStatuses reports the registered cron jobs, sorted by name.
func (s *Service) JobStatuses() []interfaces.JobStatus {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	statuses := make([]interfaces.JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		status := interfaces.JobStatus{
			Name:      entry.name,
			Schedule:  entry.schedule,
			LastRun:   entry.lastRun,
			IsRunning: entry.isRunning,
			LastError: entry.lastError,
		}
		for _, cronEntry := range s.cron.Entries() {
			if cronEntry.ID == entry.cronID {
				next := cronEntry.Next
				status.NextRun = &next
				break
			}
		}
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// registerJob adds a named job to the cron runner with panic recovery and
// status tracking.
func (s *Service) registerJob(name, schedule string, handler func() error) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule for %s: %w", name, err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:     name,
		schedule: schedule,
		handler:  handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// executeJob wraps job execution with panic recovery and status tracking
func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")

			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		s.logger.Debug().Str("job_name", name).Msg("Job still running, skipping cycle")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	started := s.now()
	err := handler()
	finished := s.now()

	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &finished
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", finished.Sub(started)).
			Msg("Job execution failed")
	} else {
		s.logger.Debug().
			Str("job_name", name).
			Dur("duration", finished.Sub(started)).
			Msg("Job execution completed")
	}
}

var _ interfaces.SchedulerService = (*Service)(nil)
