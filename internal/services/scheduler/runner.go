package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
	"github.com/ihaichao/stock-pulse/internal/sources"
)

// refreshInterval is how long a completed task stays fresh before it is
// re-armed. Earnings and filings refresh twice a day, the macro calendar
// once a day.
func refreshInterval(source string) time.Duration {
	switch source {
	case sources.SourceFinnhub:
		return 24 * time.Hour
	default:
		return 12 * time.Hour
	}
}

// tickerSources names the adapters that operate on per-ticker scopes.
func (s *Service) tickerSources() []string {
	var names []string
	for name, adapter := range s.adapters {
		if name != sources.SourceFinnhub {
			names = append(names, adapter.Name())
		}
	}
	return names
}

// RunDueTasks executes one scheduler pass: sync the task set with the
// subscriptions, then run every due task. One task's failure never affects
// the others or the pass itself.
func (s *Service) RunDueTasks(ctx context.Context, now time.Time) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now = now.UTC()

	if err := s.syncTasks(ctx, now); err != nil {
		s.logger.Warn().Err(err).Msg("Task sync failed, running due tasks anyway")
	}

	due, err := s.tasks.Due(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due tasks: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Debug().Int("due_tasks", len(due)).Msg("Running due refresh tasks")

	for _, task := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runTask(ctx, task, now)
	}

	if _, err := s.reconciler.ForceCompleteOverdue(ctx, now); err != nil {
		s.logger.Warn().Err(err).Msg("Force-complete pass failed")
	}

	return nil
}

// syncTasks reconciles the task set with the subscription set: subscribed
// tickers get a task per ticker source, the macro source gets tasks for the
// current and next month, finished tasks past their freshness interval are
// re-armed, and tasks whose lease-holder crashed are recovered.
func (s *Service) syncTasks(ctx context.Context, now time.Time) error {
	tickers, err := s.subscriptions.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscribed tickers: %w", err)
	}
	subscribed := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		subscribed[t] = true
	}

	existing, err := s.tasks.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	byKey := make(map[string]*models.RefreshTask, len(existing))
	for _, task := range existing {
		byKey[task.Key] = task
	}

	// Seed missing ticker tasks.
	for _, ticker := range tickers {
		for _, source := range s.tickerSources() {
			key := models.TaskKey(source, ticker, time.Time{})
			if _, ok := byKey[key]; !ok {
				if err := s.tasks.Save(ctx, models.NewTickerTask(source, ticker, now)); err != nil {
					return err
				}
			}
		}
	}

	// Seed macro month tasks for the current and next month.
	if _, ok := s.adapters[sources.SourceFinnhub]; ok {
		thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		for _, month := range []time.Time{thisMonth, thisMonth.AddDate(0, 1, 0)} {
			key := models.TaskKey(sources.SourceFinnhub, "", month)
			if _, ok := byKey[key]; !ok {
				if err := s.tasks.Save(ctx, models.NewMonthTask(sources.SourceFinnhub, month, now)); err != nil {
					return err
				}
			}
		}
	}

	staleRunning := 2 * s.config.LeaseDuration()
	for _, task := range existing {
		switch task.State {
		case models.TaskPending:
			// Drop pending ticker tasks whose subscription disappeared.
			if task.Ticker != "" && !subscribed[task.Ticker] {
				if err := s.tasks.Delete(ctx, task.Key); err != nil {
					return err
				}
			}

		case models.TaskDone:
			if task.Ticker != "" && !subscribed[task.Ticker] {
				continue
			}
			if now.Sub(task.UpdatedAt) >= refreshInterval(task.Source) {
				task.State = models.TaskPending
				task.AttemptCount = 0
				task.DueAt = now
				if err := s.tasks.Save(ctx, task); err != nil {
					return err
				}
			}

		case models.TaskRunning:
			// A task stuck in Running for longer than two lease terms
			// belongs to a crashed worker; its lease has expired, so it is
			// safe to re-arm.
			if now.Sub(task.UpdatedAt) >= staleRunning {
				s.logger.Warn().
					Str("task_key", task.Key).
					Msg("Recovering task stuck in running state")
				task.State = models.TaskPending
				task.DueAt = now
				if err := s.tasks.Save(ctx, task); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// runTask executes a single refresh task under its per-key lease.
func (s *Service) runTask(ctx context.Context, task *models.RefreshTask, now time.Time) {
	adapter, ok := s.adapters[task.Source]
	if !ok {
		s.failTask(ctx, task, now, fmt.Errorf("no adapter registered for source %s", task.Source))
		return
	}

	lease, err := s.locks.Acquire(ctx, task.Key, s.config.LeaseDuration())
	if err != nil {
		if errors.Is(err, interfaces.ErrLockBusy) {
			// Another worker holds the scope. The task stays pending and
			// the next tick retries without consuming an attempt.
			s.logger.Debug().Str("task_key", task.Key).Msg("Scope locked elsewhere, deferring task")
			return
		}
		s.logger.Warn().Err(err).Str("task_key", task.Key).Msg("Lock acquisition failed")
		return
	}
	defer func() {
		if err := s.locks.Release(ctx, lease); err != nil {
			s.logger.Warn().Err(err).Str("task_key", task.Key).Msg("Lease release failed")
		}
	}()

	task.BeginAttempt(now)
	if err := s.tasks.Save(ctx, task); err != nil {
		s.logger.Warn().Err(err).Str("task_key", task.Key).Msg("Failed to persist task start")
		return
	}

	// Renew the lease while the fetch is in flight so slow upstreams do not
	// let it lapse mid-run.
	renewCtx, cancelRenew := context.WithCancel(ctx)
	defer cancelRenew()
	go s.renewLoop(renewCtx, lease)

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeoutDuration())
	records, err := adapter.Fetch(fetchCtx, task.Scope())
	cancel()
	if err != nil {
		s.failTask(ctx, task, s.now().UTC(), err)
		return
	}

	result, err := s.reconciler.Reconcile(ctx, records)
	if err != nil {
		s.failTask(ctx, task, s.now().UTC(), err)
		return
	}

	if s.summaries != nil && len(result.Changed) > 0 {
		s.summaries.EnsureShortSummaries(ctx, result.Changed)
	}

	task.Complete(s.now().UTC())
	if err := s.tasks.Save(ctx, task); err != nil {
		s.logger.Warn().Err(err).Str("task_key", task.Key).Msg("Failed to persist task completion")
	}

	s.logger.Info().
		Str("task_key", task.Key).
		Int("records", len(records)).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Msg("Refresh task completed")
}

// failTask records a failed attempt, dead-lettering the task once its
// attempt budget is exhausted.
func (s *Service) failTask(ctx context.Context, task *models.RefreshTask, now time.Time, cause error) {
	task.Fail(now, cause, s.config.TickDuration(), s.config.MaxAttempts, s.config.BackoffCapTicks)
	if err := s.tasks.Save(ctx, task); err != nil {
		s.logger.Warn().Err(err).Str("task_key", task.Key).Msg("Failed to persist task failure")
		return
	}

	if task.State != models.TaskDeadLettered {
		s.logger.Warn().
			Str("task_key", task.Key).
			Int("attempt", task.AttemptCount).
			Str("due_at", task.DueAt.Format(time.RFC3339)).
			Err(cause).
			Msg("Refresh task failed, retrying with backoff")
		return
	}

	letter := &models.DeadLetter{
		Key:       task.Key,
		Source:    task.Source,
		Ticker:    task.Ticker,
		Month:     task.Month,
		Attempts:  task.AttemptCount,
		LastError: task.LastError,
		FailedAt:  now,
	}
	if err := s.tasks.SaveDeadLetter(ctx, letter); err != nil {
		s.logger.Error().Err(err).Str("task_key", task.Key).Msg("Failed to save dead letter")
	}

	s.logger.Error().
		Str("task_key", task.Key).
		Int("attempts", task.AttemptCount).
		Err(cause).
		Msg("Refresh task dead-lettered")

	if s.bus != nil {
		_ = s.bus.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventTaskDeadLettered,
			Payload: letter,
		})
	}
}

// renewLoop extends the lease at half its term until cancelled.
func (s *Service) renewLoop(ctx context.Context, lease *interfaces.Lease) {
	interval := s.config.LeaseDuration() / 2
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.locks.Renew(ctx, lease); err != nil {
				s.logger.Warn().Str("lock_key", lease.Key).Err(err).Msg("Lease renewal failed")
				return
			}
		}
	}
}

// runRetention purges completed events older than the retention horizon.
func (s *Service) runRetention(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.retention.HorizonDuration())
	deleted, err := s.events.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention purge failed: %w", err)
	}

	s.logger.Info().
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Int("deleted", deleted).
		Msg("Retention purge completed")
	return nil
}

// runSummaryBackfill eagerly generates short summaries for events in the
// upcoming window that are missing or stale.
func (s *Service) runSummaryBackfill(ctx context.Context) error {
	now := s.now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now.Add(7 * 24 * time.Hour)

	events, err := s.events.Query(ctx, interfaces.EventFilter{From: &from, To: &to})
	if err != nil {
		return fmt.Errorf("failed to query events for summary backfill: %w", err)
	}

	s.summaries.EnsureShortSummaries(ctx, events)

	s.logger.Info().
		Int("events", len(events)).
		Msg("Summary backfill completed")
	return nil
}
