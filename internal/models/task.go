package models

import (
	"fmt"
	"time"
)

// TaskState is the explicit finite-state record for a RefreshTask.
//
// Transitions:
//
//	Pending -> Running -> Done
//	                   -> Pending (retryable failure, due_at pushed by backoff)
//	                   -> DeadLettered (retry budget exhausted)
type TaskState string

const (
	TaskPending      TaskState = "pending"
	TaskRunning      TaskState = "running"
	TaskDone         TaskState = "done"
	TaskDeadLettered TaskState = "dead_lettered"
)

// RefreshTask is a scheduled unit of refresh work for one (source, scope) key.
type RefreshTask struct {
	Key           string    `badgerhold:"unique"` // "<source>:<ticker>" or "<source>:month:<YYYY-MM>"
	Source        string    `badgerhold:"index"`
	Ticker        string    `badgerhold:"index"` // Empty for month scopes
	Month         string    // YYYY-MM for macro scopes
	State         TaskState `badgerhold:"index"`
	DueAt         time.Time
	LastAttemptAt *time.Time
	AttemptCount  int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTickerTask creates a pending refresh task for a ticker-bound source.
func NewTickerTask(source, ticker string, now time.Time) *RefreshTask {
	return &RefreshTask{
		Key:       TaskKey(source, ticker, time.Time{}),
		Source:    source,
		Ticker:    ticker,
		State:     TaskPending,
		DueAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewMonthTask creates a pending refresh task for a macro source and month.
func NewMonthTask(source string, month time.Time, now time.Time) *RefreshTask {
	return &RefreshTask{
		Key:       TaskKey(source, "", month),
		Source:    source,
		Month:     month.UTC().Format("2006-01"),
		State:     TaskPending,
		DueAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TaskKey builds the stable refresh/lock key for a (source, scope) pair.
func TaskKey(source, ticker string, month time.Time) string {
	if !month.IsZero() {
		return fmt.Sprintf("%s:month:%s", source, month.UTC().Format("2006-01"))
	}
	return fmt.Sprintf("%s:%s", source, ticker)
}

// Scope returns the adapter scope for this task.
func (t *RefreshTask) Scope() Scope {
	if t.Month != "" {
		month, _ := time.Parse("2006-01", t.Month)
		return Scope{Month: month}
	}
	return Scope{Ticker: t.Ticker}
}

// IsDue reports whether a pending task should run at the given time.
func (t *RefreshTask) IsDue(now time.Time) bool {
	return t.State == TaskPending && !t.DueAt.After(now)
}

// BeginAttempt transitions Pending -> Running and records the attempt.
func (t *RefreshTask) BeginAttempt(now time.Time) {
	t.State = TaskRunning
	t.AttemptCount++
	attempt := now
	t.LastAttemptAt = &attempt
	t.UpdatedAt = now
}

// Complete transitions Running -> Done and clears the failure trail.
func (t *RefreshTask) Complete(now time.Time) {
	t.State = TaskDone
	t.LastError = ""
	t.UpdatedAt = now
}

// Fail records a failed attempt. Retryable failures go back to Pending with
// exponential backoff; once the attempt budget is exhausted the task is
// dead-lettered and never retried automatically.
func (t *RefreshTask) Fail(now time.Time, cause error, tick time.Duration, maxAttempts, capTicks int) {
	if cause != nil {
		t.LastError = cause.Error()
	}
	t.UpdatedAt = now

	if t.AttemptCount >= maxAttempts {
		t.State = TaskDeadLettered
		return
	}

	t.State = TaskPending
	t.DueAt = now.Add(time.Duration(BackoffTicks(t.AttemptCount, capTicks)) * tick)
}

// Defer reschedules a running task without consuming a retry, used when the
// per-key lock was not acquired or cancellation raced the run.
func (t *RefreshTask) Defer(now time.Time) {
	t.State = TaskPending
	t.AttemptCount--
	t.UpdatedAt = now
}

// BackoffTicks computes the exponential backoff in ticks after the given
// attempt number: 1, 2, 4, ... capped at capTicks.
func BackoffTicks(attempt, capTicks int) int {
	if attempt < 1 {
		attempt = 1
	}
	ticks := 1
	for i := 1; i < attempt; i++ {
		ticks *= 2
		if ticks >= capTicks {
			return capTicks
		}
	}
	if ticks > capTicks {
		return capTicks
	}
	return ticks
}

// DeadLetter is the operator-visible record of a task that exhausted its
// retry budget. Dead letters require manual intervention and are never
// rescheduled automatically.
type DeadLetter struct {
	Key       string `badgerhold:"unique"`
	Source    string
	Ticker    string
	Month     string
	Attempts  int
	LastError string
	FailedAt  time.Time
}
