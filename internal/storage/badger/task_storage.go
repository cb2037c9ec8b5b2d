package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

// Save inserts or replaces a refresh task by key
func (s *TaskStorage) Save(ctx context.Context, task *models.RefreshTask) error {
	if task.Key == "" {
		return fmt.Errorf("task key is required")
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	// State transitions stamp UpdatedAt themselves; only default it.
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}

	if err := s.db.Store().Upsert(task.Key, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetByKey retrieves a task, returning ErrNotFound when absent
func (s *TaskStorage) GetByKey(ctx context.Context, key string) (*models.RefreshTask, error) {
	var task models.RefreshTask
	if err := s.db.Store().Get(key, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// Due returns pending tasks whose due time has passed, oldest first
func (s *TaskStorage) Due(ctx context.Context, now time.Time) ([]*models.RefreshTask, error) {
	var tasks []models.RefreshTask
	query := badgerhold.Where("State").Eq(models.TaskPending).Index("State").
		And("DueAt").Le(now).SortBy("DueAt")
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to find due tasks: %w", err)
	}

	result := make([]*models.RefreshTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

// List returns all refresh tasks
func (s *TaskStorage) List(ctx context.Context) ([]*models.RefreshTask, error) {
	var tasks []models.RefreshTask
	if err := s.db.Store().Find(&tasks, badgerhold.Where("Key").Ne("").SortBy("Key")); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	result := make([]*models.RefreshTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

// Delete removes a task by key
func (s *TaskStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.Store().Delete(key, &models.RefreshTask{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// CancelPendingForTicker removes pending tasks for a ticker. Running tasks
// are left to finish on their own.
func (s *TaskStorage) CancelPendingForTicker(ctx context.Context, ticker string) (int, error) {
	var tasks []models.RefreshTask
	query := badgerhold.Where("Ticker").Eq(ticker).Index("Ticker").
		And("State").Eq(models.TaskPending)
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return 0, fmt.Errorf("failed to find tasks for ticker: %w", err)
	}

	cancelled := 0
	for i := range tasks {
		if err := s.db.Store().Delete(tasks[i].Key, &models.RefreshTask{}); err != nil {
			s.logger.Warn().Str("task_key", tasks[i].Key).Err(err).Msg("Failed to cancel task")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// SaveDeadLetter records a task that exhausted its retry budget
func (s *TaskStorage) SaveDeadLetter(ctx context.Context, letter *models.DeadLetter) error {
	if letter.Key == "" {
		return fmt.Errorf("dead letter key is required")
	}
	if err := s.db.Store().Upsert("dead:"+letter.Key, letter); err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns all dead letters, most recent first
func (s *TaskStorage) ListDeadLetters(ctx context.Context) ([]*models.DeadLetter, error) {
	var letters []models.DeadLetter
	query := badgerhold.Where("Key").Ne("").SortBy("FailedAt").Reverse()
	if err := s.db.Store().Find(&letters, query); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	result := make([]*models.DeadLetter, len(letters))
	for i := range letters {
		result[i] = &letters[i]
	}
	return result, nil
}
