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

// EventStorage implements the EventStorage interface for Badger
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or replaces an event by ID
func (s *EventStorage) Upsert(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		return fmt.Errorf("event ID is required")
	}

	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}

	if err := s.db.Store().Upsert(event.ID, event); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by its ID
func (s *EventStorage) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := s.db.Store().Get(id, &event); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

// FindByCanonicalKey retrieves the event matching the dedup key. The day
// component cannot be matched with an index query, so candidates narrowed by
// the indexed fields are filtered in memory.
func (s *EventStorage) FindByCanonicalKey(ctx context.Context, key models.CanonicalKey) (*models.Event, error) {
	var events []models.Event
	query := badgerhold.Where("Type").Eq(key.Type).And("SourceKey").Eq(key.SourceKey)
	if key.Ticker != "" {
		query = badgerhold.Where("Ticker").Eq(key.Ticker).Index("Ticker").
			And("Type").Eq(key.Type).And("SourceKey").Eq(key.SourceKey)
	}

	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}

	for i := range events {
		if events[i].CanonicalKey() == key {
			return &events[i], nil
		}
	}
	return nil, interfaces.ErrNotFound
}

// Query returns events matching the filter, ordered by event_date ascending
func (s *EventStorage) Query(ctx context.Context, filter interfaces.EventFilter) ([]*models.Event, error) {
	query := badgerhold.Where("ID").Ne("")

	if filter.Ticker != "" {
		query = badgerhold.Where("Ticker").Eq(filter.Ticker).Index("Ticker")
	} else if filter.MacroOnly {
		query = badgerhold.Where("Ticker").Eq("")
	}

	if len(filter.Types) > 0 {
		types := make([]interface{}, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = t
		}
		query = query.And("Type").In(types...)
	}
	if filter.Status != "" {
		query = query.And("Status").Eq(filter.Status)
	}
	if filter.From != nil {
		query = query.And("EventDate").Ge(*filter.From)
	}
	if filter.To != nil {
		query = query.And("EventDate").Lt(*filter.To)
	}

	query = query.SortBy("EventDate")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var events []models.Event
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	result := make([]*models.Event, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

// UpdateSummary persists a generated summary and its fingerprint. Event
// content fields and UpdatedAt are deliberately left alone so that summary
// generation never looks like a content change.
func (s *EventStorage) UpdateSummary(ctx context.Context, id string, level models.SummaryLevel, text, fingerprint string) error {
	var event models.Event
	if err := s.db.Store().Get(id, &event); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to get event: %w", err)
	}

	switch level {
	case models.SummaryDetail:
		event.AIDetail = text
		event.AIDetailFingerprint = fingerprint
	default:
		event.AISummary = text
		event.AISummaryFingerprint = fingerprint
	}

	if err := s.db.Store().Upsert(id, &event); err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	return nil
}

// DeleteCompletedBefore purges completed events older than the cutoff
func (s *EventStorage) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var events []models.Event
	query := badgerhold.Where("Status").Eq(models.StatusCompleted).And("EventDate").Lt(cutoff)
	if err := s.db.Store().Find(&events, query); err != nil {
		return 0, fmt.Errorf("failed to find expired events: %w", err)
	}

	deleted := 0
	for i := range events {
		if err := s.db.Store().Delete(events[i].ID, &models.Event{}); err != nil {
			s.logger.Warn().Str("event_id", events[i].ID).Err(err).Msg("Failed to delete expired event")
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Count returns the total number of stored events
func (s *EventStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Event{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}
