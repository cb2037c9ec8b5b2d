// Package reconciler owns the write path: raw records from source adapters
// are deduplicated against stored events by canonical key and merged
// in place, so one real-world occurrence is always one stored event no
// matter how many refreshes report it.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
	"github.com/ihaichao/stock-pulse/internal/sources"
)

// Result reports what a reconciliation run did.
type Result struct {
	Created   int
	Updated   int
	Unchanged int

	// Changed holds every event that was inserted or materially modified,
	// in input order. Consumers use it for cache invalidation and eager
	// summary refresh.
	Changed []*models.Event
}

// Service reconciles raw source records into canonical events.
type Service struct {
	events interfaces.EventStorage
	bus    interfaces.EventService
	logger arbor.ILogger
	now    func() time.Time
}

// NewService creates a reconciler over the given event store. The bus is
// optional; when present, every run that changed something publishes an
// events-upserted notification.
func NewService(events interfaces.EventStorage, bus interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		events: events,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Reconcile merges a batch of raw records into the event store. Running the
// same batch twice leaves the store byte-identical: unchanged events are not
// rewritten, so their UpdatedAt stamps survive.
func (s *Service) Reconcile(ctx context.Context, records []models.RawEventRecord) (*Result, error) {
	result := &Result{}
	now := s.now().UTC()

	for i := range records {
		record := &records[i]
		if err := s.reconcileOne(ctx, record, now, result); err != nil {
			return result, fmt.Errorf("failed to reconcile record %s: %w", record.CanonicalKey(), err)
		}
	}

	s.logger.Debug().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Msg("Reconciliation run complete")

	if s.bus != nil && len(result.Changed) > 0 {
		if err := s.bus.PublishSync(ctx, interfaces.Event{
			Type:    interfaces.EventEventsUpserted,
			Payload: result.Changed,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Events-upserted notification failed")
		}
	}

	return result, nil
}

func (s *Service) reconcileOne(ctx context.Context, record *models.RawEventRecord, now time.Time, result *Result) error {
	existing, err := s.events.FindByCanonicalKey(ctx, record.CanonicalKey())
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return err
	}

	if existing == nil {
		event := s.newEvent(record, now)
		if err := s.events.Upsert(ctx, event); err != nil {
			return err
		}
		result.Created++
		result.Changed = append(result.Changed, event)
		return nil
	}

	before := existing.Fingerprint(models.SummaryDetail)
	merge(existing, record)
	if existing.Fingerprint(models.SummaryDetail) == before {
		result.Unchanged++
		return nil
	}

	existing.UpdatedAt = now
	if len(record.Raw) > 0 {
		existing.RawData = record.Raw
	}
	if err := s.events.Upsert(ctx, existing); err != nil {
		return err
	}
	result.Updated++
	result.Changed = append(result.Changed, existing)
	return nil
}

// ForceCompleteOverdue flips events past their grace period to completed
// even though actuals never arrived, so stale upcoming entries cannot linger
// on the timeline forever. Returns the force-completed events.
func (s *Service) ForceCompleteOverdue(ctx context.Context, now time.Time) ([]*models.Event, error) {
	cutoff := now.UTC()
	upcoming, err := s.events.Query(ctx, interfaces.EventFilter{
		Status: models.StatusUpcoming,
		To:     &cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue events: %w", err)
	}

	var completed []*models.Event
	for _, event := range upcoming {
		grace := models.GracePeriod(event.Type)
		if now.Before(event.EventDate.Add(grace)) {
			continue
		}

		event.Status = models.StatusCompleted
		event.UpdatedAt = now
		if err := s.events.Upsert(ctx, event); err != nil {
			return completed, fmt.Errorf("failed to force-complete event %s: %w", event.ID, err)
		}

		s.logger.Info().
			Str("event_id", event.ID).
			Str("ticker", event.Ticker).
			Str("event_type", string(event.Type)).
			Msg("Force-completed overdue event without actuals")
		completed = append(completed, event)
	}

	if s.bus != nil && len(completed) > 0 {
		if err := s.bus.PublishSync(ctx, interfaces.Event{
			Type:    interfaces.EventEventsUpserted,
			Payload: completed,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Events-upserted notification failed")
		}
	}

	return completed, nil
}

func (s *Service) newEvent(record *models.RawEventRecord, now time.Time) *models.Event {
	event := &models.Event{
		ID:          common.NewEventID(),
		Ticker:      record.Ticker,
		Type:        record.Type,
		EventDate:   record.EventDate,
		Title:       record.Title,
		Description: record.Description,
		Importance:  record.Importance,
		Status:      models.StatusUpcoming,

		EpsEstimate:     record.EpsEstimate,
		EpsActual:       record.EpsActual,
		RevenueEstimate: record.RevenueEstimate,
		RevenueActual:   record.RevenueActual,
		ReportTime:      record.ReportTime,

		MacroEventName: record.MacroEventName,
		Consensus:      record.Consensus,
		ActualValue:    record.ActualValue,
		PreviousValue:  record.PreviousValue,

		FilingType: record.FilingType,
		FilingURL:  record.FilingURL,

		AnalystFirm: record.AnalystFirm,
		FromRating:  record.FromRating,
		ToRating:    record.ToRating,
		TargetPrice: record.TargetPrice,

		Source:    record.Source,
		SourceKey: record.SourceKey,
		RawData:   record.Raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if record.Importance == "" {
		event.Importance = models.ImportanceMedium
	}
	if record.Status == models.StatusCompleted || event.HasActuals() {
		event.Status = models.StatusCompleted
	}

	return event
}

// fieldPriority ranks sources per field group. When two sources disagree on
// a populated field the higher-ranked source's value stands; a lower-ranked
// source can still fill fields the higher-ranked one left empty, and a
// source always refreshes its own values.
var fieldPriority = map[string][]string{
	"title":       {sources.SourceEodhd, sources.SourceEdgar, sources.SourceFinnhub},
	"description": {sources.SourceEodhd, sources.SourceEdgar, sources.SourceFinnhub},
	"importance":  {sources.SourceEodhd, sources.SourceFinnhub, sources.SourceEdgar},
	"event_date":  {sources.SourceEodhd, sources.SourceEdgar, sources.SourceFinnhub},
	"earnings":    {sources.SourceEodhd, sources.SourceFinnhub},
	"macro":       {sources.SourceFinnhub},
	"filing":      {sources.SourceEdgar, sources.SourceFinnhub},
	"analyst":     {sources.SourceFinnhub, sources.SourceEodhd},
}

func rank(field, source string) int {
	order := fieldPriority[field]
	for i, s := range order {
		if s == source {
			return i
		}
	}
	return len(order)
}

// wins reports whether the incoming source may overwrite a value the event's
// owning source already populated for the given field.
func wins(field, incoming, current string) bool {
	if incoming == current {
		return true
	}
	return rank(field, incoming) <= rank(field, current)
}

// merge folds an incoming record into a stored event. Empty stored fields
// fill from any source; populated ones only yield per fieldPriority.
// Actuals only ever fill in, an upstream that stops reporting an actual
// cannot null it back out. Status moves upcoming to completed and never
// back.
func merge(event *models.Event, record *models.RawEventRecord) {
	src, cur := record.Source, event.Source

	setStr := func(field string, dst *string, v string) {
		if v != "" && (*dst == "" || wins(field, src, cur)) {
			*dst = v
		}
	}
	setFloat := func(field string, dst **float64, v *float64) {
		if v != nil && (*dst == nil || wins(field, src, cur)) {
			*dst = v
		}
	}
	setInt := func(field string, dst **int64, v *int64) {
		if v != nil && (*dst == nil || wins(field, src, cur)) {
			*dst = v
		}
	}

	setStr("title", &event.Title, record.Title)
	setStr("description", &event.Description, record.Description)
	if record.Importance != "" && (event.Importance == "" || wins("importance", src, cur)) {
		event.Importance = record.Importance
	}
	if !record.EventDate.IsZero() && (event.EventDate.IsZero() || wins("event_date", src, cur)) {
		event.EventDate = record.EventDate
	}

	setFloat("earnings", &event.EpsEstimate, record.EpsEstimate)
	setFloat("earnings", &event.EpsActual, record.EpsActual)
	setInt("earnings", &event.RevenueEstimate, record.RevenueEstimate)
	setInt("earnings", &event.RevenueActual, record.RevenueActual)
	setStr("earnings", &event.ReportTime, record.ReportTime)

	setStr("macro", &event.MacroEventName, record.MacroEventName)
	setStr("macro", &event.Consensus, record.Consensus)
	setStr("macro", &event.ActualValue, record.ActualValue)
	setStr("macro", &event.PreviousValue, record.PreviousValue)

	setStr("filing", &event.FilingType, record.FilingType)
	setStr("filing", &event.FilingURL, record.FilingURL)

	setStr("analyst", &event.AnalystFirm, record.AnalystFirm)
	setStr("analyst", &event.FromRating, record.FromRating)
	setStr("analyst", &event.ToRating, record.ToRating)
	setFloat("analyst", &event.TargetPrice, record.TargetPrice)

	if event.Status == models.StatusUpcoming && (record.Status == models.StatusCompleted || event.HasActuals()) {
		event.Status = models.StatusCompleted
	}
}
