// Package summary maintains AI-generated event summaries, memoized by a
// content fingerprint so a summary is only regenerated when the fields it
// was derived from actually changed.
package summary

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

// Service implements the SummaryService interface. Short summaries are
// refreshed eagerly after reconciliation; detail summaries are generated
// lazily on first read.
type Service struct {
	events interfaces.EventStorage
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewService creates a summary service. A nil llm disables generation:
// reads then return whatever text is already stored.
func NewService(events interfaces.EventStorage, llm interfaces.LLMService, logger arbor.ILogger) *Service {
	return &Service{
		events: events,
		llm:    llm,
		logger: logger,
	}
}

// GetSummary returns the summary text for an event at the given level. A
// stored summary whose fingerprint matches the event's current content is
// returned as-is; otherwise a new one is generated and persisted. Generation
// failure is non-fatal: the prior (possibly stale, possibly empty) text is
// returned so the read path never breaks on a provider outage.
func (s *Service) GetSummary(ctx context.Context, event *models.Event, level models.SummaryLevel) (string, error) {
	stored, storedFingerprint := storedSummary(event, level)
	fingerprint := event.Fingerprint(level)

	if stored != "" && storedFingerprint == fingerprint {
		return stored, nil
	}
	if s.llm == nil {
		return stored, nil
	}

	text, err := s.llm.Generate(ctx, buildPrompt(event, level))
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_id", event.ID).
			Str("level", string(level)).
			Str("provider", s.llm.ProviderName()).
			Msg("Summary generation failed, serving prior text")
		return stored, nil
	}

	if err := s.events.UpdateSummary(ctx, event.ID, level, text, fingerprint); err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().
				Err(err).
				Str("event_id", event.ID).
				Msg("Failed to persist summary")
		}
		return text, nil
	}

	// Keep the caller's copy coherent with what was persisted.
	switch level {
	case models.SummaryDetail:
		event.AIDetail = text
		event.AIDetailFingerprint = fingerprint
	default:
		event.AISummary = text
		event.AISummaryFingerprint = fingerprint
	}

	s.logger.Debug().
		Str("event_id", event.ID).
		Str("level", string(level)).
		Int("length", len(text)).
		Msg("Summary generated")

	return text, nil
}

// EnsureShortSummaries eagerly generates short summaries for events whose
// fingerprint changed. Failures are logged and skipped; the next read or
// backfill pass retries.
func (s *Service) EnsureShortSummaries(ctx context.Context, events []*models.Event) {
	if s.llm == nil {
		return
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.GetSummary(ctx, event, models.SummaryShort); err != nil {
			s.logger.Warn().
				Err(err).
				Str("event_id", event.ID).
				Msg("Short summary refresh failed")
		}
	}
}

func storedSummary(event *models.Event, level models.SummaryLevel) (text, fingerprint string) {
	if level == models.SummaryDetail {
		return event.AIDetail, event.AIDetailFingerprint
	}
	return event.AISummary, event.AISummaryFingerprint
}

var _ interfaces.SummaryService = (*Service)(nil)
