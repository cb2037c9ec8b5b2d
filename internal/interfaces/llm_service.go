package interfaces

import (
	"context"

	"github.com/ihaichao/stock-pulse/internal/models"
)

// LLMService generates text from a prompt. Implementations wrap a concrete
// provider (Claude, Gemini) with timeout and rate limiting; callers treat
// generation as an opaque prompt -> text function.
type LLMService interface {
	// Generate produces a completion for the prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// ProviderName returns the provider identifier for logging
	ProviderName() string

	// Close releases provider resources
	Close() error
}

// SummaryService maintains AI-generated event summaries memoized by content
// fingerprint
type SummaryService interface {
	// GetSummary returns the summary text for an event at the given level,
	// generating and persisting it when the stored fingerprint is stale.
	// Generation failure is non-fatal: the prior text (possibly empty) is
	// returned together with a nil error.
	GetSummary(ctx context.Context, event *models.Event, level models.SummaryLevel) (string, error)

	// EnsureShortSummaries eagerly generates short summaries for events
	// whose fingerprint changed. Failures are logged, never propagated.
	EnsureShortSummaries(ctx context.Context, events []*models.Event)
}
