package interfaces

import (
	"context"

	"github.com/ihaichao/stock-pulse/internal/models"
)

// SourceAdapter normalizes one upstream data source into the common raw
// record shape. Adapters are fetch-only: they never write to storage, and a
// fetch for the same scope is idempotent modulo upstream corrections.
type SourceAdapter interface {
	// Name returns the stable source identifier tagged onto every record
	Name() string

	// Fetch retrieves and normalizes records for the scope. Individual
	// malformed records are dropped and logged; batch-level failures are
	// reported through the source error taxonomy (rate-limited,
	// unauthorized, unreachable, malformed response).
	Fetch(ctx context.Context, scope models.Scope) ([]models.RawEventRecord, error)
}
