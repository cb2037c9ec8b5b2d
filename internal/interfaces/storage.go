package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ihaichao/stock-pulse/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrKeyNotFound is returned when a key/value pair does not exist
var ErrKeyNotFound = errors.New("key not found")

// ErrLockBusy is returned when another holder owns an unexpired lease.
// It is not an error condition for callers: the task is simply deferred.
var ErrLockBusy = errors.New("lock busy")

// EventFilter narrows an event store query. Zero values mean "no constraint".
type EventFilter struct {
	Ticker    string
	Types     []models.EventType
	Status    models.EventStatus
	From      *time.Time
	To        *time.Time
	MacroOnly bool // Only events without a ticker
	Limit     int
}

// EventStorage is the durable store for canonical events
type EventStorage interface {
	// Upsert inserts or replaces an event by ID
	Upsert(ctx context.Context, event *models.Event) error

	// GetByID retrieves an event, returning ErrNotFound when absent
	GetByID(ctx context.Context, id string) (*models.Event, error)

	// FindByCanonicalKey retrieves the event matching the dedup key, or ErrNotFound
	FindByCanonicalKey(ctx context.Context, key models.CanonicalKey) (*models.Event, error)

	// Query returns events matching the filter, ordered by event_date ascending
	Query(ctx context.Context, filter EventFilter) ([]*models.Event, error)

	// UpdateSummary persists a generated summary and its fingerprint without
	// touching the event's content fields or UpdatedAt
	UpdateSummary(ctx context.Context, id string, level models.SummaryLevel, text, fingerprint string) error

	// DeleteCompletedBefore purges completed events with event_date older than
	// the cutoff, returning the number removed
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the total number of stored events
	Count(ctx context.Context) (int, error)
}

// TaskStorage persists refresh tasks and dead letters
type TaskStorage interface {
	Save(ctx context.Context, task *models.RefreshTask) error
	GetByKey(ctx context.Context, key string) (*models.RefreshTask, error)
	Due(ctx context.Context, now time.Time) ([]*models.RefreshTask, error)
	List(ctx context.Context) ([]*models.RefreshTask, error)
	Delete(ctx context.Context, key string) error

	// CancelPendingForTicker removes pending tasks for a ticker whose
	// subscription disappeared. Running tasks are left to finish.
	CancelPendingForTicker(ctx context.Context, ticker string) (int, error)

	SaveDeadLetter(ctx context.Context, letter *models.DeadLetter) error
	ListDeadLetters(ctx context.Context) ([]*models.DeadLetter, error)
}

// SubscriptionStorage reads and writes portfolio subscriptions
type SubscriptionStorage interface {
	Add(ctx context.Context, sub *models.PortfolioSubscription) error
	Remove(ctx context.Context, subscriber, ticker string) error

	// ListTickers returns the union of tickers across all subscribers
	ListTickers(ctx context.Context) ([]string, error)

	// ListBySubscriber returns one subscriber's subscriptions
	ListBySubscriber(ctx context.Context, subscriber string) ([]*models.PortfolioSubscription, error)
}

// KeyValuePair represents a stored key/value pair with metadata
type KeyValuePair struct {
	Key         string `badgerhold:"unique"`
	Value       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// KeyValueStorage is a small KV store used for API keys and operator settings
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value, description string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// Lease is a held lock: an explicit value with an owner token and an expiry,
// renewable while work is in flight. A crashed worker's lease simply expires
// and the key becomes reclaimable.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// LockProvider hands out per-key leases enforcing at-most-one-concurrent-
// refresh-per-key across workers
type LockProvider interface {
	// Acquire obtains the lease for a key, or ErrLockBusy if an unexpired
	// lease is held by someone else
	Acquire(ctx context.Context, key string, lease time.Duration) (*Lease, error)

	// Renew extends a held lease; fails if the lease expired or was taken over
	Renew(ctx context.Context, lease *Lease) error

	// Release frees the lease. Releasing an expired or lost lease is a no-op.
	Release(ctx context.Context, lease *Lease) error
}

// StorageManager provides access to all storage backends
type StorageManager interface {
	EventStorage() EventStorage
	TaskStorage() TaskStorage
	SubscriptionStorage() SubscriptionStorage
	KeyValueStorage() KeyValueStorage
	LockProvider() LockProvider
	Close() error
}
