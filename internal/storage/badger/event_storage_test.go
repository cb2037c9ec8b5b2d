package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	manager, err := NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return manager
}

func testEvent(id, ticker string, eventType models.EventType, date time.Time) *models.Event {
	return &models.Event{
		ID:         id,
		Ticker:     ticker,
		Type:       eventType,
		EventDate:  date,
		Title:      ticker + " Test Event",
		Importance: models.ImportanceMedium,
		Status:     models.StatusUpcoming,
		Source:     "test",
		SourceKey:  string(eventType) + ":" + id,
	}
}

func TestEventStorage_UpsertAndGet(t *testing.T) {
	manager := newTestManager(t)
	store := manager.EventStorage()
	ctx := context.Background()

	event := testEvent("evt_1", "AAPL", models.EventTypeEarnings, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Upsert(ctx, event))

	got, err := store.GetByID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// Upsert without ID is rejected
	assert.Error(t, store.Upsert(ctx, &models.Event{Ticker: "AAPL"}))
}

func TestEventStorage_FindByCanonicalKey(t *testing.T) {
	manager := newTestManager(t)
	store := manager.EventStorage()
	ctx := context.Background()

	date := time.Date(2026, 2, 10, 21, 0, 0, 0, time.UTC)
	event := testEvent("evt_1", "AAPL", models.EventTypeEarnings, date)
	require.NoError(t, store.Upsert(ctx, event))

	got, err := store.FindByCanonicalKey(ctx, event.CanonicalKey())
	require.NoError(t, err)
	assert.Equal(t, "evt_1", got.ID)

	// Same key shape but different day misses
	other := event.CanonicalKey()
	other.Day = "2026-02-11"
	_, err = store.FindByCanonicalKey(ctx, other)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	// Macro events have no ticker
	macro := testEvent("evt_2", "", models.EventTypeMacro, date)
	require.NoError(t, store.Upsert(ctx, macro))
	got, err = store.FindByCanonicalKey(ctx, macro.CanonicalKey())
	require.NoError(t, err)
	assert.Equal(t, "evt_2", got.ID)
}

func TestEventStorage_Query(t *testing.T) {
	manager := newTestManager(t)
	store := manager.EventStorage()
	ctx := context.Background()

	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, testEvent("evt_1", "AAPL", models.EventTypeEarnings, base.AddDate(0, 0, 2))))
	require.NoError(t, store.Upsert(ctx, testEvent("evt_2", "AAPL", models.EventTypeFiling, base)))
	require.NoError(t, store.Upsert(ctx, testEvent("evt_3", "MSFT", models.EventTypeEarnings, base.AddDate(0, 0, 1))))
	require.NoError(t, store.Upsert(ctx, testEvent("evt_4", "", models.EventTypeMacro, base)))

	// Ticker filter, date-ascending order
	events, err := store.Query(ctx, interfaces.EventFilter{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt_2", events[0].ID)
	assert.Equal(t, "evt_1", events[1].ID)

	// Type filter
	events, err = store.Query(ctx, interfaces.EventFilter{Types: []models.EventType{models.EventTypeEarnings}})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// Macro only
	events, err = store.Query(ctx, interfaces.EventFilter{MacroOnly: true})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_4", events[0].ID)

	// Window: From inclusive, To exclusive
	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 2)
	events, err = store.Query(ctx, interfaces.EventFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_3", events[0].ID)

	// Limit
	events, err = store.Query(ctx, interfaces.EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestEventStorage_UpdateSummary(t *testing.T) {
	manager := newTestManager(t)
	store := manager.EventStorage()
	ctx := context.Background()

	event := testEvent("evt_1", "AAPL", models.EventTypeEarnings, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	event.UpdatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, event))

	require.NoError(t, store.UpdateSummary(ctx, "evt_1", models.SummaryShort, "short text", "fp-short"))
	require.NoError(t, store.UpdateSummary(ctx, "evt_1", models.SummaryDetail, "detail text", "fp-detail"))

	got, err := store.GetByID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, "short text", got.AISummary)
	assert.Equal(t, "fp-short", got.AISummaryFingerprint)
	assert.Equal(t, "detail text", got.AIDetail)
	assert.Equal(t, "fp-detail", got.AIDetailFingerprint)

	// Summary writes never look like content changes
	assert.Equal(t, event.UpdatedAt, got.UpdatedAt)

	assert.ErrorIs(t, store.UpdateSummary(ctx, "missing", models.SummaryShort, "x", "y"), interfaces.ErrNotFound)
}

func TestEventStorage_DeleteCompletedBefore(t *testing.T) {
	manager := newTestManager(t)
	store := manager.EventStorage()
	ctx := context.Background()

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	old := testEvent("evt_old", "AAPL", models.EventTypeEarnings, cutoff.AddDate(0, 0, -10))
	old.Status = models.StatusCompleted
	oldUpcoming := testEvent("evt_upcoming", "MSFT", models.EventTypeEarnings, cutoff.AddDate(0, 0, -10))
	recent := testEvent("evt_recent", "AAPL", models.EventTypeEarnings, cutoff.AddDate(0, 0, 5))
	recent.Status = models.StatusCompleted

	require.NoError(t, store.Upsert(ctx, old))
	require.NoError(t, store.Upsert(ctx, oldUpcoming))
	require.NoError(t, store.Upsert(ctx, recent))

	deleted, err := store.DeleteCompletedBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Upcoming events survive the purge even when old
	_, err = store.GetByID(ctx, "evt_upcoming")
	assert.NoError(t, err)
	_, err = store.GetByID(ctx, "evt_old")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
