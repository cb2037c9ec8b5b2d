package timeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
	badgerstore "github.com/ihaichao/stock-pulse/internal/storage/badger"
	"github.com/ihaichao/stock-pulse/internal/services/querycache"
)

var testNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()

	logger := common.GetLogger()
	config := &common.BadgerConfig{Path: t.TempDir()}
	manager, err := badgerstore.NewManager(logger, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	cache := querycache.NewCache(logger)
	svc := NewService(
		manager.EventStorage(),
		manager.SubscriptionStorage(),
		cache,
		nil,
		common.CacheConfig{},
		logger,
	)
	svc.now = func() time.Time { return testNow }
	return svc, manager
}

func seedEvent(t *testing.T, manager interfaces.StorageManager, ticker string, eventType models.EventType, date time.Time, importance models.Importance) *models.Event {
	t.Helper()

	event := &models.Event{
		ID:         common.NewEventID(),
		Ticker:     ticker,
		Type:       eventType,
		Title:      fmt.Sprintf("%s %s", ticker, eventType),
		EventDate:  date,
		Source:     "test",
		SourceKey:  fmt.Sprintf("%s-%s-%s", ticker, eventType, date.Format("2006-01-02")),
		Importance: importance,
		Status:     models.StatusUpcoming,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	if ticker == "" {
		event.Title = fmt.Sprintf("macro %s", date.Format("2006-01-02"))
	}
	require.NoError(t, manager.EventStorage().Upsert(context.Background(), event))
	return event
}

func subscribe(t *testing.T, manager interfaces.StorageManager, subscriber, ticker string) {
	t.Helper()
	require.NoError(t, manager.SubscriptionStorage().Add(context.Background(), &models.PortfolioSubscription{
		Subscriber: subscriber,
		Ticker:     ticker,
		CreatedAt:  testNow,
	}))
}

func TestGetUpcoming_FiltersToSubscribedPlusMacro(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	subscribe(t, manager, "alice", "AAPL")

	seedEvent(t, manager, "AAPL", models.EventTypeEarnings, testNow.Add(48*time.Hour), models.ImportanceHigh)
	seedEvent(t, manager, "MSFT", models.EventTypeEarnings, testNow.Add(48*time.Hour), models.ImportanceHigh)
	seedEvent(t, manager, "", models.EventTypeMacro, testNow.Add(24*time.Hour), models.ImportanceHigh)
	// Outside the seven day window.
	seedEvent(t, manager, "AAPL", models.EventTypeFiling, testNow.Add(9*24*time.Hour), models.ImportanceLow)

	events, err := svc.GetUpcoming(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, event := range events {
		assert.True(t, event.Ticker == "AAPL" || event.Ticker == "")
	}
}

func TestGetUpcoming_CachedPerSubscriber(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	subscribe(t, manager, "alice", "AAPL")
	seedEvent(t, manager, "AAPL", models.EventTypeEarnings, testNow.Add(24*time.Hour), models.ImportanceHigh)

	first, err := svc.GetUpcoming(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A new event lands but the cached answer is still served.
	seedEvent(t, manager, "AAPL", models.EventTypeFiling, testNow.Add(30*time.Hour), models.ImportanceLow)
	again, err := svc.GetUpcoming(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, again, 1)

	// A different subscriber misses the cache and sees their own view.
	other, err := svc.GetUpcoming(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetToday_UTCDayWindow(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	today := time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC)
	lateToday := time.Date(2026, 3, 10, 23, 45, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)

	seedEvent(t, manager, "AAPL", models.EventTypeEarnings, today, models.ImportanceHigh)
	seedEvent(t, manager, "MSFT", models.EventTypeEarnings, lateToday, models.ImportanceMedium)
	seedEvent(t, manager, "GOOG", models.EventTypeEarnings, tomorrow, models.ImportanceHigh)
	seedEvent(t, manager, "AMZN", models.EventTypeEarnings, yesterday, models.ImportanceHigh)

	events, err := svc.GetToday(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, event := range events {
		assert.Equal(t, "2026-03-10", event.EventDate.UTC().Format("2006-01-02"))
	}
}

func TestGetYesterday(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	seedEvent(t, manager, "AAPL", models.EventTypeEarnings, time.Date(2026, 3, 9, 13, 0, 0, 0, time.UTC), models.ImportanceHigh)
	seedEvent(t, manager, "MSFT", models.EventTypeEarnings, time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC), models.ImportanceHigh)

	events, err := svc.GetYesterday(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "AAPL", events[0].Ticker)
}

func TestGetByTicker_NormalizesAndCaches(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	seedEvent(t, manager, "AAPL", models.EventTypeEarnings, testNow.Add(24*time.Hour), models.ImportanceHigh)
	seedEvent(t, manager, "AAPL", models.EventTypeFiling, testNow.Add(-24*time.Hour), models.ImportanceMedium)
	seedEvent(t, manager, "MSFT", models.EventTypeEarnings, testNow.Add(24*time.Hour), models.ImportanceHigh)

	events, err := svc.GetByTicker(ctx, " aapl ")
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Served from cache on the second call even as new rows land.
	seedEvent(t, manager, "AAPL", models.EventTypeAnalyst, testNow.Add(72*time.Hour), models.ImportanceLow)
	again, err := svc.GetByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestGetByMonth_MacroOnly(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	seedEvent(t, manager, "", models.EventTypeMacro, time.Date(2026, 3, 18, 12, 30, 0, 0, time.UTC), models.ImportanceHigh)
	seedEvent(t, manager, "", models.EventTypeMacro, time.Date(2026, 4, 1, 12, 30, 0, 0, time.UTC), models.ImportanceHigh)
	seedEvent(t, manager, "AAPL", models.EventTypeEarnings, time.Date(2026, 3, 18, 12, 30, 0, 0, time.UTC), models.ImportanceHigh)

	events, err := svc.GetByMonth(ctx, time.Date(2026, 3, 25, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeMacro, events[0].Type)
	assert.Equal(t, time.March, events[0].EventDate.UTC().Month())
}

func TestGetEvent_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetEvent(context.Background(), "evt_missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestGetDailySummary_BucketsAndOrders(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	subscribe(t, manager, "alice", "AAPL")

	day := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	seedEvent(t, manager, "AAPL", models.EventTypeEarnings, day, models.ImportanceMedium)
	seedEvent(t, manager, "", models.EventTypeMacro, day, models.ImportanceHigh)
	seedEvent(t, manager, "MSFT", models.EventTypeEarnings, day, models.ImportanceHigh) // not subscribed

	summary, err := svc.GetDailySummary(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, "2026-03-10", summary.Date)
	assert.Equal(t, 2, summary.TotalEvents)
	require.Len(t, summary.PortfolioEvents, 1)
	assert.Equal(t, "AAPL", summary.PortfolioEvents[0].Ticker)
	require.Len(t, summary.MacroEvents, 1)

	// The unsubscribed MSFT event is excluded from the high importance count.
	assert.Equal(t, 1, summary.HighImportanceCount)

	// Combined list is ordered by importance.
	require.Len(t, summary.Events, 2)
	assert.Equal(t, models.ImportanceHigh, summary.Events[0].Importance)
	assert.Equal(t, models.ImportanceMedium, summary.Events[1].Importance)
}

func TestGetDailySummary_Cached(t *testing.T) {
	svc, manager := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetDailySummary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, first.TotalEvents)

	// A new event lands but the cached digest is still served.
	seedEvent(t, manager, "", models.EventTypeMacro, testNow, models.ImportanceHigh)

	again, err := svc.GetDailySummary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, again.TotalEvents)
}
