package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
	badgerstore "github.com/ihaichao/stock-pulse/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, interfaces.EventStorage) {
	t.Helper()

	manager, err := badgerstore.NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return NewService(manager.EventStorage(), nil, common.GetLogger()), manager.EventStorage()
}

func floatPtr(v float64) *float64 { return &v }

func earningsRecord(ticker string, date time.Time) models.RawEventRecord {
	return models.RawEventRecord{
		Source:      "eodhd",
		SourceKey:   "earnings:" + ticker + ":" + date.UTC().Format("2006-01-02"),
		Ticker:      ticker,
		Type:        models.EventTypeEarnings,
		EventDate:   date,
		Title:       ticker + " Earnings Report",
		Importance:  models.ImportanceHigh,
		EpsEstimate: floatPtr(2.10),
	}
}

func TestReconcile_CreatesNewEvent(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	result, err := service.Reconcile(ctx, []models.RawEventRecord{earningsRecord("AAPL", date)})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	require.Len(t, result.Changed, 1)

	event := result.Changed[0]
	assert.Contains(t, event.ID, "evt_")
	assert.Equal(t, models.StatusUpcoming, event.Status)
	assert.Equal(t, models.ImportanceHigh, event.Importance)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconcile_Idempotent(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	record := earningsRecord("AAPL", date)

	first, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)
	createdID := first.Changed[0].ID
	stored, err := store.GetByID(ctx, createdID)
	require.NoError(t, err)
	updatedAt := stored.UpdatedAt

	// Same batch again: no new event, no rewrite, no UpdatedAt churn
	second, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Unchanged)
	assert.Empty(t, second.Changed)

	stored, err = store.GetByID(ctx, createdID)
	require.NoError(t, err)
	assert.Equal(t, updatedAt, stored.UpdatedAt)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconcile_ActualsArriveAndComplete(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	record := earningsRecord("AAPL", date)

	first, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	eventID := first.Changed[0].ID

	// Next refresh reports the actuals
	record.EpsActual = floatPtr(2.25)
	second, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Updated)

	stored, err := store.GetByID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, stored.EpsActual)
	assert.Equal(t, 2.25, *stored.EpsActual)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	// The estimate survives the merge
	require.NotNil(t, stored.EpsEstimate)
	assert.Equal(t, 2.10, *stored.EpsEstimate)
}

func TestReconcile_ActualsNeverNulledBack(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	record := earningsRecord("AAPL", date)
	record.EpsActual = floatPtr(2.25)

	first, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	eventID := first.Changed[0].ID

	// Upstream stops reporting the actual; the stored value must survive
	record.EpsActual = nil
	_, err = service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)

	stored, err := store.GetByID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, stored.EpsActual)
	assert.Equal(t, 2.25, *stored.EpsActual)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestReconcile_SeparateDaysSeparateEvents(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	q1 := earningsRecord("AAPL", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	q2 := earningsRecord("AAPL", time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC))

	result, err := service.Reconcile(ctx, []models.RawEventRecord{q1, q2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReconcile_FilingURLCorrection(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	record := models.RawEventRecord{
		Source:     "edgar",
		SourceKey:  "0000320193-26-000042",
		Ticker:     "AAPL",
		Type:       models.EventTypeFiling,
		EventDate:  time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Title:      "AAPL 8-K Filing",
		FilingType: "8-K",
		FilingURL:  "https://www.sec.gov/Archives/edgar/data/320193/old.htm",
	}

	first, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	eventID := first.Changed[0].ID

	// Upstream corrects only the document link
	record.FilingURL = "https://www.sec.gov/Archives/edgar/data/320193/corrected.htm"
	second, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 0, second.Unchanged)

	stored, err := store.GetByID(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, record.FilingURL, stored.FilingURL)
}

func TestReconcile_MacroActualArrivesAndCompletes(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	record := models.RawEventRecord{
		Source:         "finnhub",
		SourceKey:      "macro:cpi:2026-03-12",
		Type:           models.EventTypeMacro,
		EventDate:      time.Date(2026, 3, 12, 12, 30, 0, 0, time.UTC),
		Title:          "CPI (YoY)",
		MacroEventName: "CPI (YoY)",
		Consensus:      "3.0%",
	}

	first, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)
	eventID := first.Changed[0].ID
	stored, err := store.GetByID(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpcoming, stored.Status)

	// The data print arrives on the next refresh
	record.ActualValue = "3.1%"
	second, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Updated)

	stored, err = store.GetByID(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, "3.1%", stored.ActualValue)
	assert.Equal(t, "3.0%", stored.Consensus)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestReconcile_CrossSourceFieldPriority(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	record := earningsRecord("AAPL", date)

	first, err := service.Reconcile(ctx, []models.RawEventRecord{record})
	require.NoError(t, err)
	eventID := first.Changed[0].ID

	// A lower-priority source reports the same occurrence with a conflicting
	// title but also carries fields the primary source left empty.
	other := models.RawEventRecord{
		Source:      "finnhub",
		SourceKey:   record.SourceKey,
		Ticker:      "AAPL",
		Type:        models.EventTypeEarnings,
		EventDate:   date,
		Title:       "Apple Inc Q1 Results",
		Description: "Quarterly results release",
	}
	second, err := service.Reconcile(ctx, []models.RawEventRecord{other})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Updated)

	stored, err := store.GetByID(ctx, eventID)
	require.NoError(t, err)
	// Title stays with the higher-ranked earnings source
	assert.Equal(t, "AAPL Earnings Report", stored.Title)
	// The gap it left is filled
	assert.Equal(t, "Quarterly results release", stored.Description)
}

func TestForceCompleteOverdue(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	now := time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC)

	// Earnings 25h overdue: past the 24h grace period
	overdue := earningsRecord("AAPL", now.Add(-25*time.Hour))
	// Earnings 2h overdue: still inside the grace period
	inGrace := earningsRecord("MSFT", now.Add(-2*time.Hour))

	_, err := service.Reconcile(ctx, []models.RawEventRecord{overdue, inGrace})
	require.NoError(t, err)

	completed, err := service.ForceCompleteOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "AAPL", completed[0].Ticker)
	assert.Equal(t, models.StatusCompleted, completed[0].Status)
	// Actuals stay null on a force-complete
	assert.Nil(t, completed[0].EpsActual)

	events, err := store.Query(ctx, interfaces.EventFilter{Ticker: "MSFT"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.StatusUpcoming, events[0].Status)
}
