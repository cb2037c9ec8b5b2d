package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
	"github.com/ihaichao/stock-pulse/internal/services/querycache"
	"github.com/ihaichao/stock-pulse/internal/services/timeline"
	badgerstore "github.com/ihaichao/stock-pulse/internal/storage/badger"
)

func newEventHandler(t *testing.T) (*EventHandler, interfaces.StorageManager) {
	t.Helper()

	logger := common.GetLogger()
	config := &common.BadgerConfig{Path: t.TempDir()}
	manager, err := badgerstore.NewManager(logger, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	timelineService := timeline.NewService(
		manager.EventStorage(),
		manager.SubscriptionStorage(),
		querycache.NewCache(logger),
		nil,
		common.CacheConfig{},
		logger,
	)
	return NewEventHandler(timelineService, logger), manager
}

func storeEvent(t *testing.T, manager interfaces.StorageManager, ticker string, date time.Time) *models.Event {
	t.Helper()

	event := &models.Event{
		ID:         common.NewEventID(),
		Ticker:     ticker,
		Type:       models.EventTypeEarnings,
		Title:      ticker + " Earnings Report",
		EventDate:  date,
		Importance: models.ImportanceHigh,
		Status:     models.StatusUpcoming,
		Source:     "test",
		SourceKey:  ticker + ":" + date.Format("2006-01-02"),
	}
	require.NoError(t, manager.EventStorage().Upsert(context.Background(), event))
	return event
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestTodayHandler(t *testing.T) {
	handler, manager := newEventHandler(t)
	storeEvent(t, manager, "AAPL", time.Now().UTC())

	rec := httptest.NewRecorder()
	handler.TodayHandler(rec, httptest.NewRequest("GET", "/api/events/today", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestTodayHandler_MethodNotAllowed(t *testing.T) {
	handler, _ := newEventHandler(t)

	rec := httptest.NewRecorder()
	handler.TodayHandler(rec, httptest.NewRequest("POST", "/api/events/today", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetEventHandler(t *testing.T) {
	handler, manager := newEventHandler(t)
	event := storeEvent(t, manager, "AAPL", time.Now().UTC())

	rec := httptest.NewRecorder()
	handler.GetEventHandler(rec, httptest.NewRequest("GET", "/api/events/"+event.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, "AAPL", got.Ticker)
}

func TestGetEventHandler_NotFound(t *testing.T) {
	handler, _ := newEventHandler(t)

	rec := httptest.NewRecorder()
	handler.GetEventHandler(rec, httptest.NewRequest("GET", "/api/events/evt_missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTickerEventsHandler(t *testing.T) {
	handler, manager := newEventHandler(t)
	storeEvent(t, manager, "AAPL", time.Now().UTC().Add(24*time.Hour))
	storeEvent(t, manager, "MSFT", time.Now().UTC().Add(24*time.Hour))

	rec := httptest.NewRecorder()
	handler.TickerEventsHandler(rec, httptest.NewRequest("GET", "/api/stocks/aapl/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "AAPL", body["ticker"])
	assert.Equal(t, float64(1), body["count"])
}

func TestTickerEventsHandler_InvalidTicker(t *testing.T) {
	handler, _ := newEventHandler(t)

	rec := httptest.NewRecorder()
	handler.TickerEventsHandler(rec, httptest.NewRequest("GET", "/api/stocks/not%20a%20ticker/events", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMacroMonthHandler_BadMonth(t *testing.T) {
	handler, _ := newEventHandler(t)

	rec := httptest.NewRecorder()
	handler.MacroMonthHandler(rec, httptest.NewRequest("GET", "/api/macro/March", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "YYYY-MM"))
}

func TestDailySummaryHandler(t *testing.T) {
	handler, manager := newEventHandler(t)
	storeEvent(t, manager, "AAPL", time.Now().UTC())
	require.NoError(t, manager.SubscriptionStorage().Add(context.Background(), &models.PortfolioSubscription{
		Subscriber: "alice",
		Ticker:     "AAPL",
		CreatedAt:  time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	handler.DailySummaryHandler(rec, httptest.NewRequest("GET", "/api/daily-summary?subscriber=alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.DailySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalEvents)
	assert.Equal(t, 1, summary.HighImportanceCount)
	require.Len(t, summary.PortfolioEvents, 1)
}
