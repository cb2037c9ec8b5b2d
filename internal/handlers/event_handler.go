package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/services/timeline"
)

// defaultSubscriber is used when a request carries no subscriber identity.
const defaultSubscriber = "default"

// EventHandler handles event timeline endpoints
type EventHandler struct {
	timelineService *timeline.Service
	logger          arbor.ILogger
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(timelineService *timeline.Service, logger arbor.ILogger) *EventHandler {
	return &EventHandler{
		timelineService: timelineService,
		logger:          logger,
	}
}

// subscriberFromRequest resolves the subscriber identity from the query string.
func subscriberFromRequest(r *http.Request) string {
	if sub := r.URL.Query().Get("subscriber"); sub != "" {
		return sub
	}
	return defaultSubscriber
}

// UpcomingHandler handles GET /api/events/upcoming
func (h *EventHandler) UpcomingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	events, err := h.timelineService.GetUpcoming(r.Context(), subscriberFromRequest(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load upcoming events")
		WriteError(w, http.StatusInternalServerError, "Failed to load upcoming events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// TodayHandler handles GET /api/events/today
func (h *EventHandler) TodayHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	events, err := h.timelineService.GetToday(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load today's events")
		WriteError(w, http.StatusInternalServerError, "Failed to load today's events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// YesterdayHandler handles GET /api/events/yesterday
func (h *EventHandler) YesterdayHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	events, err := h.timelineService.GetYesterday(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load yesterday's events")
		WriteError(w, http.StatusInternalServerError, "Failed to load yesterday's events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// GetEventHandler handles GET /api/events/{id}
func (h *EventHandler) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/events/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusBadRequest, "Event ID is required")
		return
	}

	event, err := h.timelineService.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Event not found")
			return
		}
		h.logger.Error().Err(err).Str("event_id", id).Msg("Failed to load event")
		WriteError(w, http.StatusInternalServerError, "Failed to load event")
		return
	}

	WriteJSON(w, http.StatusOK, event)
}

// TickerEventsHandler handles GET /api/stocks/{ticker}/events
func (h *EventHandler) TickerEventsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/stocks/")
	ticker := strings.TrimSuffix(path, "/events")
	ticker = common.NormalizeTicker(ticker)
	if !common.IsValidTicker(ticker) {
		WriteError(w, http.StatusBadRequest, "Invalid ticker symbol")
		return
	}

	events, err := h.timelineService.GetByTicker(r.Context(), ticker)
	if err != nil {
		h.logger.Error().Err(err).Str("ticker", ticker).Msg("Failed to load ticker events")
		WriteError(w, http.StatusInternalServerError, "Failed to load ticker events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"count":  len(events),
		"events": events,
	})
}

// MacroMonthHandler handles GET /api/macro/{month} where month is YYYY-MM
func (h *EventHandler) MacroMonthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/macro/")
	month, err := time.Parse("2006-01", raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Month must be in YYYY-MM format")
		return
	}

	events, err := h.timelineService.GetByMonth(r.Context(), month)
	if err != nil {
		h.logger.Error().Err(err).Str("month", raw).Msg("Failed to load macro events")
		WriteError(w, http.StatusInternalServerError, "Failed to load macro events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"month":  month.Format("2006-01"),
		"count":  len(events),
		"events": events,
	})
}

// DailySummaryHandler handles GET /api/daily-summary
func (h *EventHandler) DailySummaryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	summary, err := h.timelineService.GetDailySummary(r.Context(), subscriberFromRequest(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build daily summary")
		WriteError(w, http.StatusInternalServerError, "Failed to build daily summary")
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}
