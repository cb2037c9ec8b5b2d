package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/services/portfolio"
)

// PortfolioHandler handles portfolio subscription endpoints
type PortfolioHandler struct {
	portfolioService *portfolio.Service
	logger           arbor.ILogger
}

// NewPortfolioHandler creates a new PortfolioHandler
func NewPortfolioHandler(portfolioService *portfolio.Service, logger arbor.ILogger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
		logger:           logger,
	}
}

type subscribeRequest struct {
	Subscriber string `json:"subscriber"`
	Ticker     string `json:"ticker"`
}

// ListHandler handles GET /api/portfolio
func (h *PortfolioHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	subscriber := subscriberFromRequest(r)
	subscriptions, err := h.portfolioService.List(r.Context(), subscriber)
	if err != nil {
		h.logger.Error().Err(err).Str("subscriber", subscriber).Msg("Failed to list portfolio")
		WriteError(w, http.StatusInternalServerError, "Failed to list portfolio")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscriber":    subscriber,
		"count":         len(subscriptions),
		"subscriptions": subscriptions,
	})
}

// SubscribeHandler handles POST /api/portfolio
func (h *PortfolioHandler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Subscriber == "" {
		req.Subscriber = defaultSubscriber
	}

	ticker := common.NormalizeTicker(req.Ticker)
	if !common.IsValidTicker(ticker) {
		WriteError(w, http.StatusBadRequest, "Invalid ticker symbol")
		return
	}

	if err := h.portfolioService.Subscribe(r.Context(), req.Subscriber, ticker); err != nil {
		h.logger.Error().Err(err).Str("ticker", ticker).Msg("Failed to subscribe")
		WriteError(w, http.StatusInternalServerError, "Failed to subscribe")
		return
	}

	h.logger.Info().Str("subscriber", req.Subscriber).Str("ticker", ticker).Msg("Portfolio subscription added")
	WriteSuccess(w, fmt.Sprintf("Subscribed to %s", ticker))
}

// UnsubscribeHandler handles DELETE /api/portfolio/{ticker}
func (h *PortfolioHandler) UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	ticker := common.NormalizeTicker(strings.TrimPrefix(r.URL.Path, "/api/portfolio/"))
	if !common.IsValidTicker(ticker) {
		WriteError(w, http.StatusBadRequest, "Invalid ticker symbol")
		return
	}

	subscriber := subscriberFromRequest(r)
	if err := h.portfolioService.Unsubscribe(r.Context(), subscriber, ticker); err != nil {
		h.logger.Error().Err(err).Str("ticker", ticker).Msg("Failed to unsubscribe")
		WriteError(w, http.StatusInternalServerError, "Failed to unsubscribe")
		return
	}

	h.logger.Info().Str("subscriber", subscriber).Str("ticker", ticker).Msg("Portfolio subscription removed")
	WriteSuccess(w, fmt.Sprintf("Unsubscribed from %s", ticker))
}
