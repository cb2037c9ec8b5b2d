package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Event timeline
	mux.HandleFunc("/api/events/upcoming", s.app.EventHandler.UpcomingHandler)
	mux.HandleFunc("/api/events/today", s.app.EventHandler.TodayHandler)
	mux.HandleFunc("/api/events/yesterday", s.app.EventHandler.YesterdayHandler)
	mux.HandleFunc("/api/events/", s.app.EventHandler.GetEventHandler) // GET /api/events/{id}

	// API routes - Ticker and macro views
	mux.HandleFunc("/api/stocks/", s.handleStockRoutes) // GET /api/stocks/{ticker}/events
	mux.HandleFunc("/api/macro/", s.app.EventHandler.MacroMonthHandler)

	// API routes - Daily summary
	mux.HandleFunc("/api/daily-summary", s.app.EventHandler.DailySummaryHandler)

	// API routes - Portfolio
	mux.HandleFunc("/api/portfolio", s.handlePortfolioRoute)
	mux.HandleFunc("/api/portfolio/", s.app.PortfolioHandler.UnsubscribeHandler) // DELETE /api/portfolio/{ticker}

	// API routes - Scheduler and operations
	mux.HandleFunc("/api/scheduler/status", s.app.SchedulerHandler.StatusHandler)
	mux.HandleFunc("/api/scheduler/trigger", s.app.SchedulerHandler.TriggerHandler)
	mux.HandleFunc("/api/ops/dead-letters", s.app.SchedulerHandler.DeadLettersHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handlePortfolioRoute routes /api/portfolio requests (list and subscribe)
func (s *Server) handlePortfolioRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.PortfolioHandler.ListHandler(w, r)
	case "POST":
		s.app.PortfolioHandler.SubscribeHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStockRoutes routes /api/stocks/{ticker}/events requests
func (s *Server) handleStockRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" && strings.HasSuffix(r.URL.Path, "/events") {
		s.app.EventHandler.TickerEventsHandler(w, r)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}
