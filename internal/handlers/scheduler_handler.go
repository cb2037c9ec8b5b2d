package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
)

// SchedulerHandler handles scheduler status and operations endpoints
type SchedulerHandler struct {
	schedulerService interfaces.SchedulerService
	taskStorage      interfaces.TaskStorage
	logger           arbor.ILogger
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(
	schedulerService interfaces.SchedulerService,
	taskStorage interfaces.TaskStorage,
	logger arbor.ILogger,
) *SchedulerHandler {
	return &SchedulerHandler{
		schedulerService: schedulerService,
		taskStorage:      taskStorage,
		logger:           logger,
	}
}

// StatusHandler handles GET /api/scheduler/status
func (h *SchedulerHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	var jobs []interfaces.JobStatus
	running := false
	if h.schedulerService != nil {
		jobs = h.schedulerService.JobStatuses()
		running = h.schedulerService.IsRunning()
	}

	tasks, err := h.taskStorage.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list refresh tasks")
		WriteError(w, http.StatusInternalServerError, "Failed to list refresh tasks")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running":    running,
		"jobs":       jobs,
		"task_count": len(tasks),
		"tasks":      tasks,
	})
}

// TriggerHandler handles POST /api/scheduler/trigger
func (h *SchedulerHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if h.schedulerService == nil {
		WriteError(w, http.StatusServiceUnavailable, "Scheduler is disabled")
		return
	}

	if err := h.schedulerService.TriggerNow(); err != nil {
		h.logger.Error().Err(err).Msg("Failed to trigger refresh")
		WriteError(w, http.StatusInternalServerError, "Failed to trigger refresh")
		return
	}

	WriteStarted(w, "Refresh triggered")
}

// DeadLettersHandler handles GET /api/ops/dead-letters
func (h *SchedulerHandler) DeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	letters, err := h.taskStorage.ListDeadLetters(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list dead letters")
		WriteError(w, http.StatusInternalServerError, "Failed to list dead letters")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(letters),
		"dead_letters": letters,
	})
}
