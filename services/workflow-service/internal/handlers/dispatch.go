package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/workflow"
)

type DispatchHandler struct {
	engine *workflow.Engine
	logger *slog.Logger
}

func NewDispatchHandler(engine *workflow.Engine, logger *slog.Logger) *DispatchHandler {
	return &DispatchHandler{engine: engine, logger: logger}
}

type queueItem struct {
	DriverID        string `json:"driver_id"`
	FullName        string `json:"full_name"`
	LastAvailableAt string `json:"last_available_at"`
	Position        int    `json:"position"`
}

// Queue lists the available driver pool in allocation order. Operator only.
func (h *DispatchHandler) Queue(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	actor, ok := actorFrom(r)
	if !ok || actor.Role != model.RoleOperator {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	drivers, err := h.engine.DriverQueue(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]queueItem, 0, len(drivers))
	for i, d := range drivers {
		item := queueItem{DriverID: d.ID, FullName: d.FullName, Position: i + 1}
		if d.LastAvailableAt != nil {
			item.LastAvailableAt = d.LastAvailableAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": items})
}

// Position tells a driver (or operator) where a driver stands in the queue.
func (h *DispatchHandler) Position(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	driverID := strings.TrimSpace(r.URL.Query().Get("driver_id"))
	if driverID == "" {
		driverID = actor.ID
	}
	if actor.Role != model.RoleOperator && driverID != actor.ID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	pos, err := h.engine.DriverQueuePosition(r.Context(), driverID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driver_id": driverID, "position": pos})
}
