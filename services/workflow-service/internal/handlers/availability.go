package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/workflow"
)

type AvailabilityHandler struct {
	engine *workflow.Engine
	logger *slog.Logger
}

func NewAvailabilityHandler(engine *workflow.Engine, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, logger: logger}
}

type createWindowRequest struct {
	UserID    string `json:"user_id,omitempty"` // empty means the caller
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type windowItem struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Overnight bool   `json:"overnight"`
}

// Windows serves the availability calendar: POST opens a window, GET lists a
// range, DELETE (with ?id=) removes one.
func (h *AvailabilityHandler) Windows(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createWindowRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		userID := strings.TrimSpace(req.UserID)
		if userID == "" {
			userID = actor.ID
		}
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		start, err := interval.ParseClock(req.StartTime)
		if err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		end, err := interval.ParseClock(req.EndTime)
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
		win, err := h.engine.CreateAvailability(r.Context(), actor, workflow.CreateAvailabilityInput{
			UserID: userID,
			Date:   date,
			Start:  start,
			End:    end,
		})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWindowItem(win))

	case http.MethodGet:
		q := r.URL.Query()
		userID := strings.TrimSpace(q.Get("user_id"))
		if userID == "" {
			userID = actor.ID
		}
		from, err := time.Parse("2006-01-02", q.Get("from"))
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		to, err := time.Parse("2006-01-02", q.Get("to"))
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		windows, err := h.engine.ListAvailability(r.Context(), actor, userID, from, to)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items := make([]windowItem, 0, len(windows))
		for _, win := range windows {
			items = append(items, toWindowItem(win))
		}
		writeJSON(w, http.StatusOK, map[string]any{"windows": items})

	case http.MethodDelete:
		q := r.URL.Query()
		id := strings.TrimSpace(q.Get("id"))
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		userID := strings.TrimSpace(q.Get("user_id"))
		if userID == "" {
			userID = actor.ID
		}
		if err := h.engine.DeleteAvailability(r.Context(), actor, userID, id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func toWindowItem(w model.AvailabilityWindow) windowItem {
	return windowItem{
		ID:        w.ID,
		UserID:    w.UserID,
		Date:      w.Date.Format("2006-01-02"),
		StartTime: w.StartTime.String(),
		EndTime:   w.EndTime.String(),
		Overnight: interval.CrossesMidnight(w.StartTime, w.EndTime),
	}
}
