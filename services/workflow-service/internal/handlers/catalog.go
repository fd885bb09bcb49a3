package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/workflow"
)

type CatalogHandler struct {
	engine *workflow.Engine
	logger *slog.Logger
}

func NewCatalogHandler(engine *workflow.Engine, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{engine: engine, logger: logger}
}

type clientItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (h *CatalogHandler) Clients(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok || actor.Role != model.RoleOperator {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name    string `json:"name"`
			Phone   string `json:"phone"`
			Address string `json:"address"`
			Notes   string `json:"notes"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}
		c, err := h.engine.CreateClient(r.Context(), model.Client{
			Name:    req.Name,
			Phone:   strings.TrimSpace(req.Phone),
			Address: strings.TrimSpace(req.Address),
			Notes:   req.Notes,
		})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toClientItem(c))

	case http.MethodGet:
		clients, err := h.engine.ListClients(r.Context())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items := make([]clientItem, 0, len(clients))
		for _, c := range clients {
			items = append(items, toClientItem(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": items})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func toClientItem(c model.Client) clientItem {
	return clientItem{
		ID:        c.ID,
		Name:      c.Name,
		Phone:     c.Phone,
		Address:   c.Address,
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

type serviceItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Description     string `json:"description,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func (h *CatalogHandler) Services(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		if actor.Role != model.RoleOperator {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var req struct {
			Name            string `json:"name"`
			DurationMinutes int    `json:"duration_minutes"`
			Price           string `json:"price"`
			Description     string `json:"description"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.DurationMinutes <= 0 {
			http.Error(w, "missing name or duration_minutes", http.StatusBadRequest)
			return
		}
		s, err := h.engine.CreateService(r.Context(), model.Service{
			Name:            req.Name,
			DurationMinutes: req.DurationMinutes,
			Price:           req.Price,
			Description:     req.Description,
		})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toServiceItem(s))

	case http.MethodGet:
		services, err := h.engine.ListServices(r.Context())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items := make([]serviceItem, 0, len(services))
		for _, s := range services {
			items = append(items, toServiceItem(s))
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": items})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func toServiceItem(s model.Service) serviceItem {
	return serviceItem{
		ID:              s.ID,
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
		Price:           s.Price,
		Description:     s.Description,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
	}
}
