// Package devices exposes push-token registration for the mobile apps.
package devices

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/santaihub/santai-server/libs/auth"
	"github.com/santaihub/santai-server/services/notification-service/internal/storage"
)

type Handler struct {
	repo      *storage.Repository
	logger    *slog.Logger
	jwtSecret string
}

func NewHandler(repo *storage.Repository, logger *slog.Logger, jwtSecret string) *Handler {
	return &Handler{repo: repo, logger: logger, jwtSecret: jwtSecret}
}

type registerRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// Devices registers (POST) or removes (DELETE with ?token=) the caller's
// push token. The token always belongs to the authenticated user; there is
// no way to register a device for someone else.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	bearer, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ParseAndVerifyHS256(bearer, h.jwtSecret)
	if err != nil || claims.Sub == "" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Token = strings.TrimSpace(req.Token)
		if req.Token == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		}
		if err := h.repo.RegisterDevice(r.Context(), claims.Sub, req.Token, strings.TrimSpace(req.Platform)); err != nil {
			h.logger.Error("device registration failed", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		}
		found, err := h.repo.DeleteDevice(r.Context(), claims.Sub, token)
		if err != nil {
			h.logger.Error("device removal failed", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
