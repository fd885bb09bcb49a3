package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps structured errors to HTTP. Internal details never leave the
// process; they are logged and the client sees a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)

	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindSystem {
		writeJSON(w, status, errorResponse{Error: errorBody{
			Code:    e.Code,
			Field:   e.Field,
			Message: e.Message,
		}})
		return
	}

	logger.Error("request failed", "err", err)
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:    "internal",
		Message: "internal error",
	}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
