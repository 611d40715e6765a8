package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/pkg/errors"
)

// Единый конверт ответа:
//
//	{"success": true,  "timestamp": "...", <поля payload>}
//	{"success": false, "timestamp": "...", "error": "...", "message": "..."}
//
// Клиенты различают исходы только по success, поэтому конверт обязателен
// для каждого ответа, включая 500 из recover.

func WriteOK(w http.ResponseWriter, status int, payload map[string]any) {
	body := map[string]any{
		"success":   true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func WriteError(w http.ResponseWriter, status int, errKind, message string) {
	writeJSON(w, status, map[string]any{
		"success":   false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"error":     errKind,
		"message":   message,
	})
}

// WriteDomainError мапит доменные ошибки на HTTP-статусы.
// Неизвестная ошибка — 500 со стабильным текстом, детали только в логе.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, models.ErrScanNotFound):
		WriteError(w, http.StatusNotFound, "scan_not_found", err.Error())
	case errors.Is(err, models.ErrDuplicateTracking):
		WriteError(w, http.StatusConflict, "duplicate_tracking", err.Error())
	case errors.Is(err, models.ErrSessionNotActive):
		WriteError(w, http.StatusBadRequest, "session_not_active", err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		WriteError(w, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, models.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		slog.Error("internal error", "error", err.Error())
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// Recover перехватывает панику обработчика и отвечает 500 в том же конверте.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err.Error())
	}
}
