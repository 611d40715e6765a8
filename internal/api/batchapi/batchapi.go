package batchapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BearBump/ScanDock/internal/api"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/BearBump/ScanDock/internal/services/batch"
	"github.com/go-chi/chi/v5"
)

type BatchAPI struct {
	svc *batch.Service
}

func New(svc *batch.Service) *BatchAPI {
	return &BatchAPI{svc: svc}
}

// Register вешает маршруты сессий и сканов. Сессии адресуются query-параметром
// session_id (так исторически ходят клиенты), сканы — path-параметром.
func (a *BatchAPI) Register(r chi.Router) {
	r.Route("/api/batch", func(r chi.Router) {
		r.Post("/", a.createSession)
		r.Get("/", a.getSessions)
		r.Patch("/", a.updateSession)
		r.Delete("/", a.deleteSession)

		r.Route("/{sessionID}/scan", func(r chi.Router) {
			r.Post("/", a.addScan)
			r.Get("/", a.listScans)
			r.Delete("/", a.deleteScan)
		})
	})
}

type createSessionRequest struct {
	UserID            string   `json:"user_id"`
	UserName          string   `json:"user_name"`
	DefaultPalletID   string   `json:"default_pallet_id"`
	DefaultPriority   string   `json:"default_priority"`
	DefaultWeightUnit string   `json:"default_weight_unit"`
	DefaultContent    string   `json:"default_content"`
	DefaultWeight     *float64 `json:"default_weight"`
	DefaultBoxID      string   `json:"default_box_id"`
}

func (a *BatchAPI) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	sess, err := a.svc.CreateSession(r.Context(), batch.CreateSessionInput{
		UserID:            req.UserID,
		UserName:          req.UserName,
		DefaultPalletID:   req.DefaultPalletID,
		DefaultPriority:   req.DefaultPriority,
		DefaultWeightUnit: req.DefaultWeightUnit,
		DefaultContent:    req.DefaultContent,
		DefaultWeight:     req.DefaultWeight,
		DefaultBoxID:      req.DefaultBoxID,
	})
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusCreated, map[string]any{"session": sess})
}

func (a *BatchAPI) getSessions(w http.ResponseWriter, r *http.Request) {
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		sess, err := a.svc.GetSession(r.Context(), sessionID)
		if err != nil {
			api.WriteDomainError(w, err)
			return
		}
		api.WriteOK(w, http.StatusOK, map[string]any{"session": sess})
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		api.WriteError(w, http.StatusBadRequest, "validation_error", "session_id or user_id query param is required")
		return
	}
	sessions, err := a.svc.ListSessionsByUser(r.Context(), userID)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusOK, map[string]any{"sessions": sessions, "total": len(sessions)})
}

type updateSessionRequest struct {
	SessionID         string   `json:"session_id"`
	Status            *string  `json:"status"`
	DefaultPalletID   *string  `json:"default_pallet_id"`
	DefaultPriority   *string  `json:"default_priority"`
	DefaultWeightUnit *string  `json:"default_weight_unit"`
	DefaultContent    *string  `json:"default_content"`
	DefaultWeight     *float64 `json:"default_weight"`
	DefaultBoxID      *string  `json:"default_box_id"`
}

func (a *BatchAPI) updateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		api.WriteError(w, http.StatusBadRequest, "validation_error", "session_id is required")
		return
	}

	sess, err := a.svc.UpdateSession(r.Context(), req.SessionID, models.SessionUpdate{
		Status:            req.Status,
		DefaultPalletID:   req.DefaultPalletID,
		DefaultPriority:   req.DefaultPriority,
		DefaultWeightUnit: req.DefaultWeightUnit,
		DefaultContent:    req.DefaultContent,
		DefaultWeight:     req.DefaultWeight,
		DefaultBoxID:      req.DefaultBoxID,
	})
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusOK, map[string]any{"session": sess})
}

func (a *BatchAPI) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		api.WriteError(w, http.StatusBadRequest, "validation_error", "session_id query param is required")
		return
	}
	if err := a.svc.DeleteSession(r.Context(), sessionID); err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusOK, map[string]any{"message": "session deleted"})
}

type scanRequest struct {
	TrackingNumber string   `json:"tracking_number"`
	Weight         *float64 `json:"weight"`
	RecipientName  string   `json:"recipient_name"`
	Notes          string   `json:"notes"`
}

func (a *BatchAPI) addScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	scan, sess, err := a.svc.AddScan(r.Context(), chi.URLParam(r, "sessionID"), batch.ScanInput{
		TrackingNumber: req.TrackingNumber,
		Weight:         req.Weight,
		RecipientName:  req.RecipientName,
		Notes:          req.Notes,
	})
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusCreated, map[string]any{
		"scan":    scan,
		"session": sessionSummary(sess),
	})
}

func (a *BatchAPI) listScans(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	scans, total, sess, err := a.svc.ListScans(r.Context(), chi.URLParam(r, "sessionID"), limit, offset)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusOK, map[string]any{
		"scans":   scans,
		"total":   total,
		"offset":  offset,
		"session": sessionSummary(sess),
	})
}

func (a *BatchAPI) deleteScan(w http.ResponseWriter, r *http.Request) {
	scanID := r.URL.Query().Get("scan_id")
	if scanID == "" {
		api.WriteError(w, http.StatusBadRequest, "validation_error", "scan_id query param is required")
		return
	}

	sess, err := a.svc.DeleteScan(r.Context(), chi.URLParam(r, "sessionID"), scanID)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusOK, map[string]any{
		"message": "scan deleted",
		"session": sessionSummary(sess),
	})
}

// sessionSummary — краткая сводка сессии для ответов скан-эндпоинтов.
func sessionSummary(s *models.BatchSession) map[string]any {
	return map[string]any{
		"session_id":       s.ID,
		"status":           s.Status,
		"packages_scanned": s.PackagesScanned,
		"last_activity_at": s.LastActivityAt,
	}
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
