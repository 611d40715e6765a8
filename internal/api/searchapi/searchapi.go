package searchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ScanDock/internal/api"
	"github.com/BearBump/ScanDock/internal/services/search"
	"github.com/go-chi/chi/v5"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type SearchAPI struct {
	svc *search.Service

	rl       RateLimiter
	rlPerMin int64
}

func New(svc *search.Service) *SearchAPI {
	return &SearchAPI{svc: svc}
}

// WithRateLimit включает пер-клиентский лимит запросов в минуту.
// Дебаунса на стороне браузера на сервере больше нет, лимит — его замена.
func (a *SearchAPI) WithRateLimit(rl RateLimiter, perMinute int) *SearchAPI {
	if rl != nil && perMinute > 0 {
		a.rl = rl
		a.rlPerMin = int64(perMinute)
	}
	return a
}

func (a *SearchAPI) Register(r chi.Router) {
	r.Route("/api/packages", func(r chi.Router) {
		r.With(a.rateLimit).Get("/search", a.search)
		r.Get("/metadata/{kind}", a.metadata)
	})
}

func (a *SearchAPI) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	page := queryInt(r, "page", 0)
	pageSize := queryInt(r, "page_size", 0)

	res, err := a.svc.Search(r.Context(), q, page, pageSize)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusOK, map[string]any{"result": res})
}

func (a *SearchAPI) metadata(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	switch kind {
	case "states", "countries", "tarimas":
	default:
		api.WriteError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("unknown metadata kind %q", kind))
		return
	}

	raw, cached, err := a.svc.Metadata(r.Context(), kind)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}
	api.WriteOK(w, http.StatusOK, map[string]any{
		"kind":   kind,
		"items":  json.RawMessage(raw),
		"cached": cached,
	})
}

// rateLimit режет шторм запросов по IP клиента. Redis недоступен — пропускаем:
// поиск важнее лимита.
func (a *SearchAPI) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.rl == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("rl:search:%s:%s", clientIP(r), time.Now().UTC().Format("200601021504"))
		allowed, n, err := a.rl.Allow(r.Context(), key, a.rlPerMin, 70*time.Second)
		if err != nil {
			slog.Warn("search rate limit", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			slog.Warn("search rate limit exceeded", "ip", clientIP(r), "count", n)
			api.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many search requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// XFF — список "client, proxy1, proxy2"; клиент всегда первый.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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
