package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ScanDock/internal/api"
	"github.com/BearBump/ScanDock/internal/api/batchapi"
	"github.com/BearBump/ScanDock/internal/api/searchapi"
	"github.com/BearBump/ScanDock/internal/broker/messages"
	"github.com/BearBump/ScanDock/internal/services/batch"
	"github.com/BearBump/ScanDock/internal/services/search"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type scanAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	rateLimitPerMinute int

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// versionBumper инкрементирует version-ключ поискового кэша.
type versionBumper interface {
	Incr(ctx context.Context, key string) (int64, error)
}

type scanAPIDeps struct {
	batchSvc  *batch.Service
	searchSvc *search.Service
	rl        searchapi.RateLimiter
	bumper    versionBumper
	consumer  kafkaConsumer
}

func runScanAPI(ctx context.Context, opts scanAPIOpts, deps scanAPIDeps) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Use(api.Recover)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	batchapi.New(deps.batchSvc).Register(r)
	searchapi.New(deps.searchSvc).
		WithRateLimit(deps.rl, opts.rateLimitPerMinute).
		Register(r)

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	// packages.updated -> бамп версии поискового кэша.
	if deps.consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			_ = deps.consumer.Consume(ctx, func(_key, value []byte) error {
				var m messages.PackagesUpdated
				if err := json.Unmarshal(value, &m); err != nil {
					return err
				}
				return invalidateSearchCache(ctx, deps.bumper, m)
			})
		}()
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && ctx.Err() != nil {
		return ctx.Err()
	} else if err != nil {
		return err
	}
	return nil
}

func invalidateSearchCache(ctx context.Context, bumper versionBumper, m messages.PackagesUpdated) error {
	if bumper == nil {
		return nil
	}
	ver, err := bumper.Incr(ctx, search.VersionKey)
	if err != nil {
		return err
	}
	slog.Info("search cache invalidated",
		"version", ver,
		"packages", len(m.PackageIDs),
		"trackings", len(m.TrackingCodes),
	)
	return nil
}
