package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ScanDock/config"
	"github.com/BearBump/ScanDock/internal/broker/kafka"
	"github.com/BearBump/ScanDock/internal/services/reaper"
	"github.com/BearBump/ScanDock/internal/storage/pgsession"
)

type workerFactories struct {
	newStorage  func(cfg *config.Config) (repo reaper.Repository, closeFn func(), err error)
	newProducer func(cfg *config.Config) reaper.Producer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (reaper.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgsession.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) reaper.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
	}
}

func RunScanWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts) error {
	topic := cfg.Kafka.SessionCancelledTopicName
	if topic == "" {
		topic = "batch.session.cancelled"
	}

	interval := time.Duration(cfg.ScanDock.ReaperIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	idleTimeout := time.Duration(cfg.ScanDock.ReaperIdleTimeoutSeconds) * time.Second
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	batchSize := cfg.ScanDock.ReaperBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)

	r := reaper.New(repo, producer, topic).
		WithSettings(interval, idleTimeout, batchSize)

	httpOpts.reaper = r
	httpOpts.cfg = cfg

	httpErr := make(chan error, 1)
	go func() { httpErr <- runWorkerHTTPServer(ctx, httpOpts) }()

	reaperErr := make(chan error, 1)
	go func() { reaperErr <- r.Run(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-reaperErr:
		return err
	}
}
