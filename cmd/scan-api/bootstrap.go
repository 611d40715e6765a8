package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ScanDock/config"
	"github.com/BearBump/ScanDock/internal/broker/kafka"
	"github.com/BearBump/ScanDock/internal/cache/rediscache"
	"github.com/BearBump/ScanDock/internal/integrations/packagesapi"
	"github.com/BearBump/ScanDock/internal/services/batch"
	"github.com/BearBump/ScanDock/internal/services/search"
	"github.com/BearBump/ScanDock/internal/storage/memsession"
	"github.com/BearBump/ScanDock/internal/storage/pgsession"
)

type scanAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     scanAPIOpts
	deps     scanAPIDeps
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapScanAPI() *scanAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ScanDock.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ScanDock.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "scan-api"
	}
	packagesUpdatedTopic := cfg.Kafka.PackagesUpdatedTopicName
	if packagesUpdatedTopic == "" {
		packagesUpdatedTopic = "packages.updated"
	}
	searchTTL := time.Duration(cfg.ScanDock.SearchCacheTTLSeconds) * time.Second
	if searchTTL <= 0 {
		searchTTL = 2 * time.Minute
	}
	metaTTL := time.Duration(cfg.ScanDock.MetadataCacheTTLSeconds) * time.Second
	if metaTTL <= 0 {
		metaTTL = 10 * time.Minute
	}

	var (
		repo    batch.Repository
		closeDB func()
	)
	if cfg.Database.Host == "" {
		repo = memsession.New()
	} else {
		sslMode := cfg.Database.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
		st := mustOpenPostgresWithRetry(connString, 60*time.Second)
		repo = st
		closeDB = st.Close
	}

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	client := packagesapi.New(cfg.ScanDock.PackagesAPIBaseURL, cfg.ScanDock.PackagesAPIKey)

	batchSvc := batch.New(repo, producer, batch.Topics{
		ScanRecorded:     cfg.Kafka.ScanRecordedTopicName,
		SessionCompleted: cfg.Kafka.SessionCompletedTopicName,
	})
	if cfg.ScanDock.CompletedScanStatus != "" {
		batchSvc.WithStatusPush(client, cfg.ScanDock.CompletedScanStatus)
	}

	searchSvc := search.New(client, rc, searchTTL, metaTTL)

	consumer := kafka.NewConsumer(brokers, packagesUpdatedTopic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &scanAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: scanAPIOpts{
			httpAddr:           httpAddr,
			swaggerPath:        swaggerPath,
			topic:              packagesUpdatedTopic,
			consumerGroup:      consumerGroup,
			rateLimitPerMinute: cfg.ScanDock.SearchRateLimitPerMinute,
		},
		deps: scanAPIDeps{
			batchSvc:  batchSvc,
			searchSvc: searchSvc,
			rl:        rl,
			bumper:    rc,
			consumer:  consumer,
		},
		consumer: consumer,
		closeDB:  closeDB,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgsession.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgsession.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *scanAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *scanAPIApp) Run() error {
	return runScanAPI(a.ctx, a.opts, a.deps)
}
