package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	ScanDock ScanDockConfig `yaml:"scandock"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	ScanRecordedTopicName     string `yaml:"scan_recorded_topic_name"`
	SessionCompletedTopicName string `yaml:"session_completed_topic_name"`
	SessionCancelledTopicName string `yaml:"session_cancelled_topic_name"`
	PackagesUpdatedTopicName  string `yaml:"packages_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ScanDockConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Внешний Packages API (.NET). По умолчанию http://localhost:5001.
	PackagesAPIBaseURL string `yaml:"packages_api_base_url"`
	PackagesAPIKey     string `yaml:"packages_api_key"`

	SearchCacheTTLSeconds   int `yaml:"search_cache_ttl_seconds"`
	MetadataCacheTTLSeconds int `yaml:"metadata_cache_ttl_seconds"`

	SearchRateLimitPerMinute int `yaml:"search_rate_limit_per_minute"`

	// Статус, который проставляется пакетам при завершении сессии
	// через bulk-update-status (пусто = не проставлять).
	CompletedScanStatus string `yaml:"completed_scan_status"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Reaper: отмена брошенных сессий.
	ReaperIntervalSeconds    int `yaml:"reaper_interval_seconds"`
	ReaperIdleTimeoutSeconds int `yaml:"reaper_idle_timeout_seconds"`
	ReaperBatchSize          int `yaml:"reaper_batch_size"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
