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
	GeoTrack GeoTrackConfig `yaml:"geotrack"`
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
	PositionReportedTopicName string `yaml:"position_reported_topic_name"`
	NotificationTopicName     string `yaml:"notification_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type GeoTrackConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	CurrentPositionTTLSeconds int     `yaml:"current_position_ttl_seconds"`
	ProximityAlertDistanceM   float64 `yaml:"proximity_alert_distance_m"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Reaper брошенных сессий (воркер). Нули — дефолты уровня кода:
	// интервал 30с, батч 100, конкурентность 10, простой 15 мин, lease 2 мин.
	WorkerReapIntervalSeconds int `yaml:"worker_reap_interval_seconds"`
	WorkerReapBatchSize       int `yaml:"worker_reap_batch_size"`
	WorkerReapConcurrency     int `yaml:"worker_reap_concurrency"`
	WorkerReapIdleSeconds     int `yaml:"worker_reap_idle_seconds"`
	WorkerReapLeaseSeconds    int `yaml:"worker_reap_lease_seconds"`

	WorkerRateLimitPerCourierPerMinute int `yaml:"worker_rate_limit_per_courier_per_minute"`
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
