package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EcoDeli/GeoTrack/config"
	"github.com/EcoDeli/GeoTrack/internal/broker/kafka"
	"github.com/EcoDeli/GeoTrack/internal/cache/rediscache"
	"github.com/EcoDeli/GeoTrack/internal/notify/kafkanotify"
	"github.com/EcoDeli/GeoTrack/internal/services/geotracking"
	"github.com/EcoDeli/GeoTrack/internal/storage/pggeo"
)

type geoAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    geoAPIOpts
	svc     *geotracking.Service
	closeDB func()
}

func mustBootstrapGeoAPI() *geoAPIApp {
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

	httpAddr := cfg.GeoTrack.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	notificationTopic := cfg.Kafka.NotificationTopicName
	if notificationTopic == "" {
		notificationTopic = "notification.requested"
	}

	positionTTL := time.Duration(cfg.GeoTrack.CurrentPositionTTLSeconds) * time.Second
	if positionTTL <= 0 {
		positionTTL = 30 * time.Second
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	notifier := kafkanotify.New(kafka.NewProducer(brokers), notificationTopic)

	svc := geotracking.New(st, notifier, rc, positionTTL).
		WithAlertDistance(cfg.GeoTrack.ProximityAlertDistanceM)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &geoAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: geoAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
		svc:     svc,
		closeDB: st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pggeo.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pggeo.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *geoAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *geoAPIApp) Run() error {
	return runGeoAPI(a.ctx, a.opts, a.svc)
}
