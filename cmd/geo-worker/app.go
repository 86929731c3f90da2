package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EcoDeli/GeoTrack/config"
	"github.com/EcoDeli/GeoTrack/internal/broker/kafka"
	"github.com/EcoDeli/GeoTrack/internal/broker/messages"
	"github.com/EcoDeli/GeoTrack/internal/cache/rediscache"
	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/EcoDeli/GeoTrack/internal/notify/kafkanotify"
	"github.com/EcoDeli/GeoTrack/internal/services/geotracking"
	"github.com/EcoDeli/GeoTrack/internal/services/reaper"
	"github.com/EcoDeli/GeoTrack/internal/storage/pggeo"
)

// Воркер делает две вещи: гонит поток позиций из Kafka в сервис трекинга и
// закрывает брошенные сессии реапером.

type workerRepository interface {
	geotracking.Repository
	reaper.Repository
}

type positionConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type rateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo workerRepository, closeFn func(), err error)
	newNotifier    func(cfg *config.Config) geotracking.Notifier
	newConsumer    func(cfg *config.Config, topic, group string) positionConsumer
	newRateLimiter func(cfg *config.Config) rateLimiter
	newCache       func(cfg *config.Config) *rediscache.RedisCache
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerRepository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pggeo.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newNotifier: func(cfg *config.Config) geotracking.Notifier {
			topic := cfg.Kafka.NotificationTopicName
			if topic == "" {
				topic = "notification.requested"
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafkanotify.New(kafka.NewProducer(brokers), topic)
		},
		newConsumer: func(cfg *config.Config, topic, group string) positionConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
		newRateLimiter: func(cfg *config.Config) rateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCache: func(cfg *config.Config) *rediscache.RedisCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
	}
}

func RunGeoWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	positionTopic := cfg.Kafka.PositionReportedTopicName
	if positionTopic == "" {
		positionTopic = "geo.position.reported"
	}
	consumerGroup := cfg.GeoTrack.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "geo-worker"
	}

	positionTTL := time.Duration(cfg.GeoTrack.CurrentPositionTTLSeconds) * time.Second
	if positionTTL <= 0 {
		positionTTL = 30 * time.Second
	}

	reapInterval := time.Duration(cfg.GeoTrack.WorkerReapIntervalSeconds) * time.Second
	reapBatch := cfg.GeoTrack.WorkerReapBatchSize
	reapConcurrency := cfg.GeoTrack.WorkerReapConcurrency
	reapIdle := time.Duration(cfg.GeoTrack.WorkerReapIdleSeconds) * time.Second
	reapLease := time.Duration(cfg.GeoTrack.WorkerReapLeaseSeconds) * time.Second

	rlPerMin := int64(cfg.GeoTrack.WorkerRateLimitPerCourierPerMinute)

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	var c *rediscache.RedisCache
	if f.newCache != nil {
		c = f.newCache(cfg)
	}
	var notifier geotracking.Notifier
	if f.newNotifier != nil {
		notifier = f.newNotifier(cfg)
	}

	var svc *geotracking.Service
	if c != nil {
		svc = geotracking.New(repo, notifier, c, positionTTL)
	} else {
		svc = geotracking.New(repo, notifier, nil, 0)
	}
	svc.WithAlertDistance(cfg.GeoTrack.ProximityAlertDistanceM)

	var rl rateLimiter
	if f.newRateLimiter != nil {
		rl = f.newRateLimiter(cfg)
	}

	rp := reaper.New(repo, svc).
		WithSettings(reapInterval, reapBatch, reapConcurrency, reapIdle, reapLease)

	reaperErr := make(chan error, 1)
	go func() {
		reaperErr <- rp.Run(ctx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.GeoTrack.WorkerHTTPAddr,
			swaggerPath: swaggerPathFromEnv(),
			reaper:      rp,
			cfg:         cfg,
		})
	}()

	consumerErr := make(chan error, 1)
	if f.newConsumer != nil {
		consumer := f.newConsumer(cfg, positionTopic, consumerGroup)
		defer func() { _ = consumer.Close() }()
		go func() {
			consumerErr <- consumePositions(ctx, consumer, svc, rl, rlPerMin)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-reaperErr:
		return err
	case err := <-httpErr:
		return err
	case err := <-consumerErr:
		return err
	}
}

// consumePositions гоняет consume-цикл до отмены контекста: упавший цикл
// (Kafka недоступна, временная ошибка БД) перезапускается с паузой, позиция
// без коммита будет перечитана.
func consumePositions(ctx context.Context, consumer positionConsumer, svc *geotracking.Service, rl rateLimiter, rlPerMin int64) error {
	for {
		err := consumer.Consume(ctx, positionHandler(ctx, svc, rl, rlPerMin))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("position consumer cycle failed, restarting", "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func positionHandler(ctx context.Context, svc *geotracking.Service, rl rateLimiter, rlPerMin int64) func(key, value []byte) error {
	return func(_key, value []byte) error {
		var msg messages.PositionReported
		if err := json.Unmarshal(value, &msg); err != nil {
			slog.Warn("skip malformed position message", "error", err.Error())
			return nil
		}
		if msg.CourierID == 0 {
			slog.Warn("skip position message without courier_id")
			return nil
		}

		if rl != nil && rlPerMin > 0 {
			minuteKey := fmt.Sprintf("rl:courier:%d:%s", msg.CourierID, time.Now().UTC().Format("200601021504"))
			allowed, n, err := rl.Allow(ctx, minuteKey, rlPerMin, 70*time.Second)
			if err != nil {
				// Лимитер недоступен — пропускаем сэмпл дальше, fail-open.
				slog.Warn("rate limiter unavailable", "courier_id", msg.CourierID, "error", err.Error())
			} else if !allowed {
				slog.Warn("courier rate limited, dropping sample", "courier_id", msg.CourierID, "count", n)
				return nil
			}
		}

		err := svc.UpdatePosition(ctx, msg.CourierID, models.LocationSample{
			Latitude:   msg.Latitude,
			Longitude:  msg.Longitude,
			AccuracyM:  msg.AccuracyM,
			SpeedKmh:   msg.SpeedKmh,
			HeadingDeg: msg.HeadingDeg,
			AltitudeM:  msg.AltitudeM,
			RecordedAt: msg.RecordedAt,
		})
		if errors.Is(err, geotracking.ErrInvalid) {
			slog.Warn("skip invalid position sample", "courier_id", msg.CourierID, "error", err.Error())
			return nil
		}
		return err
	}
}
