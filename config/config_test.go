package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  position_reported_topic_name: "geo.position.reported"
  notification_topic_name: "notification.requested"
redis:
  host: "localhost"
  port: 6379
geotrack:
  http_addr: ":8080"
  kafka_consumer_group: "geo-worker"
  current_position_ttl_seconds: 30
  proximity_alert_distance_m: 500
  worker_http_addr: ":8082"
  worker_reap_interval_seconds: 60
  worker_reap_idle_seconds: 900
  worker_rate_limit_per_courier_per_minute: 30
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, "geo.position.reported", cfg.Kafka.PositionReportedTopicName)
	require.Equal(t, "notification.requested", cfg.Kafka.NotificationTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.GeoTrack.HTTPAddr)
	require.Equal(t, 30, cfg.GeoTrack.CurrentPositionTTLSeconds)
	require.Equal(t, 500.0, cfg.GeoTrack.ProximityAlertDistanceM)
	require.Equal(t, 900, cfg.GeoTrack.WorkerReapIdleSeconds)
	require.Equal(t, 30, cfg.GeoTrack.WorkerRateLimitPerCourierPerMinute)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	require.Error(t, err)
}
