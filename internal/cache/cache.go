package cache

import (
	"context"
	"time"
)

// BytesCache — байтовый кэш "лучшего усилия": промах и недоступность кэша
// равнозначны, источником истины всегда остаётся БД.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
