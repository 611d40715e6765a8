package cache

import (
	"context"
	"time"
)

// BytesCache — минимальный кэш "байты по ключу" с TTL.
// Get возвращает (value, found, err); отсутствие ключа — не ошибка.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
