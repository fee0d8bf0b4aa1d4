package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func receiptKey(jobID string) string {
	return fmt.Sprintf("publish:%s", jobID)
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

func (c *RedisCache) StoreReceipt(ctx context.Context, jobID string, r Receipt) error {
	r.PublishedAt = r.PublishedAt.UTC()

	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, receiptKey(jobID), b, c.ttl).Err()
}

func (c *RedisCache) GetReceipt(ctx context.Context, jobID string) (*Receipt, error) {
	raw, err := c.rdb.Get(ctx, receiptKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *RedisCache) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := lockKey(name)
	token := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, c.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}

var (
	_ ReceiptCache = (*RedisCache)(nil)
	_ Locker       = (*RedisCache)(nil)
	_ ReceiptCache = Noop{}
	_ Locker       = Noop{}
)
