package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
)

type RedisDueCache struct {
	client redis.UniversalClient
}

func NewRedisDueCache(addr string, password string, db int) *RedisDueCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisDueCache{client: client}
}

// NewRedisDueCacheFromClient wraps an existing client.
func NewRedisDueCacheFromClient(client redis.UniversalClient) *RedisDueCache {
	return &RedisDueCache{client: client}
}

func (c *RedisDueCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDueCache) Close() error {
	return c.client.Close()
}

func (c *RedisDueCache) Get(ctx context.Context, key string) (*domain.DueBoard, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var board domain.DueBoard
	if err := json.Unmarshal([]byte(val), &board); err != nil {
		return nil, false, err
	}
	return &board, true, nil
}

func (c *RedisDueCache) Set(ctx context.Context, key string, value *domain.DueBoard, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisDueCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func generationKey(scope string) string {
	return "ledger:generation:" + scope
}

// Generation reads the counter kept at a separate key; a missing key is zero.
func (c *RedisDueCache) Generation(ctx context.Context, scope string) (int64, error) {
	val, err := c.client.Get(ctx, generationKey(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (c *RedisDueCache) Bump(ctx context.Context, scope string) (int64, error) {
	return c.client.Incr(ctx, generationKey(scope)).Result()
}
