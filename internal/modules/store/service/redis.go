package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"trade_engine/internal/models"
)

const redisKeyPrefix = "trade_engine:"

// redisCmd is the part of the go-redis client the store uses.
type redisCmd interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis keeps the record under a prefixed key; each save refreshes the TTL.
type Redis struct {
	c   redisCmd
	ttl time.Duration
}

func NewRedis(c redisCmd, ttl time.Duration) *Redis {
	return &Redis{c: c, ttl: ttl}
}

func (r *Redis) Load(ctx context.Context, key string) (*models.EngineRecord, error) {
	data, err := r.c.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	return Decode(data)
}

func (r *Redis) Save(ctx context.Context, key string, rec models.EngineRecord) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := r.c.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}
