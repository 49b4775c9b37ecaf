package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campusclub/shop/internal/config"
)

// Redis adapts go-redis to the KV surface. The client connects lazily
// and pools connections internally, so a single instance is shared by
// the whole process and closed once on shutdown.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(cfg *config.Config) (*Redis, error) {
	var opts *redis.Options
	if cfg.REDIS_URL != "" {
		parsed, err := redis.ParseURL(cfg.REDIS_URL)
		if err != nil {
			return nil, fmt.Errorf("redis url parse error: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     net.JoinHostPort(cfg.REDIS_HOST, cfg.REDIS_PORT),
			Password: cfg.REDIS_PASSWORD,
			DB:       cfg.REDIS_DB,
		}
	}
	opts.DialTimeout = cfg.RedisConnectTimeout
	opts.ReadTimeout = cfg.RedisCommandTimeout
	opts.WriteTimeout = cfg.RedisCommandTimeout

	return &Redis{rdb: redis.NewClient(opts)}, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	return r.rdb.Del(ctx, keys...).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
