package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/hotel-booking/internal/model"
)

const generationKey = "rooms:search:generation"

// Redis хранит результаты поиска в Redis. Инвалидация увеличивает счётчик поколения,
// входящий в ключ записи, так что старые записи просто истекают по TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewRedis создаёт клиент Redis и проверяет соединение.
func NewRedis(ctx context.Context, addr string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl, logger: logger}, nil
}

// Close закрывает соединение с Redis.
func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Fetch возвращает закэшированный результат либо загружает его.
// При недоступности Redis результат загружается напрямую.
func (c *Redis) Fetch(ctx context.Context, key string, load LoadFunc) ([]model.RoomAvailability, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn("redis cache unavailable", zap.Error(err))
		return load(ctx)
	}

	entryKey := fmt.Sprintf("rooms:search:%d:%s", gen, key)

	raw, err := c.client.Get(ctx, entryKey).Bytes()
	if err == nil {
		var rooms []model.RoomAvailability
		if err := json.Unmarshal(raw, &rooms); err == nil {
			return rooms, nil
		}
		c.logger.Warn("corrupted room cache entry", zap.String("key", entryKey))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("redis cache get error", zap.Error(err), zap.String("key", entryKey))
	}

	return shared(ctx, &c.group, entryKey, func(ctx context.Context) ([]model.RoomAvailability, error) {
		rooms, err := load(ctx)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(rooms)
		if err == nil {
			err = c.client.Set(ctx, entryKey, payload, c.ttl).Err()
		}
		if err != nil {
			c.logger.Warn("redis cache set error", zap.Error(err), zap.String("key", entryKey))
		}

		return rooms, nil
	})
}

// Invalidate начинает новое поколение записей.
func (c *Redis) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}
	return nil
}
