package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

const DailyTTL = 6 * time.Hour

// Redis caches daily aggregates in front of a ContextProvider and drops
// them on invalidation. It implements domain.CacheInvalidator and
// domain.ContextProvider.
type Redis struct {
	client *redis.Client
	inner  domain.ContextProvider
}

func NewRedis(client *redis.Client, inner domain.ContextProvider) (*Redis, error) {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, inner: inner}, nil
}

// Invalidate deletes the named aggregates and announces it on Channel.
func (r *Redis) Invalidate(ctx context.Context, userID domain.UserID, keys []domain.CacheKey) error {
	if len(keys) == 0 {
		return nil
	}

	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		redisKeys = append(redisKeys, Key(userID, k))
	}
	payload, err := json.Marshal(Invalidation{UserID: userID, Keys: keys, At: time.Now()})
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisKeys...)
	pipe.Publish(ctx, Channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate %v: %w", keys, err)
	}
	return nil
}

func (r *Redis) Profile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	return r.inner.Profile(ctx, userID)
}

// DailyAggregate serves from the user's dailyLog hash, one field per date.
func (r *Redis) DailyAggregate(ctx context.Context, userID domain.UserID, date time.Time) (*domain.DailyAggregate, error) {
	key := Key(userID, domain.CacheDailyLog)
	field := domain.DateKey(date)

	data, err := r.client.HGet(ctx, key, field).Result()
	switch {
	case err == nil:
		var agg domain.DailyAggregate
		if err := json.Unmarshal([]byte(data), &agg); err == nil {
			return &agg, nil
		}
	case !errors.Is(err, redis.Nil):
		observability.LoggerFromContext(ctx).Warn("daily cache read failed", "user_id", userID, "error", err)
	}

	agg, err := r.inner.DailyAggregate(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(agg); err == nil {
		pipe := r.client.Pipeline()
		pipe.HSet(ctx, key, field, raw)
		pipe.Expire(ctx, key, DailyTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			observability.LoggerFromContext(ctx).Warn("daily cache write failed", "user_id", userID, "error", err)
		}
	}
	return agg, nil
}

// Subscribe streams invalidations published by any process until ctx ends.
func (r *Redis) Subscribe(ctx context.Context) <-chan Invalidation {
	out := make(chan Invalidation)
	sub := r.client.Subscribe(ctx, Channel)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv Invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					continue
				}
				select {
				case out <- inv:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
