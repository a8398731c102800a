// Package redisdedupe suppresses duplicate booking notifications across processes.
package redisdedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/companion-hub/companion-hub/internal/domain/notification"
)

const keyPrefix = "notify:dedupe:"

// Marker is the subset of the Redis client the dispatcher needs.
type Marker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Dispatcher forwards a notification only the first time its dedupe key is seen within ttl.
type Dispatcher struct {
	next   notification.Dispatcher
	marker Marker
	ttl    time.Duration
	logger zerolog.Logger
}

// NewClient connects to Redis from a redis:// URL.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func New(next notification.Dispatcher, marker Marker, ttl time.Duration, logger zerolog.Logger) *Dispatcher {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Dispatcher{
		next:   next,
		marker: marker,
		ttl:    ttl,
		logger: logger.With().Str("dispatcher", "redis_dedupe").Logger(),
	}
}

// Notify delivers through the wrapped dispatcher. When Redis is unreachable the
// notification is delivered anyway.
func (d *Dispatcher) Notify(ctx context.Context, recipientID string, kind notification.Kind, title, body string, data map[string]string) error {
	key := keyPrefix + notification.NewNotification(recipientID, kind, title, body, data).DedupeKey()
	first, err := d.marker.SetNX(ctx, key, time.Now().UTC().Unix(), d.ttl).Result()
	switch {
	case err != nil:
		d.logger.Warn().Err(err).Str("key", key).Msg("dedupe check failed")
	case !first:
		d.logger.Debug().Str("key", key).Msg("duplicate notification suppressed")
		return nil
	}
	return d.next.Notify(ctx, recipientID, kind, title, body, data)
}
