// Package notify announces completed cycles to downstream consumers over
// Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/macropower/prodmatch/pkg/log"
	"github.com/macropower/prodmatch/pkg/result"
)

// ErrPublish wraps failures to publish a summary.
var ErrPublish = errors.New("publish")

// Publisher is the subset of [redis.Client] used by [Redis].
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis publishes a JSON [result.Summary] to a channel after every
// successful cycle.
type Redis struct {
	pub     Publisher
	closer  func() error
	channel string
}

// NewRedis creates a [Redis] notifier that publishes through pub.
func NewRedis(pub Publisher, channel string) *Redis {
	return &Redis{pub: pub, channel: channel}
}

// Dial connects to the Redis server described by c. password is the
// resolved credential, or empty.
func Dial(c *Config, password string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     c.Address,
		Password: password,
		DB:       c.DB,
	})

	r := NewRedis(client, c.Channel)
	r.closer = client.Close

	return r
}

func (r *Redis) Notify(ctx context.Context, s result.Summary) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: marshal summary: %w", ErrPublish, err)
	}

	receivers, err := r.pub.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublish, r.channel, err)
	}

	log.WithContext(ctx).DebugContext(ctx, "published cycle summary",
		slog.String("channel", r.channel),
		slog.Int64("receivers", receivers),
	)

	return nil
}

// Close closes the underlying connection, if [Redis] owns one.
func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}

	err := r.closer()
	if err != nil {
		return fmt.Errorf("close redis: %w", err)
	}

	return nil
}
