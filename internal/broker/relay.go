package broker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/codejam/backend/internal/metrics"
)

const (
	defaultChannelPrefix = "codejam"

	relayMinBackoff = 500 * time.Millisecond
	relayMaxBackoff = 30 * time.Second
)

var errSubscriptionClosed = errors.New("subscription closed")

// RedisRelay shares feeds between backend replicas over Redis Pub/Sub. Every
// replica runs Run, so a payload published on any replica reaches the local
// registries of all of them, the publisher's own included.
type RedisRelay struct {
	client   *goredis.Client
	registry *Registry
	prefix   string

	minBackoff time.Duration
	maxBackoff time.Duration
	failures   atomic.Int64
}

// NewRedisRelay creates a relay delivering into registry. An empty prefix
// falls back to "codejam".
func NewRedisRelay(client *goredis.Client, registry *Registry, prefix string) *RedisRelay {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisRelay{
		client:   client,
		registry: registry,
		prefix:   strings.TrimSpace(prefix),

		minBackoff: relayMinBackoff,
		maxBackoff: relayMaxBackoff,
	}
}

// Publish sends payload to every replica subscribed to feed.
func (r *RedisRelay) Publish(ctx context.Context, feed Feed, payload []byte) error {
	return r.client.Publish(ctx, r.channel(feed), payload).Err()
}

// Run subscribes to every feed channel and broadcasts received payloads
// locally until ctx is cancelled. Publishers only reach subscribers through
// this loop, so a failed or dropped subscription is retried with exponential
// backoff rather than ending it.
func (r *RedisRelay) Run(ctx context.Context) {
	backoff := r.minBackoff
	for {
		subscribed, err := r.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			backoff = r.minBackoff
		}
		r.failures.Add(1)
		metrics.RelayResubscribesTotal.Inc()
		slog.Warn("redis relay subscription failed, retrying",
			slog.Any("error", err), slog.Duration("backoff", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, r.maxBackoff)
	}
}

// listen runs one subscription. subscribed reports whether Redis confirmed
// it before it ended.
func (r *RedisRelay) listen(ctx context.Context) (subscribed bool, err error) {
	channels := make([]string, len(Feeds))
	for i, feed := range Feeds {
		channels[i] = r.channel(feed)
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return false, err
	}
	slog.Info("redis relay subscribed", slog.Any("channels", channels))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return true, errSubscriptionClosed
			}
			feed, ok := r.feedFor(msg.Channel)
			if !ok {
				slog.Warn("redis relay: message on unknown channel", slog.String("channel", msg.Channel))
				continue
			}
			r.registry.Broadcast(feed, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) channel(feed Feed) string {
	return r.prefix + ":" + string(feed)
}

func (r *RedisRelay) feedFor(channel string) (Feed, bool) {
	name, ok := strings.CutPrefix(channel, r.prefix+":")
	if !ok {
		return "", false
	}
	for _, feed := range Feeds {
		if string(feed) == name {
			return feed, true
		}
	}
	return "", false
}
