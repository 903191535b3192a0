package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "courier:changes:"

// Redis shares change notifications between processes over Redis pub/sub.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// NewRedisClient parses a redis:// URL, or a bare host:port.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return redis.NewClient(opts), nil
}

func (r *Redis) Publish(ctx context.Context, topic string) error {
	return r.client.Publish(ctx, channelPrefix+topic, "").Err()
}

func (r *Redis) Subscribe(ctx context.Context, topics ...string) (<-chan struct{}, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = channelPrefix + t
	}
	sub := r.client.Subscribe(ctx, channels...)
	// wait for the server to confirm so no publish after this call is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	pending := make(chan struct{}, 1)
	out := make(chan struct{})
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(pending)
			case <-pending:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				case _, ok := <-msgs:
					if !ok {
						return
					}
					// still undelivered, keep the single pending signal
					signal(pending)
				}
			}
		}
	}()
	return out, nil
}
