package docstore

import (
	"context"

	"courier/courier/sources/pubsub"

	"go.uber.org/zap"
)

// watch emits read() once, then again after every change signal on topics,
// until ctx is done. Subscribing happens before the first read so no change
// between the two is lost.
func watch[T any](ctx context.Context, log *zap.Logger, n pubsub.Notifier, topics []string, read func(context.Context) (T, error)) (<-chan T, error) {
	signals, err := n.Subscribe(ctx, topics...)
	if err != nil {
		return nil, err
	}
	out := make(chan T, 1)
	go func() {
		defer close(out)
		emit := func() bool {
			v, err := read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				log.Warn("live query read failed", zap.Strings("topics", topics), zap.Error(err))
				return true
			}
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !emit() {
			return
		}
		for range signals {
			if !emit() {
				return
			}
		}
	}()
	return out, nil
}

func publish(ctx context.Context, log *zap.Logger, n pubsub.Notifier, collection, path string) {
	for _, topic := range []string{pubsub.CollectionTopic(collection), pubsub.DocumentTopic(path)} {
		if err := n.Publish(ctx, topic); err != nil {
			log.Warn("change notification failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}
