// Package pubsub fans document change notifications out to live queries.
// A notification carries no payload; subscribers re-read what they watch.
package pubsub

import "context"

type Notifier interface {
	Publish(ctx context.Context, topic string) error
	// Subscribe returns a channel that receives a signal after every publish
	// on any of topics. Bursts coalesce into one pending signal. The channel
	// closes when ctx is done.
	Subscribe(ctx context.Context, topics ...string) (<-chan struct{}, error)
}

func CollectionTopic(collection string) string { return "col:" + collection }

func DocumentTopic(path string) string { return "doc:" + path }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
