package pubsub

import (
	"context"
	"sync"
)

// Local is an in-process Notifier.
type Local struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan struct{}
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[int]chan struct{})}
}

func (l *Local) Publish(_ context.Context, topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs[topic] {
		signal(ch)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, topics ...string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	out := make(chan struct{})

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	for _, t := range topics {
		if l.subs[t] == nil {
			l.subs[t] = make(map[int]chan struct{})
		}
		l.subs[t][id] = ch
	}
	l.mu.Unlock()

	go func() {
		defer close(out)
		defer l.unsubscribe(id, topics)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (l *Local) unsubscribe(id int, topics []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range topics {
		delete(l.subs[t], id)
		if len(l.subs[t]) == 0 {
			delete(l.subs, t)
		}
	}
}
