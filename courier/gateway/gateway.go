// Package gateway is the session and messaging gateway UI code talks to.
// It holds no durable state: every call is a single request to the identity
// provider, document store, blob store or push platform. Failures are
// logged and surface to the caller only as an absent result.
package gateway

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"courier/courier/sources/push"
	"courier/courier/sources/storage"
	"courier/courier/types"
	"courier/courier/utils/metrics"

	"go.uber.org/zap"
)

const (
	ViewHome  = "/"
	ViewLogin = "/login"

	RecentMessageLimit = 50
)

type Identity interface {
	SignIn(ctx context.Context, credential string) (*types.Principal, error)
	SignOut(ctx context.Context) error
	// Watch emits the current principal first, then every change, until
	// ctx is done.
	Watch(ctx context.Context) <-chan *types.Principal
}

type Documents interface {
	Add(ctx context.Context, collection string, data map[string]any) (types.DocumentRef, error)
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Delete(ctx context.Context, path string) error
	WatchDocument(ctx context.Context, path string) (<-chan *types.Document, error)
	WatchQuery(ctx context.Context, q types.Query) (<-chan types.Snapshot, error)
}

type Blobs interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, progress storage.Progress) (int64, error)
	URL(ctx context.Context, key string) (string, error)
}

type Push interface {
	RequestPermission(ctx context.Context) (push.Permission, error)
	Token(ctx context.Context) (string, error)
}

type Navigator interface {
	Navigate(view string)
}

type NavigatorFunc func(view string)

func (f NavigatorFunc) Navigate(view string) { f(view) }

type Deps struct {
	Identity  Identity
	Documents Documents
	Blobs     Blobs
	Push      Push
	Navigator Navigator
	Metrics   *metrics.Metrics
}

type Gateway struct {
	identity  Identity
	documents Documents
	blobs     Blobs
	push      Push
	navigator Navigator
	metrics   *metrics.Metrics
	log       *zap.Logger

	principal atomic.Pointer[types.Principal]
	mu        sync.Mutex
	changed   chan struct{}

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New subscribes to the identity stream for the lifetime of the gateway.
// The current principal is cached before New returns.
func New(deps Deps, log *zap.Logger) *Gateway {
	nav := deps.Navigator
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		identity:  deps.Identity,
		documents: deps.Documents,
		blobs:     deps.Blobs,
		push:      deps.Push,
		navigator: nav,
		metrics:   deps.Metrics,
		log:       log,
		changed:   make(chan struct{}),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	events := deps.Identity.Watch(ctx)
	if p, ok := <-events; ok {
		g.principal.Store(p)
	}
	go g.track(events)
	return g
}

// Close releases the identity subscription. Safe to call more than once.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		g.cancel()
		<-g.done
	})
}

// CurrentPrincipal returns the cached principal, nil when signed out.
func (g *Gateway) CurrentPrincipal() *types.Principal {
	return g.principal.Load()
}

func (g *Gateway) track(events <-chan *types.Principal) {
	defer close(g.done)
	for p := range events {
		g.principal.Store(p)

		g.mu.Lock()
		close(g.changed)
		g.changed = make(chan struct{})
		g.mu.Unlock()

		uid := ""
		if p != nil {
			uid = p.ID
		}
		g.log.Info("identity changed", zap.String("uid", uid))
	}
}

// awaitChange blocks until the cached principal is no longer old. A
// non-zero deadline bounds the wait: a session that expires before the
// change is observed may coalesce it away.
func (g *Gateway) awaitChange(ctx context.Context, old *types.Principal, deadline time.Time) {
	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}
	for {
		g.mu.Lock()
		if g.principal.Load() != old {
			g.mu.Unlock()
			return
		}
		ch := g.changed
		g.mu.Unlock()

		select {
		case <-ch:
		case <-expired:
			return
		case <-ctx.Done():
			return
		case <-g.done:
			return
		}
	}
}
