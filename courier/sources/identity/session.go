package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"courier/courier/types"

	"go.uber.org/zap"
)

var ErrCancelled = errors.New("sign-in cancelled")

// Verifier turns the credential produced by the provider's interactive flow
// into a principal.
type Verifier interface {
	Verify(credential string) (*types.Principal, error)
}

// Session is one client's view of the identity provider: who is signed in,
// plus a stream of changes to that. The principal is dropped automatically
// when its session validity runs out.
type Session struct {
	verifier Verifier
	log      *zap.Logger

	mu       sync.Mutex
	current  *types.Principal
	expiry   *time.Timer
	nextID   int
	watchers map[int]chan *types.Principal
}

func NewSession(verifier Verifier, log *zap.Logger) *Session {
	return &Session{
		verifier: verifier,
		log:      log,
		watchers: make(map[int]chan *types.Principal),
	}
}

// SignIn verifies credential and makes its principal current. An empty
// credential means the user dismissed the flow.
func (s *Session) SignIn(ctx context.Context, credential string) (*types.Principal, error) {
	if credential == "" {
		return nil, ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.verifier.Verify(credential)
	if err != nil {
		return nil, err
	}
	s.set(p)
	return p, nil
}

func (s *Session) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.set(nil)
	return nil
}

func (s *Session) Current() *types.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Watch emits the current principal (nil when signed out), then every
// change, until ctx is done. Only the latest value is kept for a slow reader.
func (s *Session) Watch(ctx context.Context) <-chan *types.Principal {
	ch := make(chan *types.Principal, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.current
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Session) set(p *types.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(p)
}

func (s *Session) setLocked(p *types.Principal) {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	s.current = p
	if p != nil && !p.ExpiresAt.IsZero() {
		s.expiry = time.AfterFunc(time.Until(p.ExpiresAt), func() { s.expire(p) })
	}
	for _, ch := range s.watchers {
		latest(ch, p)
	}
}

func (s *Session) expire(p *types.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != p {
		return
	}
	s.log.Info("session expired", zap.String("uid", p.ID))
	s.setLocked(nil)
}

// latest replaces any unread value in ch with p.
func latest(ch chan *types.Principal, p *types.Principal) {
	select {
	case <-ch:
	default:
	}
	ch <- p
}

// Stop cancels the pending expiry. The session must not be used afterwards.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}
