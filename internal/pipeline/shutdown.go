package pipeline

import (
	"context"
	"sync"
)

// Shutdown fans one stop signal out to every listener pipeline. Once fired it
// stays fired.
type Shutdown struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	idle      chan struct{} // closed while there are no listeners
}

// Listener is one pipeline's subscription to a Shutdown.
type Listener struct {
	ID   string
	done <-chan struct{}
}

// NewShutdown creates an unfired shutdown signal.
func NewShutdown() *Shutdown {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Shutdown{
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[*Listener]struct{}),
		idle:      idle,
	}
}

// Subscribe registers a new listener.
func (s *Shutdown) Subscribe(id string) *Listener {
	l := &Listener{ID: id, done: s.ctx.Done()}
	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.idle = make(chan struct{})
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
	return l
}

// Unsubscribe removes a listener. Removing one twice is a no-op.
func (s *Shutdown) Unsubscribe(l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[l]; !ok {
		return
	}
	delete(s.listeners, l)
	if len(s.listeners) == 0 {
		close(s.idle)
	}
}

// ListenerCount returns the number of subscribed listeners.
func (s *Shutdown) ListenerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Fire signals every current and future listener.
func (s *Shutdown) Fire() {
	s.cancel()
}

// Context is cancelled when the shutdown fires. Listener pipelines derive
// their request contexts from it so blocked stages wake up.
func (s *Shutdown) Context() context.Context {
	return s.ctx
}

// Wait blocks until every listener has unsubscribed or ctx is done.
func (s *Shutdown) Wait(ctx context.Context) error {
	for {
		s.mu.RLock()
		idle := s.idle
		n := len(s.listeners)
		s.mu.RUnlock()
		if n == 0 {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Done is closed once the shutdown fires.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Fired reports, without blocking, whether the shutdown has fired.
func (l *Listener) Fired() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
