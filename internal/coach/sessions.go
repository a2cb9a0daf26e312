package coach

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/phonocoach/internal/observe"
)

// ErrSessionNotFound is returned by [Sessions.Get] for unknown or expired IDs.
var ErrSessionNotFound = errors.New("coach: session not found")

// defaultIdleTimeout is how long an untouched session survives.
const defaultIdleTimeout = 30 * time.Minute

// SessionsOption is a functional option for [NewSessions].
type SessionsOption func(*Sessions)

// WithIdleTimeout sets how long a session may go unused before
// [Sessions.Sweep] removes it. Default: 30m.
func WithIdleTimeout(d time.Duration) SessionsOption {
	return func(s *Sessions) {
		if d > 0 {
			s.idle = d
		}
	}
}

// WithSessionMetrics sets the metrics the active session gauge is kept in.
// Default: [observe.DefaultMetrics].
func WithSessionMetrics(m *observe.Metrics) SessionsOption {
	return func(s *Sessions) { s.metrics = m }
}

// Sessions is an in-memory registry of practice sessions. Nothing is
// persisted; a restart forgets every session. It is safe for concurrent use.
type Sessions struct {
	coach   *Coach
	idle    time.Duration
	metrics *observe.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates an empty registry whose sessions score with c.
func NewSessions(c *Coach, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		coach:    c,
		idle:     defaultIdleTimeout,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Create registers a new session with a random ID.
func (s *Sessions) Create(ctx context.Context) *Session {
	sess := newSession(uuid.NewString(), s.coach, s.now)
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	s.metrics.ActiveSessions.Add(ctx, 1)
	return sess
}

// Get returns the session with id.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes the session with id. It reports whether it existed.
func (s *Sessions) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		s.metrics.ActiveSessions.Add(ctx, -1)
	}
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than the idle timeout and returns
// how many were removed.
func (s *Sessions) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.idle)
	s.mu.Lock()
	var n int
	for id, sess := range s.sessions {
		if sess.LastUsed().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.metrics.ActiveSessions.Add(ctx, int64(-n))
		slog.Debug("expired idle sessions", "count", n)
	}
	return n
}

// Run sweeps idle sessions periodically until ctx is cancelled. It always
// returns nil so it can run inside an errgroup.
func (s *Sessions) Run(ctx context.Context) error {
	ticker := time.NewTicker(max(s.idle/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
