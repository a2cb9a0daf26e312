package coach

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/phonocoach/pkg/audio"
)

var (
	// ErrNoTarget is returned when a session has no prepared target to
	// practise against.
	ErrNoTarget = errors.New("coach: no target sentence set")

	// ErrStaleRecording is returned when a recording was started before the
	// session's target last changed.
	ErrStaleRecording = errors.New("coach: recording is stale, the target changed")
)

// RecordingState says whether a recording may still be scored.
type RecordingState int

const (
	// StateFresh recordings were started against the current target.
	StateFresh RecordingState = iota

	// StateStale recordings were started against a target that has since
	// been replaced.
	StateStale
)

// String returns "fresh" or "stale".
func (s RecordingState) String() string {
	if s == StateStale {
		return "stale"
	}
	return "fresh"
}

// Recording is a handle for an attempt being recorded. It captures the target
// revision at the time recording began.
type Recording struct {
	Revision uint64 `json:"revision"`
}

// Session holds the current target of one learner and guards attempts
// against target changes. It is safe for concurrent use.
type Session struct {
	id    string
	coach *Coach

	// setMu serializes target changes so a slow preparation cannot overwrite
	// a newer target.
	setMu sync.Mutex

	mu       sync.Mutex
	target   *Target
	revision uint64
	lastUsed time.Time
	now      func() time.Time
}

// NewSession creates a session without a target.
func NewSession(id string, c *Coach) *Session {
	return newSession(id, c, time.Now)
}

func newSession(id string, c *Coach, now func() time.Time) *Session {
	return &Session{id: id, coach: c, now: now, lastUsed: now()}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Revision returns the current target revision. It increases every time the
// target text changes.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Target returns the current target, if any.
func (s *Session) Target() (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.target == nil {
		return Target{}, false
	}
	return *s.target, true
}

// LastUsed returns when the session was last accessed.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SetTarget replaces the target sentence. Setting the same text again is a
// no-op that returns the current target.
//
// Any other text bumps the revision before preparation starts, so every
// recording begun earlier becomes stale even if preparation fails. On failure
// the session is left without a target.
func (s *Session) SetTarget(ctx context.Context, text string) (Target, error) {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	text = strings.TrimSpace(text)
	s.mu.Lock()
	s.touch()
	if s.target != nil && s.target.Text == text {
		t := *s.target
		s.mu.Unlock()
		return t, nil
	}
	s.revision++
	s.target = nil
	rev := s.revision
	s.mu.Unlock()

	t, err := s.coach.PrepareTarget(ctx, text)
	if err != nil {
		return Target{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision == rev {
		s.target = &t
	}
	return t, nil
}

// BeginRecording returns a handle bound to the current target revision.
func (s *Session) BeginRecording() (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.target == nil {
		return Recording{}, ErrNoTarget
	}
	return Recording{Revision: s.revision}, nil
}

// RecordingAt returns a handle for a recording the client began at revision.
// It is how stateless clients, which only echo the revision back, re-attach
// to a recording.
func (s *Session) RecordingAt(revision uint64) Recording {
	return Recording{Revision: revision}
}

// State reports whether rec is still fresh.
func (s *Session) State(rec Recording) RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(rec)
}

func (s *Session) stateLocked(rec Recording) RecordingState {
	if s.target == nil || rec.Revision != s.revision {
		return StateStale
	}
	return StateFresh
}

// Submit scores clip as the attempt recorded under rec. It fails with
// [ErrStaleRecording] when the target changed after rec was begun, including
// while the attempt was being scored, and with [ErrNoTarget] when there is
// no target.
func (s *Session) Submit(ctx context.Context, rec Recording, clip audio.Clip) (Result, error) {
	s.mu.Lock()
	s.touch()
	if s.target == nil && rec.Revision == s.revision {
		s.mu.Unlock()
		return Result{}, ErrNoTarget
	}
	if s.stateLocked(rec) == StateStale {
		s.mu.Unlock()
		return Result{}, ErrStaleRecording
	}
	target := *s.target
	s.mu.Unlock()

	res, err := s.coach.Evaluate(ctx, target, clip)
	if err != nil {
		return Result{}, err
	}

	if s.State(rec) == StateStale {
		return Result{}, ErrStaleRecording
	}
	return res, nil
}

// touch must be called with s.mu held.
func (s *Session) touch() {
	s.lastUsed = s.now()
}
