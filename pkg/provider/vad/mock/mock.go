// Package mock provides test doubles for the vad package interfaces.
//
// Session returns its scripted Events in order, one per frame, and Silence
// once the script is exhausted:
//
//	sess := &mock.Session{Events: []vad.EventType{vad.Silence, vad.SpeechStart}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/MrWong99/phonocoach/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new default Session is
	// returned.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned by NewSession.
	NewSessionErr error

	// Configs records the Config of every NewSession call in order.
	Configs []vad.Config
}

// NewSession records cfg and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.Session.
type Session struct {
	mu sync.Mutex

	// Events are returned in order by ProcessFrame.
	Events []vad.EventType

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// Frames is the number of ProcessFrame calls.
	Frames int

	// Resets and Closes count the calls to Reset and Close.
	Resets int
	Closes int
}

// ProcessFrame returns the next scripted event.
func (s *Session) ProcessFrame([]byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.Frames
	s.Frames++
	if s.ProcessFrameErr != nil {
		return vad.Event{}, s.ProcessFrameErr
	}
	if i >= len(s.Events) {
		return vad.Event{Type: vad.Silence}, nil
	}
	ev := vad.Event{Type: s.Events[i]}
	if ev.Type == vad.SpeechStart || ev.Type == vad.SpeechContinue {
		ev.Probability = 1
	}
	return ev, nil
}

// Reset increments Resets.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resets++
}

// Close increments Closes.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	return nil
}

var _ vad.Session = (*Session)(nil)
