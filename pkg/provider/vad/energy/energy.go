// Package energy implements a [vad.Engine] that classifies frames by their
// RMS level. It needs no model and suits close-microphone recordings of a
// single speaker, which is what practice attempts are.
package energy

import (
	"fmt"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/vad"
)

const (
	defaultReference = 2000.0
	defaultHangover  = 8
)

var _ vad.Engine = (*Engine)(nil)

// Option is a functional option for [New].
type Option func(*Engine)

// WithReference sets the RMS level, in 16-bit sample units, that maps to a
// speech probability of 1. Default: 2000.
func WithReference(rms float64) Option {
	return func(e *Engine) {
		if rms > 0 {
			e.reference = rms
		}
	}
}

// WithHangover sets how many consecutive quiet frames end speech. Default: 8
// (240 ms with 30 ms frames).
func WithHangover(frames int) Option {
	return func(e *Engine) {
		if frames > 0 {
			e.hangover = frames
		}
	}
}

// Engine creates energy-based sessions.
type Engine struct {
	reference float64
	hangover  int
}

// New returns an Engine with the given options applied.
func New(opts ...Option) *Engine {
	e := &Engine{reference: defaultReference, hangover: defaultHangover}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{
		frameBytes: cfg.FrameBytes(),
		speech:     cfg.SpeechThreshold,
		silence:    cfg.SilenceThreshold,
		reference:  e.reference,
		hangover:   e.hangover,
	}, nil
}

type session struct {
	frameBytes int
	speech     float64
	silence    float64
	reference  float64
	hangover   int

	speaking bool
	quiet    int
	closed   bool
}

func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, vad.ErrSessionClosed
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	ev := vad.Event{Probability: min(audio.RMS(frame)/s.reference, 1)}
	switch {
	case !s.speaking && ev.Probability >= s.speech:
		s.speaking, s.quiet = true, 0
		ev.Type = vad.SpeechStart
	case !s.speaking:
		ev.Type = vad.Silence
	case ev.Probability < s.silence:
		s.quiet++
		if s.quiet >= s.hangover {
			s.speaking, s.quiet = false, 0
			ev.Type = vad.SpeechEnd
		} else {
			ev.Type = vad.SpeechContinue
		}
	default:
		s.quiet = 0
		ev.Type = vad.SpeechContinue
	}
	return ev, nil
}

func (s *session) Reset() {
	s.speaking, s.quiet = false, 0
}

func (s *session) Close() error {
	s.closed = true
	return nil
}
