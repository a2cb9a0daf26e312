// Package vad defines frame-level voice activity detection and uses it to
// trim recorded attempts down to the part that contains speech.
//
// An [Engine] creates one [Session] per audio stream. A session keeps its own
// detection state (smoothing, hangover counters), so several attempts can be
// processed concurrently through one engine. A single Session must not be
// shared between goroutines.
package vad

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the rate of the PCM frames in Hz.
	SampleRate int

	// FrameSizeMs is the duration of each frame in milliseconds.
	// ProcessFrame rejects frames of any other size.
	FrameSizeMs int

	// SpeechThreshold is the probability at or above which a frame starts
	// speech. Range [0, 1].
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame counts towards
	// ending speech. Must not exceed SpeechThreshold.
	SilenceThreshold float64
}

// DefaultConfig returns 30 ms frames at the recognizer sample rate.
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		FrameSizeMs:      30,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.35,
	}
}

// FrameBytes is the size of one mono 16-bit frame under c.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Validate reports the first invalid field of c.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("vad: sample rate %d must be positive", c.SampleRate)
	case c.FrameSizeMs <= 0 || c.FrameBytes() == 0:
		return fmt.Errorf("vad: frame size %d ms is too small at %d Hz", c.FrameSizeMs, c.SampleRate)
	case c.SpeechThreshold < 0 || c.SpeechThreshold > 1:
		return fmt.Errorf("vad: speech threshold %.2f is out of range [0, 1]", c.SpeechThreshold)
	case c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold:
		return fmt.Errorf("vad: silence threshold %.2f must be in [0, %.2f]", c.SilenceThreshold, c.SpeechThreshold)
	}
	return nil
}

// Session detects speech in a single audio stream.
type Session interface {
	// ProcessFrame classifies one frame of mono 16-bit PCM. It never blocks.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears the detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations are safe for
// concurrent use.
type Engine interface {
	// NewSession returns a session ready to accept frames. It fails when cfg
	// is invalid or not supported by the engine.
	NewSession(cfg Config) (Session, error)
}

// Event is the detection result for one frame.
type Event struct {
	Type EventType

	// Probability is the speech probability of the frame, in [0, 1].
	Probability float64
}

// EventType enumerates detection states.
type EventType int

const (
	// Silence means no speech is in progress.
	Silence EventType = iota

	// SpeechStart marks the first frame of speech.
	SpeechStart

	// SpeechContinue marks a frame inside ongoing speech.
	SpeechContinue

	// SpeechEnd marks the frame after which speech is over.
	SpeechEnd
)

func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}
