// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server,
// ElevenLabs or OpenAI) and produces the reference recording a learner
// listens to before attempting a phrase. Synthesis is batch: one call returns
// the complete utterance as a decoded PCM [audio.Clip].
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/phonocoach/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech in the given voice. A zero Voice
	// selects the provider default.
	//
	// Errors are [*SynthesisError] values.
	Synthesize(ctx context.Context, text string, voice Voice) (audio.Clip, error)

	// ListVoices returns the voices available from this provider. The list
	// reflects the provider's current catalogue and may change between calls.
	ListVoices(ctx context.Context) ([]Voice, error)
}

// ErrEmptyText is wrapped by a [SynthesisError] when there is nothing to say.
var ErrEmptyText = errors.New("tts: empty text")

// SynthesisError reports that a provider failed to produce audio.
type SynthesisError struct {
	// Provider is the short name of the backend (e.g. "coqui").
	Provider string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *SynthesisError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("tts: synthesis failed: %v", e.Err)
	}
	return fmt.Sprintf("tts: %s: synthesis failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SynthesisError) Unwrap() error { return e.Err }

// Fail wraps err as a [*SynthesisError] attributed to provider. An error that
// already is a SynthesisError is returned unchanged, and a nil err yields nil.
func Fail(provider string, err error) error {
	if err == nil {
		return nil
	}
	var se *SynthesisError
	if errors.As(err, &se) {
		return err
	}
	return &SynthesisError{Provider: provider, Err: err}
}

// Failf is [Fail] with a formatted cause.
func Failf(provider, format string, args ...any) error {
	return &SynthesisError{Provider: provider, Err: fmt.Errorf(format, args...)}
}
