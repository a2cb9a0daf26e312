// Package stt defines the Provider interface for speech recognition backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp model or
// server, OpenAI's transcription API, or Deepgram) and turns one recorded
// attempt into a best-guess transcript. Recognition is treated as best-effort
// and non-deterministic: the same clip may transcribe differently between
// providers, models or even runs.
//
// Every failure a provider returns is, or wraps into, a [*RecognitionError]
// so callers can distinguish "the recognizer could not understand this" from
// their own bugs with a single [errors.As].
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/phonocoach/pkg/audio"
)

// Options carries per-call recognition hints.
type Options struct {
	// Language is the BCP-47 or ISO-639-1 language of the attempt (e.g. "en",
	// "en-US"). Empty lets the provider use its configured default or
	// auto-detect.
	Language string

	// Prompt is optional text that biases recognition towards expected
	// vocabulary. Providers without prompt support ignore it.
	Prompt string
}

// Provider is the abstraction over any speech recognition backend.
type Provider interface {
	// Transcribe recognizes the speech in clip. Clips in any sample rate and
	// channel layout are accepted; providers convert as needed.
	//
	// Errors are [*RecognitionError] values. An empty transcript is reported
	// as an error with [ErrNoSpeech], never as a successful empty Transcript.
	Transcribe(ctx context.Context, clip audio.Clip, opts Options) (Transcript, error)
}

// ErrNoSpeech is wrapped by a [RecognitionError] when the provider returned
// no words for the clip.
var ErrNoSpeech = errors.New("stt: no speech recognized")

// RecognitionError reports that a provider failed to produce a transcript.
type RecognitionError struct {
	// Provider is the short name of the backend (e.g. "whisper", "deepgram").
	Provider string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *RecognitionError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("stt: recognition failed: %v", e.Err)
	}
	return fmt.Sprintf("stt: %s: recognition failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RecognitionError) Unwrap() error { return e.Err }

// Fail wraps err as a [*RecognitionError] attributed to provider. An error
// that already is a RecognitionError is returned unchanged, and a nil err
// yields nil.
func Fail(provider string, err error) error {
	if err == nil {
		return nil
	}
	var re *RecognitionError
	if errors.As(err, &re) {
		return err
	}
	return &RecognitionError{Provider: provider, Err: err}
}

// Failf is [Fail] with a formatted cause.
func Failf(provider, format string, args ...any) error {
	return &RecognitionError{Provider: provider, Err: fmt.Errorf(format, args...)}
}
