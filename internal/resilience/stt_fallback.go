package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// recognizers. Each backend has its own circuit breaker.
//
// A clip without speech is the speaker's problem, not the backend's: errors
// wrapping [stt.ErrNoSpeech] are returned immediately.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool { return errors.Is(err, stt.ErrNoSpeech) }
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional recognizer as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Group exposes the underlying group for health reporting.
func (f *STTFallback) Group() *FallbackGroup[stt.Provider] { return f.group }

// Transcribe recognizes clip with the first healthy recognizer.
func (f *STTFallback) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, clip, opts)
	})
}
