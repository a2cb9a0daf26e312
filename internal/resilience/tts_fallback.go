package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// synthesizers. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool { return errors.Is(err, tts.ErrEmptyText) }
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional synthesizer as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Group exposes the underlying group for health reporting.
func (f *TTSFallback) Group() *FallbackGroup[tts.Provider] { return f.group }

// Synthesize renders text with the first healthy synthesizer.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) (audio.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}
