package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
)

// G2PFallback implements [g2p.Provider] with automatic failover across
// multiple converters.
//
// Unknown words are a property of the input: [g2p.ErrUnsupportedText] is
// returned without consulting fallbacks. Mixing converters inside one
// comparison would compare two phoneme inventories, so fallbacks should
// share the primary's IPA conventions.
type G2PFallback struct {
	group *FallbackGroup[g2p.Provider]
}

var _ g2p.Provider = (*G2PFallback)(nil)

// NewG2PFallback creates a [G2PFallback] with primary as the preferred backend.
func NewG2PFallback(primary g2p.Provider, primaryName string, cfg FallbackConfig) *G2PFallback {
	if cfg.Kind == "" {
		cfg.Kind = "g2p"
	}
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool { return errors.Is(err, g2p.ErrUnsupportedText) }
	}
	return &G2PFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional converter as a fallback.
func (f *G2PFallback) AddFallback(name string, provider g2p.Provider) {
	f.group.AddFallback(name, provider)
}

// Group exposes the underlying group for health reporting.
func (f *G2PFallback) Group() *FallbackGroup[g2p.Provider] { return f.group }

// ToPhonemic converts text with the first healthy converter.
func (f *G2PFallback) ToPhonemic(ctx context.Context, text string) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p g2p.Provider) (string, error) {
		return p.ToPhonemic(ctx, text)
	})
}
