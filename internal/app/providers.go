package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/phonocoach/internal/config"
	"github.com/MrWong99/phonocoach/internal/health"
	"github.com/MrWong99/phonocoach/internal/observe"
	"github.com/MrWong99/phonocoach/internal/resilience"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
	"github.com/MrWong99/phonocoach/pkg/provider/llm"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

// Providers holds one interface value per collaborator. TTS and LLM are nil
// when not configured.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
	G2P g2p.Provider
	LLM llm.Provider

	// Pools reports backend health per kind for providers built with
	// failover. Keys are the observe.Kind* constants.
	Pools map[string]health.Pool

	closers []func() error
}

// Close releases every provider that holds resources, such as a loaded
// whisper model.
func (p *Providers) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// BuildProviders instantiates the configured providers through reg. Every
// provider is wrapped in a failover group, even without fallbacks, so that it
// gets a circuit breaker, a tracing span per call, and call metrics on m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	p := &Providers{Pools: make(map[string]health.Pool)}

	sttp, err := build(p, m, observe.KindSTT, cfg.Providers.STT, reg.CreateSTT, resilience.NewSTTFallback)
	if err != nil {
		return nil, closeOnError(p, err)
	}
	p.STT = sttp

	g2pp, err := build(p, m, observe.KindG2P, cfg.Providers.G2P, reg.CreateG2P, resilience.NewG2PFallback)
	if err != nil {
		return nil, closeOnError(p, err)
	}
	p.G2P = g2pp

	if cfg.Providers.TTS.IsSet() {
		ttsp, err := build(p, m, observe.KindTTS, cfg.Providers.TTS, reg.CreateTTS, resilience.NewTTSFallback)
		if err != nil {
			return nil, closeOnError(p, err)
		}
		p.TTS = ttsp
	}
	if cfg.Providers.LLM.IsSet() {
		llmp, err := build(p, m, observe.KindLLM, cfg.Providers.LLM, reg.CreateLLM, resilience.NewLLMFallback)
		if err != nil {
			return nil, closeOnError(p, err)
		}
		p.LLM = llmp
	}
	return p, nil
}

func closeOnError(p *Providers, err error) error {
	if cerr := p.Close(); cerr != nil {
		slog.Warn("failed to close providers after build error", "err", cerr)
	}
	return err
}

// failover is the shape shared by the typed fallback wrappers in
// internal/resilience.
type failover[T any] interface {
	AddFallback(name string, provider T)
	Group() *resilience.FallbackGroup[T]
}

// build creates the primary provider of entry and its fallbacks, and wraps
// them with newGroup.
func build[T any, F failover[T]](
	p *Providers,
	m *observe.Metrics,
	kind string,
	entry config.ProviderEntry,
	create func(config.ProviderEntry) (T, error),
	newGroup func(T, string, resilience.FallbackConfig) F,
) (F, error) {
	var zero F
	primary, err := create(entry)
	if err != nil {
		return zero, fmt.Errorf("app: %s provider %q: %w", kind, entry.Name, err)
	}
	p.track(primary)

	group := newGroup(primary, entry.Name, fallbackConfig(kind, m))
	for i, fb := range entry.Fallbacks {
		v, err := create(fb)
		if err != nil {
			return zero, fmt.Errorf("app: %s fallback %d (%q): %w", kind, i, fb.Name, err)
		}
		p.track(v)
		group.AddFallback(fb.Name, v)
	}
	p.Pools[kind] = group.Group()

	slog.Info("provider configured", "kind", kind, "name", entry.Name, "fallbacks", len(entry.Fallbacks))
	return group, nil
}

func (p *Providers) track(v any) {
	if c, ok := v.(io.Closer); ok {
		p.closers = append(p.closers, c.Close)
	}
}

func fallbackConfig(kind string, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		Kind: kind,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
			},
		},
		Observe: func(ctx context.Context, provider string, d time.Duration, err error) {
			m.RecordProviderCall(ctx, provider, kind, d, err)
		},
	}
}
