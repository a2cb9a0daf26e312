package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/phonocoach/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker. The last entry's error is wrapped alongside it, so
// typed provider errors stay reachable with [errors.As].
var ErrAllFailed = errors.New("all providers failed")

// Observer is notified after every provider call a [FallbackGroup] makes.
// Calls skipped because of an open breaker are not reported.
type Observer func(ctx context.Context, provider string, d time.Duration, err error)

// FallbackConfig configures a [FallbackGroup] and the per-entry circuit
// breakers it creates.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Kind labels tracing spans, e.g. "stt". Empty disables spans.
	Kind string

	// Permanent reports errors that describe the request rather than the
	// backend (no speech in the clip, unknown words). They are returned as-is:
	// the breaker does not count them and no fallback is tried.
	Permanent func(error) bool

	// Observe, when set, is called after each provider call.
	Observe Observer
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Entries must be registered before the group is shared. Execution is safe
// for concurrent use.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	if fg.cfg.Kind != "" {
		cbCfg.Name = fg.cfg.Kind + "/" + name
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the entry names in try order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// States returns the breaker state of every entry keyed by entry name.
func (fg *FallbackGroup[T]) States() map[string]State {
	states := make(map[string]State, len(fg.entries))
	for _, e := range fg.entries {
		states[e.name] = e.breaker.State()
	}
	return states
}

// Healthy reports whether at least one entry's breaker is not open.
func (fg *FallbackGroup[T]) Healthy() bool {
	for _, e := range fg.entries {
		if e.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped. Returns [ErrAllFailed] wrapped with
// the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one succeeds,
// returning both the result value and error. This is a package-level function
// because Go does not support method-level type parameters.
//
// The caller's context ending, or an error classified by
// [FallbackConfig.Permanent], stops the walk and is returned unwrapped.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		entry := &fg.entries[i]

		var (
			result  R
			permErr error
			called  bool
		)
		start := time.Now()
		err := entry.breaker.Execute(func() error {
			called = true
			r, innerErr := traced(ctx, fg.cfg.Kind, entry.name, func(c context.Context) (R, error) {
				return fn(c, entry.value)
			})
			if innerErr != nil && fg.permanent(ctx, innerErr) {
				permErr = innerErr
				return nil
			}
			result = r
			return innerErr
		})
		if called && fg.cfg.Observe != nil {
			observed := err
			if permErr != nil {
				observed = permErr
			}
			fg.cfg.Observe(ctx, entry.name, time.Since(start), observed)
		}
		if permErr != nil {
			return zero, permErr
		}
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "kind", fg.cfg.Kind, "provider", entry.name)
		} else {
			observe.Logger(ctx).Warn("provider failed, trying next",
				"kind", fg.cfg.Kind, "provider", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) permanent(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return fg.cfg.Permanent != nil && fg.cfg.Permanent(err)
}

// traced runs fn inside a provider span when kind is set.
func traced[R any](ctx context.Context, kind, provider string, fn func(context.Context) (R, error)) (R, error) {
	if kind == "" {
		return fn(ctx)
	}
	ctx, span := observe.StartProviderSpan(ctx, kind, provider)
	r, err := fn(ctx)
	observe.EndSpan(span, err)
	return r, err
}
