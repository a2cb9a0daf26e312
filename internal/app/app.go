// Package app wires all phonocoach subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds the coach, the session
// registry and the HTTP surface from already constructed providers, Run
// serves until its context ends, and Shutdown tears everything down in
// order.
//
// For testing, inject a listener, metrics and a log level via functional
// options. Providers are always passed in, so tests use the mocks under
// pkg/provider/*/mock.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonocoach/internal/coach"
	"github.com/MrWong99/phonocoach/internal/config"
	"github.com/MrWong99/phonocoach/internal/health"
	"github.com/MrWong99/phonocoach/internal/mcp"
	"github.com/MrWong99/phonocoach/internal/observe"
	"github.com/MrWong99/phonocoach/internal/server"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
	"github.com/MrWong99/phonocoach/pkg/provider/vad/energy"
)

// shutdownTimeout bounds draining in-flight requests once Run's context ends.
const shutdownTimeout = 15 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	version  string
	listener net.Listener

	// Subsystems, initialised in New.
	coach    *coach.Coach
	sessions *coach.Sessions
	mcp      *mcp.Server
	handler  http.Handler
	http     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets hot reloads change the level of the handler behind lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithListener serves on ln instead of listening on cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and providers. STT and G2P are required.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.G2P == nil {
		return nil, errors.New("app: stt and g2p providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Coach ─────────────────────────────────────────────────────────
	coachOpts := []coach.Option{
		coach.WithSettings(a.settings(cfg)),
		coach.WithMetrics(a.metrics),
	}
	if providers.LLM != nil {
		coachOpts = append(coachOpts, coach.WithTipper(coach.NewTipper(providers.LLM)))
	} else if cfg.Practice.Tips {
		slog.Warn("practice.tips is enabled but no llm provider is configured")
	}
	if cfg.Practice.TrimSilence {
		coachOpts = append(coachOpts, coach.WithSpeechTrim(energy.New()))
	}
	c, err := coach.New(providers.G2P, providers.STT, providers.TTS, coachOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.coach = c

	// ── 2. Sessions ──────────────────────────────────────────────────────
	a.sessions = coach.NewSessions(c,
		coach.WithIdleTimeout(cfg.Server.SessionIdleTimeout),
		coach.WithSessionMetrics(a.metrics),
	)

	// ── 3. MCP tools ─────────────────────────────────────────────────────
	a.mcp = mcp.NewServer(providers.G2P,
		mcp.WithGrading(c.Grader),
		mcp.WithMetrics(a.metrics),
		mcp.WithVersion(a.version),
	)

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	srvOpts := []server.Option{
		server.WithHealth(health.New(a.checkers()...)),
		server.WithMCP(a.mcp.Handler()),
		server.WithMetrics(a.metrics),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithOriginPatterns(cfg.Server.AllowedOrigins...),
	}
	if cfg.Observe.Metrics {
		srvOpts = append(srvOpts, server.WithMetricsHandler(promhttp.Handler()))
	}
	a.handler = server.New(c, a.sessions, srvOpts...).Handler()
	a.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.closers = append(a.closers, providers.Close)
	return a, nil
}

// checkers returns one readiness check per provider pool, in kind order.
func (a *App) checkers() []health.Checker {
	var checks []health.Checker
	for _, kind := range slices.Sorted(maps.Keys(a.providers.Pools)) {
		checks = append(checks, health.PoolChecker(kind, a.providers.Pools[kind]))
	}
	return checks
}

// settings derives the hot-reloadable coach settings from cfg.
func (a *App) settings(cfg *config.Config) coach.Settings {
	return coach.Settings{
		Grader:   coach.Grader{Excellent: cfg.Grading.Excellent, Good: cfg.Grading.Good},
		Language: cfg.Practice.Language,
		Voice: tts.Voice{
			ID:          cfg.Practice.Voice.ID,
			SpeedFactor: cfg.Practice.Voice.Speed,
		},
		Tips: cfg.Practice.Tips,
	}
}

// Coach returns the application's coach.
func (a *App) Coach() *coach.Coach { return a.coach }

// Sessions returns the practice session registry.
func (a *App) Sessions() *coach.Sessions { return a.sessions }

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a configuration change. It
// has the signature expected by [config.NewWatcher]. Sections that need a
// restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GradingChanged || d.VoiceChanged || d.LanguageChanged || d.TipsChanged {
		next := a.settings(new)
		err := a.coach.UpdateSettings(func(s *coach.Settings) { *s = next })
		if err != nil {
			slog.Warn("config reload rejected", "err", err)
		} else {
			slog.Info("practice settings reloaded",
				"excellent", next.Grader.Excellent,
				"good", next.Grader.Good,
				"language", next.Language,
				"voice", next.Voice.ID,
				"tips", next.Tips,
			)
		}
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires a restart to take effect", "section", section)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and expires idle sessions until ctx is cancelled, then
// drains in-flight requests. It returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr); err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.sessions.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := a.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.http.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	slog.Info("app running", "stt", a.cfg.Providers.STT.Name, "g2p", a.cfg.Providers.G2P.Name)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes the HTTP server and releases providers. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Len(), "closers", len(a.closers))

		if err := a.http.Close(); err != nil {
			slog.Warn("http close error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
