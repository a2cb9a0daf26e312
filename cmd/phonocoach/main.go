// Command phonocoach is the entry point for the phonocoach pronunciation
// practice service.
//
// Without -target it serves the HTTP, websocket and MCP surfaces. With
// -target and -audio it scores a single recorded attempt and prints the
// result:
//
//	phonocoach -config config.yaml -target "The quick brown fox" -audio attempt.wav
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/phonocoach/internal/app"
	"github.com/MrWong99/phonocoach/internal/config"
	"github.com/MrWong99/phonocoach/internal/observe"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the configuration")
	target := flag.String("target", "", "practice sentence; scores -audio once instead of serving")
	audioPath := flag.String("audio", "", "WAV recording of the attempt (with -target)")
	referencePath := flag.String("reference", "", "write the reference pronunciation to this WAV file (with -target)")
	markerName := flag.String("marker", "ansi", "mismatch marker for -target output: ansi, bracket, markdown or html")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "phonocoach: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "phonocoach: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "phonocoach: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(&level))

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── One-shot practice ─────────────────────────────────────────────────────
	if *target != "" {
		return practiceOnce(cfg, reg, attemptFlags{
			target:    *target,
			audio:     *audioPath,
			reference: *referencePath,
			marker:    *markerName,
		})
	}

	slog.Info("phonocoach starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observe.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := app.BuildProviders(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers,
		app.WithLogLevel(&level),
		app.WithVersion(version),
	)
	if err != nil {
		_ = providers.Close()
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       phonocoach startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT)
	printProvider("TTS", cfg.Providers.TTS)
	printProvider("G2P", cfg.Providers.G2P)
	printProvider("LLM", cfg.Providers.LLM)
	fmt.Printf("║  Grading         : %-19s ║\n",
		fmt.Sprintf(">%d excellent, >%d good", cfg.Grading.Excellent, cfg.Grading.Good))
	fmt.Printf("║  Language        : %-19s ║\n", cfg.Practice.Language)
	if cfg.Practice.Tips {
		fmt.Printf("║  Coaching tips   : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Coaching tips   : %-19s ║\n", "(disabled)")
	}
	if cfg.Observe.Metrics {
		fmt.Printf("║  Metrics         : %-19s ║\n", "/metrics")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, entry config.ProviderEntry) {
	value := entry.Name
	switch {
	case value == "":
		value = "(not configured)"
	case entry.Model != "":
		value = entry.Name + " / " + entry.Model
	}
	if n := len(entry.Fallbacks); n > 0 && entry.Name != "" {
		value += fmt.Sprintf(" +%d", n)
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger whose level follows lv, so config reloads
// can change it.
func newLogger(lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
