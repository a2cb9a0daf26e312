package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/phonocoach/internal/app"
	"github.com/MrWong99/phonocoach/internal/config"
	"github.com/MrWong99/phonocoach/internal/observe"
	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/phonetic"
)

// attemptFlags are the command-line inputs of a one-shot practice run.
type attemptFlags struct {
	target    string
	audio     string
	reference string
	marker    string
}

// practiceOnce prepares the target sentence, optionally writes its reference
// recording, scores the recorded attempt and prints the feedback to stdout.
func practiceOnce(cfg *config.Config, reg *config.Registry, f attemptFlags) int {
	if f.audio == "" && f.reference == "" {
		fmt.Fprintln(os.Stderr, "phonocoach: -target needs -audio, -reference or both")
		return 2
	}
	marker, err := phonetic.MarkerByName(f.marker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "phonocoach: %v\n", err)
		return 2
	}

	var clip audio.Clip
	if f.audio != "" {
		wav, err := os.ReadFile(f.audio)
		if err != nil {
			fmt.Fprintf(os.Stderr, "phonocoach: %v\n", err)
			return 1
		}
		if clip, err = audio.DecodeWAV(wav); err != nil {
			fmt.Fprintf(os.Stderr, "phonocoach: %s: %v\n", f.audio, err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Synthesis only runs when a reference file is requested.
	if f.reference == "" {
		cfg.Providers.TTS = config.ProviderEntry{}
	}
	providers, err := app.BuildProviders(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	application, err := app.New(cfg, providers, app.WithVersion(version))
	if err != nil {
		_ = providers.Close()
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(sctx)
	}()

	c := application.Coach()
	target, err := c.PrepareTarget(ctx, f.target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "phonocoach: prepare target: %v\n", err)
		return 1
	}
	fmt.Printf("Target : %s\n", target.Text)
	fmt.Printf("         /%s/\n", target.Phonemic)

	if f.reference != "" {
		if target.Reference.IsEmpty() {
			fmt.Fprintln(os.Stderr, "phonocoach: no synthesizer configured, set providers.tts to write a reference")
			return 1
		}
		if err := os.WriteFile(f.reference, audio.EncodeWAV(target.Reference), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "phonocoach: %v\n", err)
			return 1
		}
		fmt.Printf("Reference written to %s (%s)\n", f.reference, target.Reference.Duration().Round(10*time.Millisecond))
	}
	if f.audio == "" {
		return 0
	}

	res, err := c.Evaluate(ctx, target, clip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "phonocoach: score attempt: %v\n", err)
		return 1
	}
	fmt.Printf("Heard  : %s\n", res.Heard)
	fmt.Printf("         /%s/\n", res.Render(marker))
	fmt.Printf("Score  : %d (%s)\n", res.Score(), res.Grade)
	fmt.Println(res.Message)
	for _, w := range res.Words {
		if w.Verdict != phonetic.VerdictExact {
			fmt.Printf("  %-16s heard %-16q %s\n", w.Target, w.Heard, w.Verdict)
		}
	}
	if res.Tip != "" {
		fmt.Printf("Tip    : %s\n", res.Tip)
	}
	return 0
}
