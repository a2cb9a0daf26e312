package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/phonocoach/internal/config"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p/cmudict"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p/espeak"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p/goruut"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p/lexicon"
	"github.com/MrWong99/phonocoach/pkg/provider/llm"
	"github.com/MrWong99/phonocoach/pkg/provider/llm/anyllm"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
	"github.com/MrWong99/phonocoach/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/phonocoach/pkg/provider/stt/openai"
	"github.com/MrWong99/phonocoach/pkg/provider/stt/whisper"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
	"github.com/MrWong99/phonocoach/pkg/provider/tts/coqui"
	"github.com/MrWong99/phonocoach/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/MrWong99/phonocoach/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Every any-llm-go backend takes an optional APIKey and BaseURL. Local
	// servers such as ollama only need the BaseURL.
	for _, backend := range anyllm.Backends() {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "concurrency"); n > 0 {
			opts = append(opts, whisper.WithNativeConcurrency(n))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, sttopenai.WithTimeout(d))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, coqui.WithDefaultVoice(voice))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, ttsopenai.WithDefaultVoice(voice))
		}
		if instr := optString(entry.Options, "instructions"); instr != "" {
			opts = append(opts, ttsopenai.WithInstructions(instr))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── G2P ───────────────────────────────────────────────────────────────────

	reg.RegisterG2P("goruut", func(entry config.ProviderEntry) (g2p.Provider, error) {
		return goruut.New(
			goruut.WithLanguage(optString(entry.Options, "language")),
			goruut.WithStress(optBool(entry.Options, "stress", true)),
		), nil
	})

	// cmudict is a dictionary-file backend: options.dict_path names a full
	// CMU pronouncing dictionary. Without it only the compiled-in seed words
	// are known.
	reg.RegisterG2P("cmudict", func(entry config.ProviderEntry) (g2p.Provider, error) {
		opts := []cmudict.Option{
			cmudict.WithStrict(optBool(entry.Options, "strict", true)),
			cmudict.WithStress(optBool(entry.Options, "stress", true)),
		}
		if path := optString(entry.Options, "dict_path"); path != "" {
			return cmudict.NewFromFile(path, opts...)
		}
		return cmudict.New(opts...), nil
	})

	reg.RegisterG2P("espeak", func(entry config.ProviderEntry) (g2p.Provider, error) {
		opts := []espeak.Option{
			espeak.WithStress(optBool(entry.Options, "stress", true)),
		}
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, espeak.WithVoice(voice))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, espeak.WithTimeout(d))
		}
		return espeak.New(opts...)
	})

	// lexicon overrides selected words and delegates the rest to the
	// converter named by options.next (default goruut).
	reg.RegisterG2P("lexicon", func(entry config.ProviderEntry) (g2p.Provider, error) {
		path := optString(entry.Options, "path")
		if path == "" {
			return nil, fmt.Errorf("lexicon: options.path is required")
		}
		nextName := optString(entry.Options, "next")
		if nextName == "" {
			nextName = "goruut"
		}
		var next g2p.Provider
		if nextName != "none" {
			n, err := reg.CreateG2P(config.ProviderEntry{Name: nextName, Options: entry.Options})
			if err != nil {
				return nil, fmt.Errorf("lexicon: next converter: %w", err)
			}
			next = n
		}
		return lexicon.Load(path, next)
	})

	for _, kind := range []string{"stt", "tts", "g2p", "llm"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optBool extracts a boolean option, returning def when it is absent or not
// a boolean.
func optBool(opts map[string]any, key string, def bool) bool {
	if b, ok := opts[key].(bool); ok {
		return b
	}
	return def
}

// optInt extracts an integer option. YAML numbers decode as int; strings are
// parsed. Returns 0 when absent or malformed.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// optDuration extracts a duration option written as a Go duration string
// ("5s") or a number of seconds. Returns 0 when absent or malformed.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case string:
		d, _ := time.ParseDuration(v)
		return d
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}
