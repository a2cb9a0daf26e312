package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "openai", "deepgram", "mock"},
	"tts": {"coqui", "elevenlabs", "openai", "mock"},
	"g2p": {"goruut", "cmudict", "lexicon", "espeak", "mock"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Defaults] and
// validates the result. ${VAR} and ${VAR:-default} references are expanded
// from the environment before decoding. An empty document yields the
// defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := Defaults()
	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} in s with values from the
// environment. A bare $VAR is left alone so secrets containing dollar signs
// survive. Unset variables without a default expand to the empty string and
// are logged.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok && v != "" {
			return v
		}
		if strings.Contains(ref, ":-") {
			return m[2]
		}
		slog.Warn("config references unset environment variable", "name", m[1])
		return ""
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout %v must not be negative", cfg.Server.ReadTimeout))
	}
	if cfg.Server.SessionIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.session_idle_timeout %v must not be negative", cfg.Server.SessionIdleTimeout))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}

	// Providers
	if !cfg.Providers.STT.IsSet() {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if !cfg.Providers.G2P.IsSet() {
		errs = append(errs, errors.New("providers.g2p.name is required"))
	}
	for kind, entry := range map[string]ProviderEntry{
		"stt": cfg.Providers.STT,
		"tts": cfg.Providers.TTS,
		"g2p": cfg.Providers.G2P,
		"llm": cfg.Providers.LLM,
	} {
		validateProviderName(kind, entry.Name)
		for i, fb := range entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, fb.Name)
			if len(fb.Fallbacks) > 0 {
				slog.Warn("nested provider fallbacks are ignored", "kind", kind, "name", fb.Name)
			}
		}
		if !entry.IsSet() && len(entry.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s has fallbacks but no name", kind))
		}
	}

	// Grading
	g := cfg.Grading
	if g.Good < 0 || g.Good > 100 {
		errs = append(errs, fmt.Errorf("grading.good %d is out of range [0, 100]", g.Good))
	}
	if g.Excellent < 0 || g.Excellent > 100 {
		errs = append(errs, fmt.Errorf("grading.excellent %d is out of range [0, 100]", g.Excellent))
	}
	if g.Good > g.Excellent {
		errs = append(errs, fmt.Errorf("grading.good %d must not exceed grading.excellent %d", g.Good, g.Excellent))
	}

	// Practice
	if s := cfg.Practice.Voice.Speed; s != 0 && (s < 0.5 || s > 2.0) {
		errs = append(errs, fmt.Errorf("practice.voice.speed %.2f is out of range [0.5, 2.0]", s))
	}
	if cfg.Practice.Tips && !cfg.Providers.LLM.IsSet() {
		slog.Warn("practice.tips is enabled but providers.llm is not configured; tips will be skipped")
	}
	if cfg.Practice.Voice.ID != "" && !cfg.Providers.TTS.IsSet() {
		slog.Warn("practice.voice is set but providers.tts is not configured; no reference audio will be produced")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
