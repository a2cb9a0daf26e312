// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for phonocoach.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the [slog.Level] for l. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Grading   GradingConfig   `yaml:"grading"`
	Practice  PracticeConfig  `yaml:"practice"`
	Observe   ObserveConfig   `yaml:"observe"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP service listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// ReadTimeout bounds reading a request, including an uploaded attempt.
	// Default 30s.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// SessionIdleTimeout is how long an unused practice session is kept.
	// Default 30m.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	// MaxUploadBytes caps an uploaded attempt. Default 10 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// AllowedOrigins are host patterns (path.Match syntax) of cross-origin
	// pages allowed to open the practice websocket, e.g. "*.example.com".
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProvidersConfig selects the collaborator behind each stage. Each entry names
// a provider registered in the [Registry].
type ProvidersConfig struct {
	// STT recognizes recorded attempts. Required.
	STT ProviderEntry `yaml:"stt"`

	// TTS synthesizes the reference pronunciation. Optional.
	TTS ProviderEntry `yaml:"tts"`

	// G2P converts text to phonemic form. Default "goruut".
	G2P ProviderEntry `yaml:"g2p"`

	// LLM generates coaching tips. Optional.
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
// Name selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "whisper", "cmudict").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g. "whisper-1", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open. Fallbacks of fallbacks are ignored.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// IsSet reports whether a provider was configured.
func (e ProviderEntry) IsSet() bool { return e.Name != "" }

// GradingConfig holds the score thresholds. A score strictly above Excellent
// is excellent, strictly above Good is good, otherwise it needs practice.
type GradingConfig struct {
	Excellent int `yaml:"excellent"`
	Good      int `yaml:"good"`
}

// PracticeConfig holds learner-facing defaults.
type PracticeConfig struct {
	// Language is the practice language passed to recognizer and synthesizer.
	// Default "en".
	Language string `yaml:"language"`

	// Voice selects the reference voice.
	Voice VoiceConfig `yaml:"voice"`

	// Tips enables LLM coaching tips. Requires providers.llm.
	Tips bool `yaml:"tips"`

	// TrimSilence cuts leading and trailing silence from attempts with an
	// energy-based voice activity detector before recognition.
	TrimSilence bool `yaml:"trim_silence"`
}

// VoiceConfig selects the reference voice.
type VoiceConfig struct {
	// ID is the provider-specific voice identifier. Empty uses the provider default.
	ID string `yaml:"id"`

	// Speed adjusts speaking rate in [0.5, 2.0]. Zero means default.
	Speed float64 `yaml:"speed"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	// ServiceName is reported as the OpenTelemetry service name. Default "phonocoach".
	ServiceName string `yaml:"service_name"`

	// Metrics enables the Prometheus /metrics endpoint. Default true.
	Metrics bool `yaml:"metrics"`
}

// Defaults returns a config with every default applied. [LoadFromReader]
// decodes on top of it, so omitted keys keep these values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:         ":8080",
			LogLevel:           LogInfo,
			ReadTimeout:        30 * time.Second,
			SessionIdleTimeout: 30 * time.Minute,
			MaxUploadBytes:     10 << 20,
		},
		Providers: ProvidersConfig{
			G2P: ProviderEntry{Name: "goruut"},
		},
		Grading:  GradingConfig{Excellent: 85, Good: 60},
		Practice: PracticeConfig{Language: "en"},
		Observe:  ObserveConfig{ServiceName: "phonocoach", Metrics: true},
	}
}
