package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. The first group of
// fields can be applied to a running service; RestartRequired lists changed
// sections that only take effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	GradingChanged bool
	NewGrading     GradingConfig

	VoiceChanged bool
	NewVoice     VoiceConfig

	LanguageChanged bool
	NewLanguage     string

	TipsChanged bool
	NewTips     bool

	// RestartRequired names the changed sections that are not hot-reloadable,
	// e.g. "server.listen_addr" or "providers.stt".
	RestartRequired []string
}

// HasChanges reports whether anything hot-reloadable changed.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.GradingChanged || d.VoiceChanged || d.LanguageChanged || d.TipsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Grading != new.Grading {
		d.GradingChanged = true
		d.NewGrading = new.Grading
	}
	if old.Practice.Voice != new.Practice.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Practice.Voice
	}
	if old.Practice.Language != new.Practice.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Practice.Language
	}
	if old.Practice.Tips != new.Practice.Tips {
		d.TipsChanged = true
		d.NewTips = new.Practice.Tips
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.ReadTimeout != new.Server.ReadTimeout {
		d.RestartRequired = append(d.RestartRequired, "server.read_timeout")
	}
	if old.Server.SessionIdleTimeout != new.Server.SessionIdleTimeout {
		d.RestartRequired = append(d.RestartRequired, "server.session_idle_timeout")
	}
	if old.Server.MaxUploadBytes != new.Server.MaxUploadBytes {
		d.RestartRequired = append(d.RestartRequired, "server.max_upload_bytes")
	}
	if !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.allowed_origins")
	}
	for _, p := range []struct {
		name     string
		old, new ProviderEntry
	}{
		{"providers.stt", old.Providers.STT, new.Providers.STT},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"providers.g2p", old.Providers.G2P, new.Providers.G2P},
		{"providers.llm", old.Providers.LLM, new.Providers.LLM},
	} {
		if !reflect.DeepEqual(p.old, p.new) {
			d.RestartRequired = append(d.RestartRequired, p.name)
		}
	}
	if old.Practice.TrimSilence != new.Practice.TrimSilence {
		d.RestartRequired = append(d.RestartRequired, "practice.trim_silence")
	}
	if old.Observe != new.Observe {
		d.RestartRequired = append(d.RestartRequired, "observe")
	}
	return d
}
