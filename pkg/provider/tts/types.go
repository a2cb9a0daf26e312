package tts

// Voice describes a TTS voice configuration.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`

	// Language is the accent or locale the voice speaks (e.g. "en", "en-GB").
	// Empty uses the provider default.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Learners
	// often want a slower reference; zero means default.
	SpeedFactor float64 `json:"speed_factor,omitempty" yaml:"speed_factor,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Speed returns SpeedFactor clamped to [0.5, 2.0], or 1.0 when unset.
func (v Voice) Speed() float64 {
	switch {
	case v.SpeedFactor == 0:
		return 1.0
	case v.SpeedFactor < 0.5:
		return 0.5
	case v.SpeedFactor > 2.0:
		return 2.0
	default:
		return v.SpeedFactor
	}
}
