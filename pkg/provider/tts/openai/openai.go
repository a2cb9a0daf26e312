// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Audio is requested as WAV and decoded into an [audio.Clip].
package openai

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

const providerName = "openai"

// DefaultModel is the speech model used when none is configured.
const DefaultModel = oai.SpeechModelTTS1

// DefaultVoice is the voice used when the caller names none.
const DefaultVoice = string(oai.AudioSpeechNewParamsVoiceAlloy)

// voices is the fixed OpenAI voice catalogue.
var voices = []oai.AudioSpeechNewParamsVoice{
	oai.AudioSpeechNewParamsVoiceAlloy,
	oai.AudioSpeechNewParamsVoiceAsh,
	oai.AudioSpeechNewParamsVoiceBallad,
	oai.AudioSpeechNewParamsVoiceCoral,
	oai.AudioSpeechNewParamsVoiceEcho,
	oai.AudioSpeechNewParamsVoiceSage,
	oai.AudioSpeechNewParamsVoiceShimmer,
	oai.AudioSpeechNewParamsVoiceVerse,
}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	defaultVoice string
	instructions string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	voice        string
	instructions string
	timeout      time.Duration
	maxRetries   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithDefaultVoice sets the voice used when the caller names none.
func WithDefaultVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithInstructions sets speaking-style instructions (gpt-4o-mini-tts only),
// e.g. "Speak slowly and enunciate clearly."
func WithInstructions(s string) Option {
	return func(c *config) {
		c.instructions = s
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI TTS Provider.
// If model is empty, DefaultModel (tts-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{voice: DefaultVoice, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		defaultVoice: cfg.voice,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, tts.Fail(providerName, tts.ErrEmptyText)
	}
	id := voice.ID
	if id == "" {
		id = p.defaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	}
	if voice.SpeedFactor != 0 {
		params.Speed = oai.Float(voice.Speed())
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return audio.Clip{}, tts.Failf(providerName, "speech: %w", err)
	}
	defer resp.Body.Close()

	clip, err := audio.ReadWAV(resp.Body)
	if err != nil {
		return audio.Clip{}, tts.Failf(providerName, "decode speech: %w", err)
	}
	return clip, nil
}

// ListVoices returns the built-in OpenAI voices.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.Voice{
			ID:       string(v),
			Name:     string(v),
			Provider: providerName,
			Metadata: map[string]string{"model": p.model},
		})
	}
	return out, nil
}

// IsBuiltinVoice reports whether id names one of the OpenAI catalogue voices.
func IsBuiltinVoice(id string) bool {
	return slices.Contains(voices, oai.AudioSpeechNewParamsVoice(id))
}
