// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. It implements the stt.Provider interface.
//
// A clip is streamed over a fresh connection in 100 ms frames, followed by a
// CloseStream message. Deepgram flushes its remaining results and closes the
// socket; every final result received up to that point forms the transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
)

const (
	providerName = "deepgram"

	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// frameBytes is 100 ms of 16 kHz mono 16-bit PCM.
	frameBytes = audio.RecognizerSampleRate / 10 * 2
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the live transcription URL. Useful for proxies and
// tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams clip to Deepgram and returns the joined final results.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error) {
	if clip.IsEmpty() {
		return stt.Transcript{}, stt.Fail(providerName, stt.ErrNoSpeech)
	}
	mono := audio.ForRecognizer(clip)

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	wsURL, err := p.buildURL(lang, mono.SampleRate)
	if err != nil {
		return stt.Transcript{}, stt.Failf(providerName, "build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, stt.Failf(providerName, "dial: %w", err)
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(ctx)
	writeErr := make(chan error, 1)
	go func() { writeErr <- stream(ctx, conn, mono.PCM) }()

	t, readErr := collect(ctx, conn)
	cancel()
	werr := <-writeErr

	switch {
	case readErr != nil:
		return stt.Transcript{}, stt.Fail(providerName, readErr)
	case werr != nil:
		return stt.Transcript{}, stt.Failf(providerName, "send audio: %w", werr)
	}

	t.Language = lang
	t.Duration = mono.Duration()
	if t.IsBlank() {
		return stt.Transcript{}, stt.Fail(providerName, stt.ErrNoSpeech)
	}
	return t, nil
}

// buildURL constructs the Deepgram live endpoint URL.
func (p *Provider) buildURL(lang string, sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// stream writes pcm as binary frames and then asks Deepgram to flush.
func stream(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += frameBytes {
		end := min(off+frameBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return err
		}
	}
	return conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

// collect reads results until Deepgram closes the connection.
func collect(ctx context.Context, conn *websocket.Conn) (stt.Transcript, error) {
	var (
		texts   []string
		words   []stt.WordDetail
		confSum float64
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				return stt.Transcript{}, fmt.Errorf("read: %w", err)
			}
			break
		}

		r, ok := parseDeepgramResponse(msg)
		if !ok || !r.final || strings.TrimSpace(r.Text) == "" {
			continue
		}
		texts = append(texts, strings.TrimSpace(r.Text))
		words = append(words, r.Words...)
		confSum += r.Confidence
	}

	t := stt.Transcript{Text: strings.Join(texts, " "), Words: words}
	if len(texts) > 0 {
		t.Confidence = confSum / float64(len(texts))
	}
	return t, nil
}

// ---- wire format ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed Results message.
type result struct {
	stt.Transcript
	final bool
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return result{
		Transcript: stt.Transcript{
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			Words:      words,
		},
		final: resp.IsFinal,
	}, true
}
