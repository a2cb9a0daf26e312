package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != DefaultModel || p.defaultVoice != DefaultVoice {
		t.Errorf("model/voice = %q/%q, want %q/%q", p.model, p.defaultVoice, DefaultModel, DefaultVoice)
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio.EncodeWAV(audio.Clip{PCM: []byte{1, 0, 2, 0}, SampleRate: 24000, Channels: 1}))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "gpt-4o-mini-tts",
		WithBaseURL(srv.URL+"/v1"),
		WithMaxRetries(0),
		WithDefaultVoice("coral"),
		WithInstructions("Speak slowly."),
	)
	clip, err := p.Synthesize(context.Background(), "  the quick brown fox ", tts.Voice{SpeedFactor: 0.1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 24000 || len(clip.PCM) != 4 {
		t.Errorf("clip = %d Hz, %d bytes; want 24000 Hz, 4 bytes", clip.SampleRate, len(clip.PCM))
	}

	want := map[string]any{
		"input":           "the quick brown fox",
		"model":           "gpt-4o-mini-tts",
		"voice":           "coral",
		"response_format": "wav",
		"speed":           0.5,
		"instructions":    "Speak slowly.",
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, body[k], v)
		}
	}
}

func TestSynthesize_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/v1"), WithMaxRetries(0))
	_, err := p.Synthesize(context.Background(), "hello", tts.Voice{})
	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *tts.SynthesisError", err)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	p, _ := New("sk-test", "")
	if _, err := p.Synthesize(context.Background(), " ", tts.Voice{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestListVoices(t *testing.T) {
	p, _ := New("sk-test", "")
	vs, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(vs) != 8 {
		t.Fatalf("got %d voices, want 8", len(vs))
	}
	for _, v := range vs {
		if !IsBuiltinVoice(v.ID) {
			t.Errorf("voice %q not reported as builtin", v.ID)
		}
	}
	if IsBuiltinVoice("rachel") {
		t.Error("rachel reported as builtin OpenAI voice")
	}
}
