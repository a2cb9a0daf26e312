package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

// ---- URL construction ----

func TestWSURL(t *testing.T) {
	p, _ := New("key", WithBaseURL("https://api.elevenlabs.io/"))
	raw := p.wsURL(tts.Voice{ID: "voice 1", Language: "de-DE"})

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "wss" || u.Host != "api.elevenlabs.io" {
		t.Errorf("scheme/host = %s/%s, want wss/api.elevenlabs.io", u.Scheme, u.Host)
	}
	if u.Path != "/v1/text-to-speech/voice 1/stream-input" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("model_id") != defaultModel || q.Get("output_format") != defaultOutputFmt || q.Get("language_code") != "de" {
		t.Errorf("query = %v", q)
	}
}

func TestSampleRateOf(t *testing.T) {
	tests := []struct {
		format  string
		want    int
		wantErr bool
	}{
		{"pcm_16000", 16000, false},
		{"pcm_44100", 44100, false},
		{"mp3_44100_128", 0, true},
		{"pcm_", 0, true},
		{"pcm_-1", 0, true},
	}
	for _, tt := range tests {
		got, err := sampleRateOf(tt.format)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("sampleRateOf(%q) = %d, %v; want %d, err=%v", tt.format, got, err, tt.want, tt.wantErr)
		}
	}
}

// ---- Synthesize ----

// recorder collects client messages across goroutines.
type recorder struct {
	mu   sync.Mutex
	msgs []map[string]any
}

func (r *recorder) add(m map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) all() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs
}

// fakeStreamInput serves the stream-input socket, records the client
// messages and answers with replies.
func fakeStreamInput(t *testing.T, got *recorder, replies ...audioResponse) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/text-to-speech/{voice}/stream-input", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		for range 3 {
			_, msg, err := c.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			got.add(m)
		}
		for _, reply := range replies {
			b, _ := json.Marshal(reply)
			if err := c.Write(ctx, websocket.MessageText, b); err != nil {
				return
			}
		}
		// Wait for the client to close.
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSynthesize_CollectsPCM(t *testing.T) {
	var rec recorder
	srv := fakeStreamInput(t, &rec,
		audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})},
		audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte{5, 6})},
		audioResponse{IsFinal: true},
	)

	p, _ := New("secret", WithBaseURL(srv.URL), WithDefaultVoice("rachel"), WithOutputFormat("pcm_22050"))
	clip, err := p.Synthesize(context.Background(), " the quick brown fox ", tts.Voice{SpeedFactor: 0.7})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if string(clip.PCM) != string([]byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("PCM = %v", clip.PCM)
	}
	if clip.SampleRate != 22050 || clip.Channels != 1 {
		t.Errorf("format = %d Hz/%d ch, want 22050/1", clip.SampleRate, clip.Channels)
	}

	got := rec.all()
	if len(got) != 3 {
		t.Fatalf("server received %d messages, want 3", len(got))
	}
	if got[0]["xi_api_key"] != "secret" || got[0]["text"] != " " {
		t.Errorf("BOI = %v", got[0])
	}
	vs, _ := got[0]["voice_settings"].(map[string]any)
	if vs["speed"] != 0.7 {
		t.Errorf("voice_settings.speed = %v, want 0.7", vs["speed"])
	}
	if got[1]["text"] != "the quick brown fox " {
		t.Errorf("text message = %v", got[1])
	}
	if got[2]["text"] != "" {
		t.Errorf("flush message = %v", got[2])
	}
}

func TestSynthesize_ServerErrorMessage(t *testing.T) {
	var rec recorder
	srv := fakeStreamInput(t, &rec, audioResponse{Error: "quota_exceeded", Message: "out of credits"})

	p, _ := New("secret", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hello", tts.Voice{ID: "v"})
	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *tts.SynthesisError", err)
	}
	if !strings.Contains(err.Error(), "quota_exceeded") {
		t.Errorf("err = %v, want server error code", err)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	var rec recorder
	srv := fakeStreamInput(t, &rec, audioResponse{IsFinal: true})

	p, _ := New("secret", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hello", tts.Voice{ID: "v"})
	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *tts.SynthesisError", err)
	}
}

func TestSynthesize_InputValidation(t *testing.T) {
	p, _ := New("secret", WithBaseURL("http://127.0.0.1:1"))

	if _, err := p.Synthesize(context.Background(), "  ", tts.Voice{ID: "v"}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("empty text: err = %v, want ErrEmptyText", err)
	}
	var se *tts.SynthesisError
	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice{}); !errors.As(err, &se) {
		t.Errorf("missing voice: err = %v, want *tts.SynthesisError", err)
	}
}

// ---- Voice list ----

func TestListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" || r.Header.Get("xi-api-key") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"abc","name":"Rachel","labels":{"language":"en"}}]}`))
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURL(srv.URL))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "abc" || voices[0].Language != "en" {
		t.Errorf("voices = %+v", voices)
	}

	bad, _ := New("wrong", WithBaseURL(srv.URL))
	if _, err := bad.ListVoices(context.Background()); err == nil {
		t.Error("expected error for rejected API key")
	}
}

func TestParseVoicesResponse_Success(t *testing.T) {
	raw := []byte(`{
		"voices": [
			{
				"voice_id": "abc123",
				"name": "Rachel",
				"category": "premade",
				"labels": {"gender": "female", "accent": "american"}
			},
			{
				"voice_id": "def456",
				"name": "Adam",
				"category": "premade",
				"labels": {"gender": "male"}
			}
		]
	}`)

	voices, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(voices))
	}

	rachel := voices[0]
	if rachel.ID != "abc123" || rachel.Name != "Rachel" || rachel.Provider != "elevenlabs" {
		t.Errorf("rachel = %+v", rachel)
	}
	if rachel.Metadata["gender"] != "female" {
		t.Errorf("expected gender 'female', got %q", rachel.Metadata["gender"])
	}
	if rachel.Metadata["category"] != "premade" {
		t.Errorf("expected category 'premade', got %q", rachel.Metadata["category"])
	}
	if voices[1].ID != "def456" {
		t.Errorf("expected ID 'def456', got %q", voices[1].ID)
	}
}

func TestParseVoicesResponse_NoLabels(t *testing.T) {
	raw := []byte(`{"voices": [{"voice_id": "x1", "name": "Ghost", "category": "", "labels": null}]}`)
	voices, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("expected 1 voice, got %d", len(voices))
	}
	if _, ok := voices[0].Metadata["category"]; ok {
		t.Error("expected no 'category' key in metadata when category is empty")
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	if _, err := parseVoicesResponse([]byte(`{invalid`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_NonPCMFormat(t *testing.T) {
	if _, err := New("key", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
	if p.baseURL != defaultBaseURL {
		t.Errorf("expected baseURL %q, got %q", defaultBaseURL, p.baseURL)
	}
}
