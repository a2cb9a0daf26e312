package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

// ---- test helpers ----

// testWAV encodes pcm as 16 kHz mono WAV.
func testWAV(pcm []byte) []byte {
	return audio.EncodeWAV(audio.Clip{PCM: pcm, SampleRate: 16000, Channels: 1})
}

// mustNew is a test helper that calls New and fails on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// ---- Provider creation ----

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002")
		if p.serverURL != "http://localhost:8002" {
			t.Errorf("serverURL = %q, want %q", p.serverURL, "http://localhost:8002")
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeStandard)
		}
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002/")
		if p.serverURL != "http://localhost:8002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
	})

	t.Run("empty URL returns error", func(t *testing.T) {
		_, err := New("")
		if err == nil {
			t.Fatal("expected error for empty URL, got nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002",
			WithLanguage("de"),
			WithTimeout(5*time.Second),
			WithAPIMode(APIModeXTTS),
			WithDefaultVoice("Ana Florence"),
		)
		if p.language != "de" {
			t.Errorf("language = %q, want %q", p.language, "de")
		}
		if p.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, 5*time.Second)
		}
		if p.apiMode != APIModeXTTS || p.defaultVoice != "Ana Florence" {
			t.Errorf("apiMode/defaultVoice = %q/%q", p.apiMode, p.defaultVoice)
		}
	})
}

// ---- Synthesize ----

func TestSynthesize_EmptyVoiceID_XTTS(t *testing.T) {
	p := mustNew(t, "http://localhost:8002", WithAPIMode(APIModeXTTS))
	_, err := p.Synthesize(context.Background(), "hello", tts.Voice{})
	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *tts.SynthesisError", err)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p := mustNew(t, "http://localhost:8002")
	_, err := p.Synthesize(context.Background(), "  \n ", tts.Voice{})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestSynthesize_XTTS_SentencesInOrder(t *testing.T) {
	var (
		mu           sync.Mutex
		receivedReqs []ttsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		mu.Lock()
		receivedReqs = append(receivedReqs, req)
		mu.Unlock()

		// The first sentence is slow so that completion order differs from
		// sentence order.
		fill := byte(0x22)
		if strings.HasPrefix(req.Text, "Hello") {
			time.Sleep(30 * time.Millisecond)
			fill = 0x11
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(testWAV(bytes.Repeat([]byte{fill}, 100)))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithDefaultVoice("test_speaker"))
	clip, err := p.Synthesize(context.Background(), "Hello world. Goodbye now!", tts.Voice{Language: "en-GB"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(clip.PCM) != 200 {
		t.Fatalf("PCM bytes = %d, want 200", len(clip.PCM))
	}
	if clip.PCM[0] != 0x11 || clip.PCM[199] != 0x22 {
		t.Errorf("sentences concatenated out of order: first=%#x last=%#x", clip.PCM[0], clip.PCM[199])
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("format = %d Hz/%d ch, want 16000/1", clip.SampleRate, clip.Channels)
	}

	if len(receivedReqs) != 2 {
		t.Fatalf("server received %d requests, want 2", len(receivedReqs))
	}
	for _, req := range receivedReqs {
		if req.SpeakerWav != "test_speaker" {
			t.Errorf("speaker_wav = %q, want %q", req.SpeakerWav, "test_speaker")
		}
		if req.Language != "en-GB" {
			t.Errorf("language = %q, want %q", req.Language, "en-GB")
		}
	}
}

func TestSynthesize_Standard(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		gotQuery = map[string]string{
			"text":        r.URL.Query().Get("text"),
			"speaker_id":  r.URL.Query().Get("speaker_id"),
			"language_id": r.URL.Query().Get("language_id"),
		}
		_, _ = w.Write(testWAV([]byte{1, 0, 2, 0}))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	clip, err := p.Synthesize(context.Background(), "the quick brown fox", tts.Voice{ID: "p225"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clip.PCM) != 4 {
		t.Errorf("PCM bytes = %d, want 4", len(clip.PCM))
	}
	want := map[string]string{"text": "the quick brown fox", "speaker_id": "p225", "language_id": "en"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), "A sentence.", tts.Voice{})
	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *tts.SynthesisError", err)
	}
	if se.Provider != "coqui" {
		t.Errorf("Provider = %q, want coqui", se.Provider)
	}
}

func TestSynthesize_InvalidWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ID3 this is an mp3"))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), "hi", tts.Voice{})
	if !errors.Is(err, audio.ErrInvalidWAV) {
		t.Fatalf("err = %v, want wrapping audio.ErrInvalidWAV", err)
	}
}

func TestSynthesize_MismatchedSentenceFormats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rate := 16000
		if strings.Contains(r.URL.Query().Get("text"), "Two") {
			rate = 22050
		}
		_, _ = w.Write(audio.EncodeWAV(audio.Clip{PCM: []byte{0, 0}, SampleRate: rate, Channels: 1}))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), "One. Two.", tts.Voice{})
	if err == nil {
		t.Fatal("expected error for mismatched sentence formats")
	}
}

func TestSynthesize_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write(testWAV([]byte{0, 0}))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Synthesize(ctx, "Too slow.", tts.Voice{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

// ---- Sentence splitting ----

func TestFindSentenceBoundary(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"period at end", "Hello.", 5},
		{"period space", "Hello. World", 5},
		{"exclamation", "Hello!", 5},
		{"question", "Hello?", 5},
		{"no boundary", "Hello", -1},
		{"abbreviation mid", "Dr. Smith", 2},
		{"decimal", "3.14 is pi", -1},
		{"empty", "", -1},
		{"multiple", "First. Second.", 5},
		{"question mid", "How? Great!", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findSentenceBoundary(tt.input)
			if got != tt.want {
				t.Errorf("findSentenceBoundary(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"   ", nil},
		{"the quick brown fox", []string{"the quick brown fox"}},
		{"Hello world. Are you there?", []string{"Hello world.", "Are you there?"}},
		{"Pi is 3.14. Really!  ", []string{"Pi is 3.14.", "Really!"}},
		{". . .", []string{".", ".", "."}},
	}
	for _, tt := range tests {
		got := splitSentences(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitSentences(%q) = %q, want %q", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitSentences(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

// ---- ListVoices ----

func TestListVoices_XTTS(t *testing.T) {
	data, _ := json.Marshal(map[string]any{
		"speaker_bob":   map[string]any{"type": "studio"},
		"speaker_alice": map[string]any{"type": "studio"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "speaker_alice" || voices[1].ID != "speaker_bob" {
		t.Errorf("voices not sorted: %q, %q", voices[0].ID, voices[1].ID)
	}
	for _, v := range voices {
		if v.Provider != "coqui" || v.Metadata["type"] != "studio" {
			t.Errorf("voice %q = %+v", v.ID, v)
		}
	}
}

func TestListVoices_Standard(t *testing.T) {
	tests := []struct {
		name    string
		details detailsResponse
		wantIDs []string
		kind    string
	}{
		{
			name:    "multi speaker",
			details: detailsResponse{ModelName: "vctk/vits", Language: "en", Speakers: []string{"p226", "p225"}},
			wantIDs: []string{"p225", "p226"},
			kind:    "speaker",
		},
		{
			name:    "single speaker",
			details: detailsResponse{ModelName: "ljspeech/vits"},
			wantIDs: []string{"ljspeech/vits"},
			kind:    "single-speaker",
		},
		{
			name:    "unnamed model",
			details: detailsResponse{},
			wantIDs: []string{"default"},
			kind:    "single-speaker",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != detailsEndpoint {
					http.NotFound(w, r)
					return
				}
				_ = json.NewEncoder(w).Encode(tt.details)
			}))
			defer srv.Close()

			voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tt.wantIDs) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tt.wantIDs))
			}
			for i, v := range voices {
				if v.ID != tt.wantIDs[i] {
					t.Errorf("voices[%d].ID = %q, want %q", i, v.ID, tt.wantIDs[i])
				}
				if v.Metadata["type"] != tt.kind {
					t.Errorf("voices[%d] type = %q, want %q", i, v.Metadata["type"], tt.kind)
				}
			}
		})
	}
}

func TestListVoices_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.ListVoices(context.Background())
	if err == nil {
		t.Fatal("expected error on server failure, got nil")
	}
	if !strings.Contains(err.Error(), "coqui:") {
		t.Errorf("error %q missing 'coqui:' prefix", err.Error())
	}
}
