package server_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/phonocoach/internal/coach"
	"github.com/MrWong99/phonocoach/internal/health"
	"github.com/MrWong99/phonocoach/internal/observe"
	"github.com/MrWong99/phonocoach/internal/server"
	"github.com/MrWong99/phonocoach/pkg/audio"
	g2pmock "github.com/MrWong99/phonocoach/pkg/provider/g2p/mock"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
	sttmock "github.com/MrWong99/phonocoach/pkg/provider/stt/mock"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
	ttsmock "github.com/MrWong99/phonocoach/pkg/provider/tts/mock"
)

const notUnderstood = "could not understand audio, please try again"

type sessionJSON struct {
	ID       string `json:"id"`
	Revision uint64 `json:"revision"`
	Target   *struct {
		Text       string `json:"text"`
		Normalized string `json:"normalized"`
		Phonemic   string `json:"phonemic"`
	} `json:"target"`
}

type attemptJSON struct {
	Target         string `json:"target"`
	Heard          string `json:"heard"`
	TargetPhonemic string `json:"target_phonemic"`
	HeardPhonemic  string `json:"heard_phonemic"`
	Grade          string `json:"grade"`
	Message        string `json:"message"`
	Score          int    `json:"score"`
	Rendered       string `json:"rendered"`
}

type errorJSON struct {
	Status int      `json:"status"`
	Error  string   `json:"error"`
	Words  []string `json:"words"`
}

// env is a running server over mock collaborators. The converter is the
// identity, so phonemic strings equal normalized text.
type env struct {
	g2p      *g2pmock.Provider
	stt      *sttmock.Provider
	tts      *ttsmock.Provider
	sessions *coach.Sessions
	url      string
}

type envOptions struct {
	noSynthesizer bool

	// setup adjusts the mocks before the server starts.
	setup  func(*env)
	server []server.Option
}

func newEnv(t *testing.T, heard string, opts ...server.Option) *env {
	t.Helper()
	return newEnvWith(t, heard, envOptions{server: opts})
}

func newEnvWith(t *testing.T, heard string, o envOptions) *env {
	t.Helper()
	e := &env{
		g2p: &g2pmock.Provider{},
		stt: &sttmock.Provider{},
		tts: &ttsmock.Provider{},
	}
	if heard != "" {
		e.stt.Transcripts = []stt.Transcript{{Text: heard}}
	}
	if o.setup != nil {
		o.setup(e)
	}

	m := testMetrics(t)
	var synth tts.Provider = e.tts
	if o.noSynthesizer {
		synth = nil
	}
	c, err := coach.New(e.g2p, e.stt, synth, coach.WithMetrics(m))
	if err != nil {
		t.Fatalf("coach.New: %v", err)
	}
	e.sessions = coach.NewSessions(c, coach.WithSessionMetrics(m))

	srv := server.New(c, e.sessions, append([]server.Option{server.WithMetrics(m)}, o.server...)...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	e.url = ts.URL
	return e
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// tone returns the WAV encoding of half a second of a 440 Hz sine.
func tone() []byte {
	const rate = 16000
	pcm := make([]byte, rate)
	for i := range rate / 2 {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/rate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.EncodeWAV(audio.Clip{PCM: pcm, SampleRate: rate, Channels: 1})
}

func (e *env) do(t *testing.T, method, path, contentType string, body io.Reader) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.url+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (e *env) doJSON(t *testing.T, method, path string, v any) (int, []byte) {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	return e.do(t, method, path, "application/json", body)
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func (e *env) createSession(t *testing.T) string {
	t.Helper()
	status, data := e.doJSON(t, http.MethodPost, "/v1/sessions", nil)
	if status != http.StatusCreated {
		t.Fatalf("create session: status %d: %s", status, data)
	}
	return decode[sessionJSON](t, data).ID
}

func (e *env) setTarget(t *testing.T, id, text string) sessionJSON {
	t.Helper()
	status, data := e.doJSON(t, http.MethodPut, "/v1/sessions/"+id+"/target", map[string]string{"text": text})
	if status != http.StatusOK {
		t.Fatalf("set target %q: status %d: %s", text, status, data)
	}
	return decode[sessionJSON](t, data)
}

// postAttempt submits wav as a multipart form.
func (e *env) postAttempt(t *testing.T, id string, wav []byte, revision string) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "attempt.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write(wav)
	if revision != "" {
		_ = mw.WriteField("revision", revision)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close: %v", err)
	}
	return e.do(t, http.MethodPost, "/v1/sessions/"+id+"/attempts", mw.FormDataContentType(), &buf)
}

func TestAlign(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")

	status, data := e.doJSON(t, http.MethodPost, "/v1/align", map[string]string{
		"target":     "hɛloʊ wɜrld",
		"recognized": "hɛloʊ wɜrl",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, data)
	}
	resp := decode[struct {
		Score    int    `json:"score"`
		Rendered string `json:"rendered"`
		Opcodes  []struct {
			Tag string `json:"tag"`
		} `json:"opcodes"`
		Segments []struct {
			Text     string `json:"text"`
			Mismatch bool   `json:"mismatch"`
		} `json:"segments"`
	}](t, data)

	if resp.Score != 95 {
		t.Errorf("score = %d, want 95", resp.Score)
	}
	if resp.Rendered != "hɛloʊ wɜrl[_]" {
		t.Errorf("rendered = %q", resp.Rendered)
	}
	var tags []string
	for _, op := range resp.Opcodes {
		tags = append(tags, op.Tag)
	}
	if !slices.Equal(tags, []string{"equal", "delete"}) {
		t.Errorf("opcode tags = %v, want [equal delete]", tags)
	}
	if n := len(resp.Segments); n == 0 || !resp.Segments[n-1].Mismatch {
		t.Errorf("segments = %+v, want a trailing mismatch", resp.Segments)
	}
}

func TestAlign_Marker(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")

	status, data := e.doJSON(t, http.MethodPost, "/v1/align", map[string]string{
		"target": "abc", "recognized": "abd", "marker": "markdown",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, data)
	}
	if got := decode[struct {
		Rendered string `json:"rendered"`
	}](t, data).Rendered; got != "ab**d**" {
		t.Errorf("rendered = %q, want %q", got, "ab**d**")
	}
}

func TestAlign_BadRequests(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"target":`},
		{"unknown field", `{"target":"a","recognised":"a"}`},
		{"unknown marker", `{"target":"a","recognized":"a","marker":"sparkles"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, data := e.do(t, http.MethodPost, "/v1/align", "application/json", strings.NewReader(tt.body))
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", status, data)
			}
			if body := decode[errorJSON](t, data); body.Status != http.StatusBadRequest || body.Error == "" {
				t.Errorf("error body = %+v", body)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "hello worl")

	status, data := e.doJSON(t, http.MethodPost, "/v1/sessions", nil)
	if status != http.StatusCreated {
		t.Fatalf("create: status %d: %s", status, data)
	}
	sess := decode[sessionJSON](t, data)
	if sess.ID == "" || sess.Revision != 0 || sess.Target != nil {
		t.Fatalf("new session = %+v", sess)
	}
	if e.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", e.sessions.Len())
	}

	got := e.setTarget(t, sess.ID, "  Hello, world!  ")
	if got.Revision != 1 {
		t.Errorf("revision = %d, want 1", got.Revision)
	}
	if got.Target == nil || got.Target.Text != "Hello, world!" || got.Target.Phonemic != "hello world" {
		t.Errorf("target = %+v", got.Target)
	}

	status, data = e.doJSON(t, http.MethodGet, "/v1/sessions/"+sess.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("get: status %d: %s", status, data)
	}
	if got := decode[sessionJSON](t, data); got.Revision != 1 || got.Target == nil {
		t.Errorf("get = %+v", got)
	}

	status, data = e.postAttempt(t, sess.ID, tone(), "1")
	if status != http.StatusOK {
		t.Fatalf("attempt: status %d: %s", status, data)
	}
	res := decode[attemptJSON](t, data)
	if res.Score != 95 || res.Grade != "excellent" {
		t.Errorf("score %d grade %q, want 95 excellent", res.Score, res.Grade)
	}
	if res.Rendered != "hello worl[_]" {
		t.Errorf("rendered = %q", res.Rendered)
	}
	if res.Heard != "hello worl" || res.TargetPhonemic != "hello world" {
		t.Errorf("result = %+v", res)
	}

	if status, _ := e.doJSON(t, http.MethodDelete, "/v1/sessions/"+sess.ID, nil); status != http.StatusNoContent {
		t.Errorf("delete: status %d, want 204", status)
	}
	if status, _ := e.doJSON(t, http.MethodGet, "/v1/sessions/"+sess.ID, nil); status != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", status)
	}
	if status, _ := e.doJSON(t, http.MethodDelete, "/v1/sessions/"+sess.ID, nil); status != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", status)
	}
}

func TestCreateSession_Location(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")

	resp, err := http.Post(e.url+"/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var sess sessionJSON
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, want := resp.Header.Get("Location"), "/v1/sessions/"+sess.ID; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestUnknownSession(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "hello")

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/sessions/nope"},
		{http.MethodGet, "/v1/sessions/nope/reference"},
		{http.MethodPost, "/v1/sessions/nope/attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			status, data := e.do(t, tt.method, tt.path, "", nil)
			if status != http.StatusNotFound {
				t.Errorf("status = %d, want 404: %s", status, data)
			}
		})
	}

	t.Run("PUT target", func(t *testing.T) {
		t.Parallel()
		status, _ := e.doJSON(t, http.MethodPut, "/v1/sessions/nope/target", map[string]string{"text": "hi"})
		if status != http.StatusNotFound {
			t.Errorf("status = %d, want 404", status)
		}
	})
}

func TestSetTarget_Errors(t *testing.T) {
	t.Parallel()

	t.Run("blank text", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "")
		id := e.createSession(t)
		status, data := e.doJSON(t, http.MethodPut, "/v1/sessions/"+id+"/target", map[string]string{"text": " ?! "})
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400: %s", status, data)
		}
	})

	t.Run("unsupported words", func(t *testing.T) {
		t.Parallel()
		e := newEnvWith(t, "", envOptions{setup: func(e *env) {
			e.g2p.Words = map[string]string{"hello": "həloʊ"}
		}})
		id := e.createSession(t)

		status, data := e.doJSON(t, http.MethodPut, "/v1/sessions/"+id+"/target", map[string]string{"text": "hello zyzzyva"})
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422: %s", status, data)
		}
		if body := decode[errorJSON](t, data); !slices.Equal(body.Words, []string{"zyzzyva"}) {
			t.Errorf("words = %v, want [zyzzyva]", body.Words)
		}
	})

	t.Run("synthesizer failure", func(t *testing.T) {
		t.Parallel()
		e := newEnvWith(t, "", envOptions{setup: func(e *env) {
			e.tts.SynthesizeErr = errors.New("backend unavailable")
		}})
		id := e.createSession(t)

		status, data := e.doJSON(t, http.MethodPut, "/v1/sessions/"+id+"/target", map[string]string{"text": "hello"})
		if status != http.StatusBadGateway {
			t.Errorf("status = %d, want 502: %s", status, data)
		}
	})
}

func TestReference(t *testing.T) {
	t.Parallel()

	t.Run("wav", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "")
		id := e.createSession(t)
		e.setTarget(t, id, "hello")

		resp, err := http.Get(e.url + "/v1/sessions/" + id + "/reference")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Content-Type = %q", ct)
		}
		clip, err := audio.ReadWAV(resp.Body)
		if err != nil {
			t.Fatalf("ReadWAV: %v", err)
		}
		if clip.SampleRate != 16000 || len(clip.PCM) != 3200 {
			t.Errorf("clip = %d Hz, %d bytes", clip.SampleRate, len(clip.PCM))
		}
	})

	t.Run("no target", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "")
		id := e.createSession(t)
		if status, data := e.do(t, http.MethodGet, "/v1/sessions/"+id+"/reference", "", nil); status != http.StatusConflict {
			t.Errorf("status = %d, want 409: %s", status, data)
		}
	})

	t.Run("no synthesizer", func(t *testing.T) {
		t.Parallel()
		e := newEnvWith(t, "", envOptions{noSynthesizer: true})
		id := e.createSession(t)
		e.setTarget(t, id, "hello")
		if status, data := e.do(t, http.MethodGet, "/v1/sessions/"+id+"/reference", "", nil); status != http.StatusNotFound {
			t.Errorf("status = %d, want 404: %s", status, data)
		}
	})
}

func TestAttempt_RawBody(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "hello world")
	id := e.createSession(t)
	e.setTarget(t, id, "Hello world")

	status, data := e.do(t, http.MethodPost, "/v1/sessions/"+id+"/attempts?revision=1&marker=html", "audio/wav", bytes.NewReader(tone()))
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, data)
	}
	res := decode[attemptJSON](t, data)
	if res.Score != 100 || res.Message != "Excellent pronunciation!" {
		t.Errorf("score %d message %q", res.Score, res.Message)
	}
	if res.Rendered != "hello world" {
		t.Errorf("rendered = %q", res.Rendered)
	}
}

func TestAttempt_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no target", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "hello")
		id := e.createSession(t)
		if status, data := e.postAttempt(t, id, tone(), ""); status != http.StatusConflict {
			t.Errorf("status = %d, want 409: %s", status, data)
		}
	})

	t.Run("stale revision", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "hello world")
		id := e.createSession(t)
		e.setTarget(t, id, "hello world")
		e.setTarget(t, id, "good morning")

		status, data := e.postAttempt(t, id, tone(), "1")
		if status != http.StatusConflict {
			t.Fatalf("status = %d, want 409: %s", status, data)
		}
		if e.stt.CallCount() != 0 {
			t.Errorf("recognizer called %d times for a stale recording", e.stt.CallCount())
		}
	})

	t.Run("bad revision", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "hello")
		id := e.createSession(t)
		e.setTarget(t, id, "hello")
		if status, data := e.postAttempt(t, id, tone(), "latest"); status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400: %s", status, data)
		}
	})

	t.Run("not a wav", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "hello")
		id := e.createSession(t)
		e.setTarget(t, id, "hello")
		if status, data := e.postAttempt(t, id, []byte("definitely not audio"), ""); status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400: %s", status, data)
		}
	})

	t.Run("missing audio field", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "hello")
		id := e.createSession(t)
		e.setTarget(t, id, "hello")

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("revision", "1")
		_ = mw.Close()
		if status, data := e.do(t, http.MethodPost, "/v1/sessions/"+id+"/attempts", mw.FormDataContentType(), &buf); status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400: %s", status, data)
		}
	})

	t.Run("bad marker", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "hello")
		id := e.createSession(t)
		e.setTarget(t, id, "hello")
		if status, _ := e.do(t, http.MethodPost, "/v1/sessions/"+id+"/attempts?marker=neon", "audio/wav", bytes.NewReader(tone())); status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("not understood", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "")
		id := e.createSession(t)
		e.setTarget(t, id, "hello")

		status, data := e.postAttempt(t, id, tone(), "")
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422: %s", status, data)
		}
		if body := decode[errorJSON](t, data); body.Error != notUnderstood {
			t.Errorf("error = %q, want %q", body.Error, notUnderstood)
		}
	})

	t.Run("silence", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "hello")
		id := e.createSession(t)
		e.setTarget(t, id, "hello")

		silent := audio.EncodeWAV(audio.Clip{PCM: make([]byte, 16000), SampleRate: 16000, Channels: 1})
		status, data := e.postAttempt(t, id, silent, "")
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422: %s", status, data)
		}
		if body := decode[errorJSON](t, data); body.Error != notUnderstood {
			t.Errorf("error = %q, want %q", body.Error, notUnderstood)
		}
		if e.stt.CallCount() != 0 {
			t.Errorf("recognizer called for a silent clip")
		}
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, "hello", server.WithMaxUploadBytes(1024))
		id := e.createSession(t)
		e.setTarget(t, id, "hello")

		status, data := e.do(t, http.MethodPost, "/v1/sessions/"+id+"/attempts", "audio/wav", bytes.NewReader(tone()))
		if status != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413: %s", status, data)
		}
	})
}

func TestMountedHandlers(t *testing.T) {
	t.Parallel()

	stub := func(body string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})
	}
	e := newEnv(t, "",
		server.WithHealth(health.New()),
		server.WithMetricsHandler(stub("metrics")),
		server.WithMCP(stub("mcp")),
	)

	tests := []struct {
		method, path string
		status       int
		body         string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, ""},
		{http.MethodGet, "/readyz", http.StatusOK, ""},
		{http.MethodGet, "/metrics", http.StatusOK, "metrics"},
		{http.MethodPost, "/mcp", http.StatusOK, "mcp"},
		{http.MethodGet, "/v1/align", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/nowhere", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			status, data := e.do(t, tt.method, tt.path, "", nil)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if tt.body != "" && string(data) != tt.body {
				t.Errorf("body = %q, want %q", data, tt.body)
			}
		})
	}
}

func TestOptionalHandlersNotMounted(t *testing.T) {
	t.Parallel()
	e := newEnv(t, "")

	for _, path := range []string{"/healthz", "/metrics", "/mcp"} {
		if status, _ := e.do(t, http.MethodGet, path, "", nil); status != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", path, status)
		}
	}
}
