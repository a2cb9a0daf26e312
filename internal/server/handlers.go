package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/MrWong99/phonocoach/internal/coach"
	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/phonetic"
)

// alignRequest is the body of POST /v1/align.
type alignRequest struct {
	Target     string `json:"target"`
	Recognized string `json:"recognized"`
	Marker     string `json:"marker"`
}

// alignResponse is the reply of POST /v1/align.
type alignResponse struct {
	phonetic.Alignment
	Rendered string             `json:"rendered"`
	Segments []phonetic.Segment `json:"segments"`
}

// handleAlign handles POST /v1/align. It exercises the pure core only.
func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	var req alignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	marker, err := phonetic.MarkerByName(req.Marker)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := phonetic.Align(req.Target, req.Recognized)
	if err != nil {
		writeError(w, r, err)
		return
	}
	segs, err := phonetic.Segments(req.Recognized, a.Opcodes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alignResponse{
		Alignment: a,
		Rendered:  phonetic.Join(segs, marker),
		Segments:  segs,
	})
}

// sessionResponse describes a session.
type sessionResponse struct {
	ID       string        `json:"id"`
	Revision uint64        `json:"revision"`
	Target   *coach.Target `json:"target,omitempty"`
}

func describe(sess *coach.Session) sessionResponse {
	resp := sessionResponse{ID: sess.ID(), Revision: sess.Revision()}
	if t, ok := sess.Target(); ok {
		resp.Target = &t
	}
	return resp
}

// handleCreateSession handles POST /v1/sessions.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create(r.Context())
	w.Header().Set("Location", "/v1/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, describe(sess))
}

// handleGetSession handles GET /v1/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess))
}

// handleDeleteSession handles DELETE /v1/sessions/{id}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(r.Context(), r.PathValue("id")) {
		writeError(w, r, coach.ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// targetRequest is the body of PUT /v1/sessions/{id}/target.
type targetRequest struct {
	Text string `json:"text"`
}

// handleSetTarget handles PUT /v1/sessions/{id}/target. Recordings begun
// before a change of text become stale.
func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req targetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if _, err := sess.SetTarget(r.Context(), req.Text); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess))
}

// handleReference handles GET /v1/sessions/{id}/reference.
func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, ok := sess.Target()
	if !ok {
		writeError(w, r, coach.ErrNoTarget)
		return
	}
	if t.Reference.IsEmpty() {
		writeJSON(w, http.StatusNotFound, errorBody{
			Status: http.StatusNotFound,
			Error:  "no reference audio: no synthesizer configured",
		})
		return
	}
	wav := audio.EncodeWAV(t.Reference)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	_, _ = w.Write(wav)
}

// attemptResponse is the reply to a scored attempt.
type attemptResponse struct {
	coach.Result
	Score    int    `json:"score"`
	Rendered string `json:"rendered"`
}

func newAttemptResponse(res coach.Result, m phonetic.Marker) attemptResponse {
	return attemptResponse{Result: res, Score: res.Score(), Rendered: res.Render(m)}
}

// handleAttempt handles POST /v1/sessions/{id}/attempts.
//
// The attempt is either a multipart form with an "audio" WAV file and an
// optional "revision" field, or a raw audio/wav body with an optional
// ?revision= query parameter. The revision is the one returned when the
// target was set; omitting it scores against whatever target is current.
func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	marker, err := phonetic.MarkerByName(r.URL.Query().Get("marker"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	clip, revision, err := s.readAttempt(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := recording(sess, revision)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := sess.Submit(r.Context(), rec, clip)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAttemptResponse(res, marker))
}

// readAttempt extracts the WAV clip and the raw revision value from r.
func (s *Server) readAttempt(r *http.Request) (audio.Clip, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		clip, err := audio.ReadWAV(r.Body)
		return clip, r.URL.Query().Get("revision"), err
	}

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return audio.Clip{}, "", err
		}
		return audio.Clip{}, "", fmt.Errorf("%w: multipart form: %v", audio.ErrInvalidWAV, err)
	}
	f, _, err := r.FormFile("audio")
	if err != nil {
		return audio.Clip{}, "", fmt.Errorf("%w: missing \"audio\" file: %v", audio.ErrInvalidWAV, err)
	}
	defer f.Close()
	clip, err := audio.ReadWAV(f)
	return clip, r.FormValue("revision"), err
}

// recording returns the recording handle for a client-supplied revision, or
// begins one at the current revision when none was supplied.
func recording(sess *coach.Session, revision string) (coach.Recording, error) {
	if revision == "" {
		return sess.BeginRecording()
	}
	n, err := strconv.ParseUint(revision, 10, 64)
	if err != nil {
		return coach.Recording{}, fmt.Errorf("%w: revision %q", phonetic.ErrInvalidInput, revision)
	}
	return sess.RecordingAt(n), nil
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}
