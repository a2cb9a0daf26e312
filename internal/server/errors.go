package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/phonocoach/internal/coach"
	"github.com/MrWong99/phonocoach/internal/observe"
	"github.com/MrWong99/phonocoach/internal/resilience"
	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/phonetic"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

// msgNotUnderstood is shown to the learner whenever recognition fails.
const msgNotUnderstood = "could not understand audio, please try again"

// errorBody is the JSON body of every error response.
type errorBody struct {
	Status int    `json:"status"`
	Error  string `json:"error"`

	// Words lists the words the converter could not handle, for 422
	// responses caused by unsupported text.
	Words []string `json:"words,omitempty"`
}

// classify maps err to an HTTP status and the error body sent to the client.
// Collaborator errors are matched by type, so they are found through
// fallback wrappers and any %w chain.
func classify(err error) errorBody {
	var (
		unsupported *g2p.UnsupportedTextError
		recognition *stt.RecognitionError
		synthesis   *tts.SynthesisError
		conversion  *g2p.ConversionError
		maxBytes    *http.MaxBytesError
	)
	switch {
	case errors.Is(err, phonetic.ErrInvalidInput),
		errors.Is(err, audio.ErrInvalidWAV),
		errors.Is(err, tts.ErrEmptyText):
		return errorBody{Status: http.StatusBadRequest, Error: err.Error()}
	case errors.As(err, &maxBytes):
		return errorBody{Status: http.StatusRequestEntityTooLarge, Error: err.Error()}
	case errors.As(err, &unsupported):
		return errorBody{Status: http.StatusUnprocessableEntity, Error: err.Error(), Words: unsupported.Words}
	case errors.As(err, &recognition):
		return errorBody{Status: http.StatusUnprocessableEntity, Error: msgNotUnderstood}
	case errors.As(err, &synthesis), errors.As(err, &conversion):
		return errorBody{Status: http.StatusBadGateway, Error: err.Error()}
	case errors.Is(err, coach.ErrSessionNotFound):
		return errorBody{Status: http.StatusNotFound, Error: err.Error()}
	case errors.Is(err, coach.ErrStaleRecording), errors.Is(err, coach.ErrNoTarget):
		return errorBody{Status: http.StatusConflict, Error: err.Error()}
	case errors.Is(err, resilience.ErrAllFailed), errors.Is(err, resilience.ErrCircuitOpen):
		return errorBody{Status: http.StatusServiceUnavailable, Error: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return errorBody{Status: http.StatusGatewayTimeout, Error: err.Error()}
	}
	return errorBody{Status: http.StatusInternalServerError, Error: "internal error"}
}

// writeError logs err and writes the classified error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := classify(err)
	log := observe.Logger(r.Context())
	if body.Status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", body.Status, "err", err)
	} else {
		log.Info("request rejected", "path", r.URL.Path, "status", body.Status, "err", err)
	}
	writeJSON(w, body.Status, body)
}

// badRequest writes a 400 with msg.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Status: http.StatusBadRequest, Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
