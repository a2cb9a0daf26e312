package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/phonocoach/internal/coach"
	"github.com/MrWong99/phonocoach/internal/observe"
	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/phonetic"
)

// Practice message types.
const (
	msgSession   = "session"
	msgTarget    = "target"
	msgBegin     = "begin"
	msgRecording = "recording"
	msgReference = "reference"
	msgResult    = "result"
	msgError     = "error"
)

// clientMessage is a JSON text message from a practice client.
type clientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// practiceMessage is a JSON text message sent to a practice client.
type practiceMessage struct {
	Type     string           `json:"type"`
	Session  *sessionResponse `json:"session,omitempty"`
	Revision uint64           `json:"revision,omitempty"`
	Result   *attemptResponse `json:"result,omitempty"`
	Error    *errorBody       `json:"error,omitempty"`
}

// handlePractice handles GET /v1/practice, a websocket carrying one practice
// session:
//
//   - {"type":"target","text":"..."} sets the target; the reply is a
//     "target" message with the session state.
//   - {"type":"begin"} starts a recording at the current revision; the reply
//     is a "recording" message.
//   - {"type":"reference"} asks for the reference audio, sent back as a
//     binary WAV message.
//   - A binary message is a WAV attempt. It is scored against the recording
//     begun last, or the current target when none was begun, and answered
//     with a "result" message. Changing the target while an attempt is being
//     scored answers it with a 409 "error" message instead.
//
// ?session=<id> attaches to an existing session; otherwise a session is
// created for the connection and deleted when it closes.
func (s *Server) handlePractice(w http.ResponseWriter, r *http.Request) {
	marker, err := phonetic.MarkerByName(r.URL.Query().Get("marker"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		sess  *coach.Session
		owned bool
	)
	if id := r.URL.Query().Get("session"); id != "" {
		if sess, err = s.sessions.Get(id); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		sess = s.sessions.Create(r.Context())
		owned = true
		defer s.sessions.Delete(context.WithoutCancel(r.Context()), sess.ID())
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		observe.Logger(r.Context()).Info("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxUpload)

	log := observe.Logger(r.Context()).With("session", sess.ID(), "owned", owned)
	log.Debug("practice connection opened")

	pc := &practiceConn{conn: conn, sess: sess, marker: marker}
	err = pc.run(r.Context())
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway,
		errors.Is(err, context.Canceled):
		log.Debug("practice connection closed")
		_ = conn.Close(websocket.StatusNormalClosure, "")
	default:
		log.Info("practice connection failed", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
	}
}

// practiceConn is the state of one practice websocket.
type practiceConn struct {
	conn   *websocket.Conn
	sess   *coach.Session
	marker phonetic.Marker

	// pending is the recording begun by the last "begin" message. A target
	// change leaves it in place, so the attempt that follows is refused as
	// stale. It is only touched by the read loop.
	pending *coach.Recording

	wg sync.WaitGroup
}

// run reads messages until the connection closes. Attempts are scored
// concurrently with reading so that a target change can overtake them.
func (pc *practiceConn) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer pc.wg.Wait()
	defer cancel()

	if err := pc.send(ctx, practiceMessage{Type: msgSession, Session: ptr(describe(pc.sess))}); err != nil {
		return err
	}
	for {
		typ, data, err := pc.conn.Read(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			pc.attempt(ctx, data)
		case websocket.MessageText:
			if err := pc.command(ctx, data); err != nil {
				return err
			}
		}
	}
}

// command handles one JSON text message. Only transport failures are
// returned; request errors are reported to the client.
func (pc *practiceConn) command(ctx context.Context, data []byte) error {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return pc.sendError(ctx, fmt.Errorf("%w: malformed message: %v", phonetic.ErrInvalidInput, err))
	}

	switch msg.Type {
	case msgTarget:
		if _, err := pc.sess.SetTarget(ctx, msg.Text); err != nil {
			return pc.sendError(ctx, err)
		}
		return pc.send(ctx, practiceMessage{Type: msgTarget, Session: ptr(describe(pc.sess))})

	case msgBegin:
		rec, err := pc.sess.BeginRecording()
		if err != nil {
			return pc.sendError(ctx, err)
		}
		pc.pending = &rec
		return pc.send(ctx, practiceMessage{Type: msgRecording, Revision: rec.Revision})

	case msgReference:
		t, ok := pc.sess.Target()
		if !ok {
			return pc.sendError(ctx, coach.ErrNoTarget)
		}
		if t.Reference.IsEmpty() {
			return pc.sendError(ctx, fmt.Errorf("%w: no reference audio", phonetic.ErrInvalidInput))
		}
		return pc.conn.Write(ctx, websocket.MessageBinary, audio.EncodeWAV(t.Reference))
	}
	return pc.sendError(ctx, fmt.Errorf("%w: unknown message type %q", phonetic.ErrInvalidInput, msg.Type))
}

// attempt decodes a WAV attempt and scores it in the background.
func (pc *practiceConn) attempt(ctx context.Context, data []byte) {
	rec := pc.pending
	pc.pending = nil
	if rec == nil {
		r, err := pc.sess.BeginRecording()
		if err != nil {
			_ = pc.sendError(ctx, err)
			return
		}
		rec = &r
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		_ = pc.sendError(ctx, err)
		return
	}

	pc.wg.Go(func() {
		res, err := pc.sess.Submit(ctx, *rec, clip)
		if err != nil {
			_ = pc.sendError(ctx, err)
			return
		}
		_ = pc.send(ctx, practiceMessage{Type: msgResult, Result: ptr(newAttemptResponse(res, pc.marker))})
	})
}

func (pc *practiceConn) send(ctx context.Context, msg practiceMessage) error {
	return wsjson.Write(ctx, pc.conn, msg)
}

func (pc *practiceConn) sendError(ctx context.Context, err error) error {
	body := classify(err)
	observe.Logger(ctx).Info("practice request rejected",
		"session", pc.sess.ID(), "status", body.Status, "err", err)
	return pc.send(ctx, practiceMessage{Type: msgError, Error: &body})
}

func ptr[T any](v T) *T { return &v }
