// Package coach orchestrates one pronunciation attempt end to end.
//
// A [Coach] turns a target sentence into its phonemic form and a reference
// recording ([Coach.PrepareTarget]), then scores a recorded attempt against
// it ([Coach.Evaluate]): recognize, normalize, convert, align, render and
// grade. Collaborators are injected through [New]; the coach holds no global
// state.
//
// A [Session] adds the staleness guard: a recording started before the target
// changed is refused. [Sessions] keeps sessions in memory keyed by ID.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonocoach/internal/observe"
	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/phonetic"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
	"github.com/MrWong99/phonocoach/pkg/provider/vad"
)

// defaultSilenceThreshold is the RMS level, in 16-bit sample units, below
// which an attempt is treated as silence without calling the recognizer.
const defaultSilenceThreshold = 10

// trimPadding is kept around the detected speech when trimming attempts.
const trimPadding = 200 * time.Millisecond

// Settings are the coach parameters that may change while the service runs.
type Settings struct {
	// Grader maps scores to grades.
	Grader Grader

	// Language is passed to the recognizer and the reference voice.
	Language string

	// Voice selects the reference voice. A zero Voice uses the synthesizer
	// default.
	Voice tts.Voice

	// Tips enables coaching tips when a [Tipper] is configured.
	Tips bool
}

// Target is a prepared practice sentence.
type Target struct {
	// Text is the sentence as entered, trimmed.
	Text string `json:"text"`

	// Normalized is Text after [phonetic.Normalize].
	Normalized string `json:"normalized"`

	// Phonemic is the phonemic form of Normalized.
	Phonemic string `json:"phonemic"`

	// Reference is the synthesized pronunciation. Empty when the coach has no
	// synthesizer.
	Reference audio.Clip `json:"-"`
}

// Result is the complete outcome of one scored attempt.
type Result struct {
	AttemptID      string                `json:"attempt_id"`
	Target         string                `json:"target"`
	Heard          string                `json:"heard"`
	TargetPhonemic string                `json:"target_phonemic"`
	HeardPhonemic  string                `json:"heard_phonemic"`
	Alignment      phonetic.Alignment    `json:"alignment"`
	Segments       []phonetic.Segment    `json:"segments"`
	Grade          Grade                 `json:"grade"`
	Message        string                `json:"message"`
	Words          []phonetic.WordResult `json:"words"`
	Tip            string                `json:"tip,omitempty"`
}

// Score is shorthand for r.Alignment.Score.
func (r Result) Score() int { return r.Alignment.Score }

// Render returns the heard phonemic string with mismatches decorated by m.
func (r Result) Render(m phonetic.Marker) string {
	return phonetic.Join(r.Segments, m)
}

// Option is a functional option for [New].
type Option func(*Coach)

// WithSettings sets the initial [Settings].
func WithSettings(s Settings) Option {
	return func(c *Coach) { c.settings.Store(&s) }
}

// WithTipper enables coaching tips. Tips are only requested while
// [Settings.Tips] is true.
func WithTipper(t *Tipper) Option {
	return func(c *Coach) { c.tipper = t }
}

// WithWordMatcher replaces the default word-level matcher.
func WithWordMatcher(m *phonetic.WordMatcher) Option {
	return func(c *Coach) { c.words = m }
}

// WithMetrics sets the metrics attempts are recorded to. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coach) { c.metrics = m }
}

// WithSilenceThreshold sets the RMS level below which an attempt is rejected
// as silent before recognition. Zero disables the check.
func WithSilenceThreshold(rms float64) Option {
	return func(c *Coach) { c.silence = rms }
}

// WithSpeechTrim cuts leading and trailing silence from attempts with e
// before recognition. An attempt in which e finds no speech fails like a
// silent one.
func WithSpeechTrim(e vad.Engine) Option {
	return func(c *Coach) { c.vad = e }
}

// Coach scores pronunciation attempts. It is safe for concurrent use.
type Coach struct {
	converter   g2p.Provider
	recognizer  stt.Provider
	synthesizer tts.Provider

	tipper  *Tipper
	words   *phonetic.WordMatcher
	metrics *observe.Metrics
	silence float64
	vad     vad.Engine

	settings atomic.Pointer[Settings]
}

// New creates a [Coach]. converter and recognizer are required; synthesizer
// may be nil, in which case targets carry no reference audio.
func New(converter g2p.Provider, recognizer stt.Provider, synthesizer tts.Provider, opts ...Option) (*Coach, error) {
	if converter == nil {
		return nil, fmt.Errorf("coach: converter is required")
	}
	if recognizer == nil {
		return nil, fmt.Errorf("coach: recognizer is required")
	}
	c := &Coach{
		converter:   converter,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		silence:     defaultSilenceThreshold,
	}
	c.settings.Store(&Settings{Grader: DefaultGrader()})
	for _, o := range opts {
		o(c)
	}
	if c.words == nil {
		c.words = phonetic.NewWordMatcher()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if err := c.Settings().Grader.Validate(); err != nil {
		return nil, fmt.Errorf("coach: grading: %w", err)
	}
	return c, nil
}

// Settings returns the current settings.
func (c *Coach) Settings() Settings {
	return *c.settings.Load()
}

// Grader returns the current grade thresholds.
func (c *Coach) Grader() Grader {
	return c.settings.Load().Grader
}

// UpdateSettings applies fn to a copy of the current settings and installs
// the result. Attempts already in flight keep the settings they started with.
func (c *Coach) UpdateSettings(fn func(*Settings)) error {
	for {
		old := c.settings.Load()
		next := *old
		fn(&next)
		if err := next.Grader.Validate(); err != nil {
			return fmt.Errorf("coach: grading: %w", err)
		}
		if c.settings.CompareAndSwap(old, &next) {
			return nil
		}
	}
}

// PrepareTarget normalizes text and, concurrently, converts it to phonemic
// form and synthesizes the reference recording. Text that normalizes to
// nothing fails with [phonetic.ErrInvalidInput]. Collaborator errors are
// returned unchanged.
func (c *Coach) PrepareTarget(ctx context.Context, text string) (Target, error) {
	t := Target{
		Text:       strings.TrimSpace(text),
		Normalized: phonetic.Normalize(text),
	}
	if t.Normalized == "" {
		return Target{}, fmt.Errorf("coach: %w: target has no words", phonetic.ErrInvalidInput)
	}
	s := c.Settings()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.converter.ToPhonemic(gctx, t.Normalized)
		if err != nil {
			return err
		}
		t.Phonemic = p
		return nil
	})
	if c.synthesizer != nil {
		g.Go(func() error {
			voice := s.Voice
			if voice.Language == "" {
				voice.Language = s.Language
			}
			clip, err := c.synthesizer.Synthesize(gctx, t.Text, voice)
			if err != nil {
				return err
			}
			t.Reference = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// Evaluate scores clip as an attempt at target.
//
// The attempt is transcribed, normalized and converted, then aligned with the
// target's phonemic form. A clip with no audible signal fails with an error
// wrapping [stt.ErrNoSpeech] without reaching the recognizer. Collaborator
// errors are returned unchanged; there is no partial result.
func (c *Coach) Evaluate(ctx context.Context, target Target, clip audio.Clip) (Result, error) {
	s := c.Settings()
	start := time.Now()

	clip = audio.ForRecognizer(clip)
	if clip.IsEmpty() || (c.silence > 0 && audio.RMS(clip.PCM) < c.silence) {
		return Result{}, stt.Fail("coach", stt.ErrNoSpeech)
	}
	if c.vad != nil {
		trimmed, err := vad.Trim(c.vad, clip, vad.DefaultConfig(), trimPadding)
		switch {
		case errors.Is(err, vad.ErrNoSpeech):
			return Result{}, stt.Fail("coach", stt.ErrNoSpeech)
		case err != nil:
			observe.Logger(ctx).Warn("speech trim failed, using the whole attempt", "err", err)
		default:
			clip = trimmed
		}
	}

	tr, err := c.recognizer.Transcribe(ctx, clip, stt.Options{Language: s.Language})
	if err != nil {
		return Result{}, err
	}
	heard := phonetic.Normalize(tr.Text)
	if heard == "" {
		// Reported as unrecognized rather than scored 0.
		return Result{}, stt.Fail("coach", stt.ErrNoSpeech)
	}

	heardPhonemic, err := c.converter.ToPhonemic(ctx, heard)
	if err != nil {
		return Result{}, err
	}

	al, err := phonetic.Align(target.Phonemic, heardPhonemic)
	if err != nil {
		return Result{}, fmt.Errorf("coach: align: %w", err)
	}
	segs, err := phonetic.Segments(heardPhonemic, al.Opcodes)
	if err != nil {
		return Result{}, fmt.Errorf("coach: render: %w", err)
	}

	grade := s.Grader.Grade(al.Score)
	res := Result{
		AttemptID:      uuid.NewString(),
		Target:         target.Text,
		Heard:          heard,
		TargetPhonemic: target.Phonemic,
		HeardPhonemic:  heardPhonemic,
		Alignment:      al,
		Segments:       segs,
		Grade:          grade,
		Message:        grade.Message(),
		Words:          c.words.Compare(target.Normalized, heard),
	}

	if c.tipper != nil && s.Tips && grade != GradeExcellent {
		tip, err := c.tipper.Tip(ctx, res)
		if err != nil {
			observe.Logger(ctx).Warn("coaching tip failed", "attempt_id", res.AttemptID, "err", err)
		} else {
			res.Tip = tip
		}
	}

	c.metrics.RecordAttempt(ctx, grade.String(), al.Score)
	observe.Logger(ctx).Debug("attempt scored",
		"attempt_id", res.AttemptID,
		"score", al.Score,
		"grade", grade.String(),
		"duration", time.Since(start),
	)
	return res, nil
}
