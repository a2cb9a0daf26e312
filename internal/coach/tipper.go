package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/phonocoach/pkg/phonetic"
	"github.com/MrWong99/phonocoach/pkg/provider/llm"
)

const tipSystemPrompt = `You are a friendly English pronunciation coach.
You receive a target sentence, its IPA transcription, the IPA of what the learner said with mismatches in [brackets] (an underscore marks missing sounds), and the words that were not heard correctly.
Reply with exactly one short sentence of practical advice about the most important mistake. Do not repeat the score. Do not use IPA symbols the learner would not understand without explaining them.`

// TipperOption is a functional option for [NewTipper].
type TipperOption func(*Tipper)

// WithTipTimeout bounds each tip request. Default: 5s.
func WithTipTimeout(d time.Duration) TipperOption {
	return func(t *Tipper) { t.timeout = d }
}

// WithTipMaxTokens caps the tip length. Default: 80.
func WithTipMaxTokens(n int) TipperOption {
	return func(t *Tipper) { t.maxTokens = n }
}

// Tipper asks a language model for one sentence of advice about an attempt.
type Tipper struct {
	llm       llm.Provider
	timeout   time.Duration
	maxTokens int
}

// NewTipper creates a [Tipper] backed by p.
func NewTipper(p llm.Provider, opts ...TipperOption) *Tipper {
	t := &Tipper{llm: p, timeout: 5 * time.Second, maxTokens: 80}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Tip returns a coaching sentence for res.
func (t *Tipper) Tip(ctx context.Context, res Result) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: tipSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: tipPrompt(res)}},
		Temperature:  0.3,
		MaxTokens:    t.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("coach: tip: %w", err)
	}
	if resp == nil {
		return "", errors.New("coach: tip: empty completion")
	}
	tip := strings.TrimSpace(resp.Content)
	if tip == "" {
		return "", errors.New("coach: tip: empty completion")
	}
	return tip, nil
}

func tipPrompt(res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target sentence: %s\n", res.Target)
	fmt.Fprintf(&b, "Target IPA: %s\n", res.TargetPhonemic)
	fmt.Fprintf(&b, "Learner IPA: %s\n", res.Render(phonetic.BracketMarker))
	fmt.Fprintf(&b, "Heard as: %s\n", res.Heard)

	var missed []string
	for _, w := range res.Words {
		switch w.Verdict {
		case phonetic.VerdictMissed:
			missed = append(missed, fmt.Sprintf("%q (not heard)", w.Target))
		case phonetic.VerdictClose, phonetic.VerdictSoundAlike:
			missed = append(missed, fmt.Sprintf("%q (heard %q)", w.Target, w.Heard))
		}
	}
	if len(missed) > 0 {
		fmt.Fprintf(&b, "Problem words: %s\n", strings.Join(missed, ", "))
	}
	return b.String()
}
