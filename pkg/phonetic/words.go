package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	defaultSoundAlikeThreshold = 0.70
	defaultCloseThreshold      = 0.85
)

// Verdict classifies how a single target word was pronounced.
type Verdict string

const (
	// VerdictExact means the recognizer heard the word as written.
	VerdictExact Verdict = "exact"

	// VerdictSoundAlike means a different spelling with the same Double
	// Metaphone code was heard (e.g. "quik" for "quick").
	VerdictSoundAlike Verdict = "sound_alike"

	// VerdictClose means a word that is orthographically close but does not
	// share a phonetic code was heard.
	VerdictClose Verdict = "close"

	// VerdictMissed means the word was not heard at all, or something
	// unrelated was heard in its place.
	VerdictMissed Verdict = "missed"
)

// WordResult is the feedback for one word of the target sentence.
type WordResult struct {
	// Target is the normalized target word.
	Target string `json:"target"`

	// Heard is the recognized word aligned to Target. Empty when nothing was
	// heard in its place.
	Heard string `json:"heard"`

	// Verdict classifies the pronunciation.
	Verdict Verdict `json:"verdict"`

	// Similarity is the Jaro-Winkler similarity between Target and Heard.
	Similarity float64 `json:"similarity"`
}

// WordOption is a functional option for configuring a [WordMatcher].
type WordOption func(*WordMatcher)

// WithSoundAlikeThreshold sets the minimum Jaro-Winkler score for a word that
// shares a Double Metaphone code with its target to count as a sound-alike.
// Default: 0.70.
func WithSoundAlikeThreshold(threshold float64) WordOption {
	return func(m *WordMatcher) {
		m.soundAlikeThreshold = threshold
	}
}

// WithCloseThreshold sets the minimum Jaro-Winkler score for a word without a
// shared phonetic code to count as close. Default: 0.85.
func WithCloseThreshold(threshold float64) WordOption {
	return func(m *WordMatcher) {
		m.closeThreshold = threshold
	}
}

// WordMatcher produces word-level feedback by aligning the target and heard
// sentences word by word and classifying each replaced word with Double
// Metaphone codes and Jaro-Winkler similarity. It is read-only after
// construction and safe for concurrent use.
type WordMatcher struct {
	soundAlikeThreshold float64
	closeThreshold      float64
}

// NewWordMatcher returns a [WordMatcher] configured with opts.
func NewWordMatcher(opts ...WordOption) *WordMatcher {
	m := &WordMatcher{
		soundAlikeThreshold: defaultSoundAlikeThreshold,
		closeThreshold:      defaultCloseThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Compare returns one [WordResult] per word of target, in order. Both
// arguments are normalized before comparison. Words that were heard but have
// no counterpart in target are not reported.
func (m *WordMatcher) Compare(target, heard string) []WordResult {
	tw := strings.Fields(Normalize(target))
	hw := strings.Fields(Normalize(heard))
	if len(tw) == 0 {
		return nil
	}

	out := make([]WordResult, 0, len(tw))
	sm := difflib.NewMatcherWithJunk(tw, hw, false, nil)
	for _, op := range sm.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, w := range tw[op.I1:op.I2] {
				out = append(out, WordResult{Target: w, Heard: w, Verdict: VerdictExact, Similarity: 1})
			}
		case 'd':
			for _, w := range tw[op.I1:op.I2] {
				out = append(out, WordResult{Target: w, Verdict: VerdictMissed})
			}
		case 'r':
			// Pair words positionally; surplus target words are missed.
			for k, w := range tw[op.I1:op.I2] {
				j := op.J1 + k
				if j >= op.J2 {
					out = append(out, WordResult{Target: w, Verdict: VerdictMissed})
					continue
				}
				out = append(out, m.classify(w, hw[j]))
			}
		}
	}
	return out
}

// classify compares one target word with the word heard in its place.
func (m *WordMatcher) classify(target, heard string) WordResult {
	res := WordResult{Target: target, Heard: heard}
	res.Similarity = matchr.JaroWinkler(target, heard, false)

	switch {
	case codesOverlap(codesFor(target), codesFor(heard)) && res.Similarity >= m.soundAlikeThreshold:
		res.Verdict = VerdictSoundAlike
	case res.Similarity >= m.closeThreshold:
		res.Verdict = VerdictClose
	default:
		res.Verdict = VerdictMissed
	}
	return res
}

// codesFor returns the non-empty Double Metaphone codes of word.
func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
