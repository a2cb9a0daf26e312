// Package goruut provides a g2p.Provider backed by the goruut phonemizer,
// which transcribes open-vocabulary text to IPA in process and offline.
//
// goruut ships pronunciation models for many languages. The language is
// selected by goruut's own names ("English", "EnglishAmerican",
// "EnglishBritish", "German", ...).
package goruut

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/neurlang/goruut/lib"
	"github.com/neurlang/goruut/models/requests"
	"github.com/neurlang/goruut/models/responses"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
)

const (
	providerName    = "goruut"
	defaultLanguage = "English"
)

var _ g2p.Provider = (*Provider)(nil)

var stressMarks = strings.NewReplacer("ˈ", "", "ˌ", "")

// Phonemizer is the part of goruut's [lib.Phonemizer] the provider uses.
type Phonemizer interface {
	Sentence(r requests.PhonemizeSentence) responses.PhonemizeSentence
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the goruut language name. Default: "English".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithStress keeps (true, default) or strips stress marks.
func WithStress(on bool) Option {
	return func(p *Provider) {
		p.stress = on
	}
}

// WithPhonemizer uses ph instead of a new goruut phonemizer.
func WithPhonemizer(ph Phonemizer) Option {
	return func(p *Provider) {
		p.ph = ph
	}
}

// Provider implements g2p.Provider with goruut.
type Provider struct {
	language string
	stress   bool

	mu sync.Mutex // serializes calls into ph
	ph Phonemizer
}

// New creates a Provider. The goruut models are loaded lazily on the first
// conversion.
func New(opts ...Option) *Provider {
	p := &Provider{language: defaultLanguage, stress: true}
	for _, o := range opts {
		o(p)
	}
	if p.ph == nil {
		p.ph = lib.NewPhonemizer(nil)
	}
	return p
}

// Language returns the configured goruut language.
func (p *Provider) Language() string { return p.language }

// ToPhonemic implements g2p.Provider.
func (p *Provider) ToPhonemic(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", g2p.Fail(providerName, err)
	}
	words := g2p.Words(text)
	if len(words) == 0 {
		return "", nil
	}

	resp, err := p.sentence(strings.Join(words, " "))
	if err != nil {
		return "", g2p.Fail(providerName, err)
	}
	if err := ctx.Err(); err != nil {
		return "", g2p.Fail(providerName, err)
	}
	if resp.ErrorWordLimitExceeded {
		return "", g2p.Fail(providerName, fmt.Errorf("word limit exceeded for %d words", len(words)))
	}
	if len(resp.Words) == 0 {
		var unknown g2p.Unsupported
		for _, w := range words {
			unknown.Add(w)
		}
		return "", unknown.Err(providerName)
	}

	out := make([]string, 0, len(resp.Words))
	var unknown g2p.Unsupported
	for _, w := range resp.Words {
		ipa := strings.TrimSpace(w.Phonetic)
		if ipa == "" {
			unknown.Add(strings.ToLower(w.CleanWord))
			continue
		}
		if !p.stress {
			ipa = stressMarks.Replace(ipa)
		}
		out = append(out, ipa)
	}
	if err := unknown.Err(providerName); err != nil {
		return "", err
	}
	return strings.Join(out, " "), nil
}

func (p *Provider) sentence(s string) (resp responses.PhonemizeSentence, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("phonemizer panic: %v", r)
		}
	}()
	if p.ph == nil {
		return resp, errors.New("no phonemizer")
	}
	return p.ph.Sentence(requests.PhonemizeSentence{
		Language: p.language,
		Sentence: s,
	}), nil
}
