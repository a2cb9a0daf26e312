// Package cmudict provides a dictionary-backed English grapheme-to-phoneme
// converter. Words are looked up in a CMU-format pronouncing dictionary and
// their ARPAbet phonemes rendered as IPA.
//
// A small seed dictionary of everyday words is compiled in. Production
// deployments should point [NewFromFile] at the full CMU dictionary
// (about 134k words).
package cmudict

import (
	"context"
	"strings"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
)

const providerName = "cmudict"

var _ g2p.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithDict uses d instead of the seed dictionary.
func WithDict(d *Dict) Option {
	return func(p *Provider) {
		if d != nil {
			p.dict = d
		}
	}
}

// WithStrict selects how unknown words are handled. Strict mode (default)
// fails with a [*g2p.UnsupportedTextError]. Lenient mode passes an unknown
// word through with a trailing "*".
func WithStrict(strict bool) Option {
	return func(p *Provider) {
		p.strict = strict
	}
}

// WithStress enables primary and secondary stress marks. Defaults to true.
func WithStress(on bool) Option {
	return func(p *Provider) {
		p.stress = on
	}
}

// Provider implements g2p.Provider with a pronouncing dictionary.
type Provider struct {
	dict   *Dict
	strict bool
	stress bool
}

// New creates a Provider over the seed dictionary unless [WithDict] is given.
func New(opts ...Option) *Provider {
	p := &Provider{strict: true, stress: true}
	for _, o := range opts {
		o(p)
	}
	if p.dict == nil {
		p.dict = Seed()
	}
	return p
}

// NewFromFile loads the dictionary at path and creates a Provider over it.
func NewFromFile(path string, opts ...Option) (*Provider, error) {
	d, err := Load(path)
	if err != nil {
		return nil, err
	}
	return New(append(opts, WithDict(d))...), nil
}

// ToPhonemic implements g2p.Provider.
func (p *Provider) ToPhonemic(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", g2p.Fail(providerName, err)
	}
	words := g2p.Words(text)
	out := make([]string, len(words))
	var unknown g2p.Unsupported
	for i, w := range words {
		phones, ok := p.dict.Lookup(w)
		switch {
		case ok:
			out[i] = transcribe(phones, p.stress)
		case p.strict:
			unknown.Add(w)
		default:
			out[i] = w + "*"
		}
	}
	if err := unknown.Err(providerName); err != nil {
		return "", err
	}
	return strings.Join(out, " "), nil
}
