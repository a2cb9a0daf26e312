// Package mock provides a test double for the g2p.Provider interface.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
)

var _ g2p.Provider = (*Provider)(nil)

// Provider is a configurable g2p.Provider for tests.
//
// With a nil Words map each input word is returned unchanged, which makes the
// phonemic form equal to the normalized text. With Words set, every word must
// be present or the call fails with a *g2p.UnsupportedTextError.
type Provider struct {
	mu sync.Mutex

	// Words maps input words to their transcription.
	Words map[string]string

	// Err, when non-nil, is returned from every call.
	Err error

	// ToPhonemicFunc, when set, overrides all other behaviour.
	ToPhonemicFunc func(ctx context.Context, text string) (string, error)

	// Calls records the text of every call.
	Calls []string
}

// ToPhonemic implements g2p.Provider.
func (p *Provider) ToPhonemic(ctx context.Context, text string) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, text)
	fn, err, words := p.ToPhonemicFunc, p.Err, p.Words
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return "", err
	}
	in := g2p.Words(text)
	if words == nil {
		return strings.Join(in, " "), nil
	}
	out := make([]string, len(in))
	var unknown g2p.Unsupported
	for i, w := range in {
		ipa, ok := words[w]
		if !ok {
			unknown.Add(w)
			continue
		}
		out[i] = ipa
	}
	if err := unknown.Err("mock"); err != nil {
		return "", err
	}
	return strings.Join(out, " "), nil
}

// CallCount returns the number of ToPhonemic calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
