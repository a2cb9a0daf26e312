// Package lexicon layers a user-maintained pronunciation list in front of
// another g2p converter. Words found in the lexicon use its IPA verbatim;
// every other word is converted by the next provider one word at a time.
//
// Lexicon files are YAML:
//
//	words:
//	  phonocoach: ˈfoʊnoʊˌkoʊʧ
//	  gif: ʤɪf
package lexicon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
)

const providerName = "lexicon"

var _ g2p.Provider = (*Provider)(nil)

// Provider resolves words from an in-memory lexicon before delegating.
type Provider struct {
	words map[string]string
	next  g2p.Provider
}

type file struct {
	Words map[string]string `yaml:"words"`
}

// New returns a Provider over words. Keys are matched case-insensitively.
// next may be nil, in which case words outside the lexicon are unsupported.
func New(words map[string]string, next g2p.Provider) *Provider {
	m := make(map[string]string, len(words))
	for w, ipa := range words {
		m[strings.ToLower(strings.TrimSpace(w))] = strings.TrimSpace(ipa)
	}
	return &Provider{words: m, next: next}
}

// Parse reads a YAML lexicon from r.
func Parse(r io.Reader, next g2p.Provider) (*Provider, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("lexicon: decode: %w", err)
	}
	for w, ipa := range f.Words {
		if strings.ContainsAny(w, " \t\n") {
			return nil, fmt.Errorf("lexicon: entry %q: key must be a single word", w)
		}
		if strings.TrimSpace(ipa) == "" {
			return nil, fmt.Errorf("lexicon: entry %q: empty pronunciation", w)
		}
	}
	return New(f.Words, next), nil
}

// Load reads the YAML lexicon at path.
func Load(path string, next g2p.Provider) (*Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}
	defer f.Close()
	return Parse(f, next)
}

// Len returns the number of lexicon entries.
func (p *Provider) Len() int { return len(p.words) }

// ToPhonemic implements g2p.Provider.
func (p *Provider) ToPhonemic(ctx context.Context, text string) (string, error) {
	words := g2p.Words(text)
	out := make([]string, len(words))
	var unknown g2p.Unsupported
	for i, w := range words {
		if ipa, ok := p.words[w]; ok {
			out[i] = ipa
			continue
		}
		if p.next == nil {
			unknown.Add(w)
			continue
		}
		ipa, err := p.next.ToPhonemic(ctx, w)
		if err != nil {
			var ue *g2p.UnsupportedTextError
			if errors.As(err, &ue) {
				for _, uw := range ue.Words {
					unknown.Add(uw)
				}
				continue
			}
			return "", g2p.Fail(providerName, err)
		}
		out[i] = ipa
	}
	if err := unknown.Err(providerName); err != nil {
		return "", err
	}
	return strings.Join(out, " "), nil
}
