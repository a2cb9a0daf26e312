// Package espeak provides a g2p.Provider backed by the espeak-ng command-line
// synthesizer. Text is passed to "espeak-ng -q --ipa" and the IPA it prints
// is returned with whitespace collapsed.
//
// espeak-ng covers open vocabulary and many languages, so it never reports
// unsupported words: anything it cannot look up is transcribed by its letter
// rules.
package espeak

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
)

const (
	providerName   = "espeak"
	defaultVoice   = "en-us"
	defaultTimeout = 10 * time.Second
)

var _ g2p.Provider = (*Provider)(nil)

var stressMarks = strings.NewReplacer("ˈ", "", "ˌ", "")

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBinary sets the executable name or path. By default "espeak-ng" is
// looked up on PATH, then "espeak".
func WithBinary(bin string) Option {
	return func(p *Provider) {
		p.bin = bin
	}
}

// WithVoice sets the espeak voice, e.g. "en-us", "en-gb" or "de".
func WithVoice(voice string) Option {
	return func(p *Provider) {
		if voice != "" {
			p.voice = voice
		}
	}
}

// WithStress keeps (true, default) or strips the stress marks espeak emits.
func WithStress(on bool) Option {
	return func(p *Provider) {
		p.stress = on
	}
}

// WithTimeout bounds a single espeak invocation.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Provider implements g2p.Provider by running espeak-ng.
type Provider struct {
	bin     string
	voice   string
	stress  bool
	timeout time.Duration
}

// New resolves the espeak binary and returns a ready Provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{voice: defaultVoice, stress: true, timeout: defaultTimeout}
	for _, o := range opts {
		o(p)
	}

	candidates := []string{"espeak-ng", "espeak"}
	if p.bin != "" {
		candidates = []string{p.bin}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			p.bin = path
			return p, nil
		}
	}
	return nil, fmt.Errorf("espeak: executable not found (tried %s)", strings.Join(candidates, ", "))
}

// Voice returns the configured espeak voice.
func (p *Provider) Voice() string { return p.voice }

// ToPhonemic implements g2p.Provider.
func (p *Provider) ToPhonemic(ctx context.Context, text string) (string, error) {
	words := g2p.Words(text)
	if len(words) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.bin, "-q", "--ipa", "-v", p.voice, strings.Join(words, " "))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", g2p.Fail(providerName, ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", g2p.Fail(providerName, fmt.Errorf("%w: %s", err, msg))
		}
		return "", g2p.Fail(providerName, err)
	}

	ipa := strings.Join(strings.Fields(string(out)), " ")
	if !p.stress {
		ipa = stressMarks.Replace(ipa)
	}
	return ipa, nil
}
