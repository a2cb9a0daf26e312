// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Clip:             audio.Clip{PCM: pcm, SampleRate: 16000, Channels: 1},
//	    ListVoicesResult: []tts.Voice{{ID: "v1", Name: "Alice"}},
//	}
//	clip, _ := p.Synthesize(ctx, "hello", tts.Voice{})
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the Voice passed to Synthesize.
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize. A zero Clip yields 100 ms of 16 kHz
	// mono silence.
	Clip audio.Clip

	// SynthesizeErr, if non-nil, is returned from every Synthesize call.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.Voice

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCallCount is the number of ListVoices calls.
	ListVoicesCallCount int
}

// Synthesize records the call and returns Clip or SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})

	if err := ctx.Err(); err != nil {
		return audio.Clip{}, tts.Fail("mock", err)
	}
	if p.SynthesizeErr != nil {
		return audio.Clip{}, tts.Fail("mock", p.SynthesizeErr)
	}
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, tts.Fail("mock", tts.ErrEmptyText)
	}
	if p.Clip.IsEmpty() {
		return audio.Clip{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}, nil
	}
	c := p.Clip
	c.PCM = append([]byte(nil), p.Clip.PCM...)
	return c, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCallCount++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded Synthesize calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.SynthesizeCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCallCount = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
