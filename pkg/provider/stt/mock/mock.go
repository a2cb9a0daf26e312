// Package mock provides a test double for the stt.Provider interface.
//
// Provider returns canned transcripts in order and records every clip it was
// asked to transcribe.
//
// Example:
//
//	p := &mock.Provider{Transcripts: []stt.Transcript{{Text: "hello"}}}
//	t, _ := p.Transcribe(ctx, clip, stt.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Clip is a copy of the clip passed to Transcribe.
	Clip audio.Clip
	// Opts is the Options passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcripts are returned one per call, in order. The last entry is
	// repeated once exhausted. An empty slice yields stt.ErrNoSpeech.
	Transcripts []stt.Transcript

	// Err, if non-nil, is returned from every call.
	Err error

	// TranscribeFunc, if set, overrides Transcripts and Err.
	TranscribeFunc func(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error)

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next canned transcript.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error) {
	p.mu.Lock()
	cp := clip
	cp.PCM = append([]byte(nil), clip.PCM...)
	n := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Clip: cp, Opts: opts})
	fn := p.TranscribeFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, clip, opts)
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, stt.Fail("mock", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return stt.Transcript{}, stt.Fail("mock", p.Err)
	}
	if len(p.Transcripts) == 0 {
		return stt.Transcript{}, stt.Fail("mock", stt.ErrNoSpeech)
	}
	t := p.Transcripts[min(n, len(p.Transcripts)-1)]
	if t.IsBlank() {
		return stt.Transcript{}, stt.Fail("mock", stt.ErrNoSpeech)
	}
	return t, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
