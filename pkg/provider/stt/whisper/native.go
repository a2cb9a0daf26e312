// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/phonocoach/pkg/audio"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
)

const nativeProviderName = "whisper-native"

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings. The
// model is loaded once at construction and shared by all calls; every call
// gets its own whisper context, so concurrent transcriptions do not interfere.
type NativeProvider struct {
	model    whisperlib.Model
	language string

	// sem bounds the number of concurrent inferences. Each context allocates
	// its own KV cache, which is large for anything above the base model.
	sem chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language code for transcription
// (e.g. "en", "de"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeConcurrency limits how many transcriptions may run at once.
// Defaults to 1.
func WithNativeConcurrency(n int) NativeOption {
	return func(p *NativeProvider) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// modelPath (e.g. "models/ggml-base.en.bin"). The caller must call Close when
// the provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		sem:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Calling Close more than once is safe.
func (p *NativeProvider) Close() error {
	p.closeOnce.Do(func() {
		if p.model != nil {
			p.closeErr = p.model.Close()
		}
	})
	return p.closeErr
}

// Transcribe runs whisper inference on clip. It blocks until a concurrency
// slot is free or ctx is done; inference itself cannot be interrupted once
// started.
func (p *NativeProvider) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Transcript, error) {
	if clip.IsEmpty() {
		return stt.Transcript{}, stt.Fail(nativeProviderName, stt.ErrNoSpeech)
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return stt.Transcript{}, stt.Fail(nativeProviderName, ctx.Err())
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	mono := audio.ForRecognizer(clip)
	text, err := p.infer(audio.Float32Mono(mono.PCM, 1), lang)
	if err != nil {
		return stt.Transcript{}, stt.Fail(nativeProviderName, err)
	}
	t := stt.Transcript{Text: text, Language: lang, Duration: mono.Duration()}
	if t.IsBlank() {
		return stt.Transcript{}, stt.Fail(nativeProviderName, stt.ErrNoSpeech)
	}
	return t, nil
}

// infer runs whisper.cpp inference on samples using a fresh context and
// returns the concatenated segment text.
func (p *NativeProvider) infer(samples []float32, lang string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}

	// whisper.cpp wants bare ISO-639-1 codes.
	base, _, _ := strings.Cut(lang, "-")
	if err := wctx.SetLanguage(base); err != nil {
		slog.Warn("whisper: failed to set language, using model default", "language", lang, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
