package goruut

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/neurlang/goruut/models/requests"
	"github.com/neurlang/goruut/models/responses"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
)

// fakePhonemizer answers from a fixed word table and records requests.
type fakePhonemizer struct {
	table    map[string]string
	limit    bool
	panicMsg string
	requests []requests.PhonemizeSentence
}

func (f *fakePhonemizer) Sentence(r requests.PhonemizeSentence) responses.PhonemizeSentence {
	f.requests = append(f.requests, r)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.limit {
		return responses.PhonemizeSentence{ErrorWordLimitExceeded: true}
	}
	var resp responses.PhonemizeSentence
	for _, w := range strings.Fields(r.Sentence) {
		resp.Words = append(resp.Words, responses.PhonemizeSentenceWord{CleanWord: w, Phonetic: f.table[w]})
	}
	return resp
}

var coffee = map[string]string{
	"i":      "ˈaɪ",
	"would":  "wʊd",
	"like":   "lˈaɪk",
	"a":      "ə",
	"cup":    "kˈʌp",
	"of":     "ʌv",
	"coffee": "kˈɑfi",
	"please": "plˈiz",
}

func TestToPhonemic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		opts []Option
		want string
	}{
		{
			name: "everyday sentence",
			text: "I would like a cup of coffee please",
			want: "ˈaɪ wʊd lˈaɪk ə kˈʌp ʌv kˈɑfi plˈiz",
		},
		{
			name: "stress stripped",
			text: "cup of coffee",
			opts: []Option{WithStress(false)},
			want: "kʌp ʌv kɑfi",
		},
		{name: "whitespace collapsed", text: "  a \t cup ", want: "ə kˈʌp"},
		{name: "empty", text: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ph := &fakePhonemizer{table: coffee}
			p := New(append(tt.opts, WithPhonemizer(ph))...)
			got, err := p.ToPhonemic(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("ToPhonemic: %v", err)
			}
			if got != tt.want {
				t.Errorf("ToPhonemic(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestToPhonemic_Request(t *testing.T) {
	t.Parallel()
	ph := &fakePhonemizer{table: coffee}
	p := New(WithPhonemizer(ph), WithLanguage("EnglishBritish"))

	if _, err := p.ToPhonemic(context.Background(), "A  Cup"); err != nil {
		t.Fatalf("ToPhonemic: %v", err)
	}
	if len(ph.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(ph.requests))
	}
	if r := ph.requests[0]; r.Language != "EnglishBritish" || r.Sentence != "a cup" {
		t.Errorf("request = %+v", r)
	}
	if p.Language() != "EnglishBritish" {
		t.Errorf("Language() = %q", p.Language())
	}
}

func TestToPhonemic_DefaultLanguage(t *testing.T) {
	t.Parallel()
	if got := New(WithPhonemizer(&fakePhonemizer{}), WithLanguage("")).Language(); got != "English" {
		t.Errorf("Language() = %q, want English", got)
	}
}

func TestToPhonemic_Errors(t *testing.T) {
	t.Parallel()

	t.Run("untranscribed words", func(t *testing.T) {
		t.Parallel()
		p := New(WithPhonemizer(&fakePhonemizer{table: coffee}))
		_, err := p.ToPhonemic(context.Background(), "a cup of zzyzx qwrt zzyzx")
		var ue *g2p.UnsupportedTextError
		if !errors.As(err, &ue) {
			t.Fatalf("err = %v, want *g2p.UnsupportedTextError", err)
		}
		if ue.Provider != "goruut" || !slices.Equal(ue.Words, []string{"zzyzx", "qwrt"}) {
			t.Errorf("UnsupportedTextError = %+v", ue)
		}
	})

	t.Run("unknown language", func(t *testing.T) {
		t.Parallel()
		p := New(WithPhonemizer(phonemizerFunc(func(requests.PhonemizeSentence) responses.PhonemizeSentence {
			return responses.PhonemizeSentence{}
		})))
		_, err := p.ToPhonemic(context.Background(), "a cup")
		var ue *g2p.UnsupportedTextError
		if !errors.As(err, &ue) || !slices.Equal(ue.Words, []string{"a", "cup"}) {
			t.Fatalf("err = %v, want both words unsupported", err)
		}
	})

	for name, ph := range map[string]*fakePhonemizer{
		"word limit": {limit: true},
		"panic":      {panicMsg: "model not found"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := New(WithPhonemizer(ph)).ToPhonemic(context.Background(), "a cup")
			var ce *g2p.ConversionError
			if !errors.As(err, &ce) || ce.Provider != "goruut" {
				t.Fatalf("err = %v, want *g2p.ConversionError", err)
			}
		})
	}

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ph := &fakePhonemizer{table: coffee}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(WithPhonemizer(ph)).ToPhonemic(ctx, "a cup")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if len(ph.requests) != 0 {
			t.Error("phonemizer called after cancellation")
		}
	})
}

type phonemizerFunc func(requests.PhonemizeSentence) responses.PhonemizeSentence

func (f phonemizerFunc) Sentence(r requests.PhonemizeSentence) responses.PhonemizeSentence {
	return f(r)
}

func TestToPhonemic_Models(t *testing.T) {
	if testing.Short() {
		t.Skip("loads the goruut English models")
	}
	t.Parallel()

	got, err := New().ToPhonemic(context.Background(), "she sells seashells by the seashore")
	if err != nil {
		t.Fatalf("ToPhonemic: %v", err)
	}
	if strings.TrimSpace(got) == "" {
		t.Error("ToPhonemic returned no transcription")
	}
}
