package lexicon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p/lexicon"
	"github.com/MrWong99/phonocoach/pkg/provider/g2p/mock"
)

func TestToPhonemic_LexiconFirst(t *testing.T) {
	t.Parallel()

	next := &mock.Provider{Words: map[string]string{"hello": "həˈloʊ", "gif": "gɪf"}}
	p := lexicon.New(map[string]string{"GIF": " ʤɪf ", "phonocoach": "ˈfoʊnoʊˌkoʊʧ"}, next)

	got, err := p.ToPhonemic(context.Background(), "hello gif phonocoach")
	if err != nil {
		t.Fatalf("ToPhonemic: %v", err)
	}
	if want := "həˈloʊ ʤɪf ˈfoʊnoʊˌkoʊʧ"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if next.CallCount() != 1 || next.Calls[0] != "hello" {
		t.Errorf("next calls = %q, want only [hello]", next.Calls)
	}
}

func TestToPhonemic_UnknownWords(t *testing.T) {
	t.Parallel()

	t.Run("collected across next calls", func(t *testing.T) {
		t.Parallel()
		next := &mock.Provider{Words: map[string]string{"hello": "həˈloʊ"}}
		p := lexicon.New(nil, next)
		_, err := p.ToPhonemic(context.Background(), "zork hello blarg zork")
		var ue *g2p.UnsupportedTextError
		if !errors.As(err, &ue) {
			t.Fatalf("err = %v, want *g2p.UnsupportedTextError", err)
		}
		if ue.Provider != "lexicon" || strings.Join(ue.Words, ",") != "zork,blarg" {
			t.Errorf("err = %+v", ue)
		}
	})

	t.Run("no next provider", func(t *testing.T) {
		t.Parallel()
		p := lexicon.New(map[string]string{"a": "ə"}, nil)
		_, err := p.ToPhonemic(context.Background(), "a b")
		if !errors.Is(err, g2p.ErrUnsupportedText) {
			t.Errorf("err = %v, want ErrUnsupportedText", err)
		}
	})
}

func TestToPhonemic_BackendFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("espeak crashed")
	p := lexicon.New(nil, &mock.Provider{Err: cause})
	_, err := p.ToPhonemic(context.Background(), "hello")
	var ce *g2p.ConversionError
	if !errors.As(err, &ce) || ce.Provider != "lexicon" || !errors.Is(err, cause) {
		t.Errorf("err = %v, want ConversionError wrapping the cause", err)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		wantLen int
		wantErr string
	}{
		{name: "valid", src: "words:\n  gif: ʤɪf\n  Nginx: ˈɛnʤɪnˌɛks\n", wantLen: 2},
		{name: "empty document", src: "", wantLen: 0},
		{name: "unknown field", src: "wrods:\n  gif: ʤɪf\n", wantErr: "decode"},
		{name: "multi-word key", src: "words:\n  \"new york\": nu jɔrk\n", wantErr: "single word"},
		{name: "empty pronunciation", src: "words:\n  gif: \"\"\n", wantErr: "empty pronunciation"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := lexicon.Parse(strings.NewReader(tc.src), nil)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if p.Len() != tc.wantLen {
				t.Errorf("Len = %d, want %d", p.Len(), tc.wantLen)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("words:\n  kubectl: ˈkubˌkʌtəl\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := lexicon.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := p.ToPhonemic(context.Background(), "Kubectl")
	if err != nil || got != "ˈkubˌkʌtəl" {
		t.Errorf("ToPhonemic = %q, %v", got, err)
	}
}
