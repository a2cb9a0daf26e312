package phonetic_test

import (
	"errors"
	"slices"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/phonocoach/pkg/phonetic"
)

func op(tag phonetic.Tag, i1, i2, j1, j2 int) phonetic.Opcode {
	return phonetic.Opcode{Tag: tag, TargetStart: i1, TargetEnd: i2, RecognizedStart: j1, RecognizedEnd: j2}
}

func TestAlign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		target     string
		recognized string
		wantScore  int
		wantOps    []phonetic.Opcode
	}{
		{
			name:      "both empty",
			wantScore: 100,
			wantOps:   []phonetic.Opcode{},
		},
		{
			name:       "empty target is a single insert",
			recognized: "hi",
			wantScore:  0,
			wantOps:    []phonetic.Opcode{op(phonetic.TagInsert, 0, 0, 0, 2)},
		},
		{
			name:      "empty recognized is a single delete",
			target:    "hɛloʊ",
			wantScore: 0,
			wantOps:   []phonetic.Opcode{op(phonetic.TagDelete, 0, 5, 0, 0)},
		},
		{
			name:       "missing final sound",
			target:     "hɛloʊ wɜrld",
			recognized: "hɛloʊ wɜrl",
			wantScore:  95,
			wantOps: []phonetic.Opcode{
				op(phonetic.TagEqual, 0, 10, 0, 10),
				op(phonetic.TagDelete, 10, 11, 10, 10),
			},
		},
		{
			name:       "vowel substitution",
			target:     "kæt",
			recognized: "kɑt",
			wantScore:  66,
			wantOps: []phonetic.Opcode{
				op(phonetic.TagEqual, 0, 1, 0, 1),
				op(phonetic.TagReplace, 1, 2, 1, 2),
				op(phonetic.TagEqual, 2, 3, 2, 3),
			},
		},
		{
			name:       "rotation",
			target:     "abcd",
			recognized: "bcda",
			wantScore:  75,
			wantOps: []phonetic.Opcode{
				op(phonetic.TagDelete, 0, 1, 0, 0),
				op(phonetic.TagEqual, 1, 4, 0, 3),
				op(phonetic.TagInsert, 4, 4, 3, 4),
			},
		},
		{
			name:       "disjoint",
			target:     "abc",
			recognized: "xyz",
			wantScore:  0,
			wantOps:    []phonetic.Opcode{op(phonetic.TagReplace, 0, 3, 0, 3)},
		},
		{
			name:       "stress mark counts as a symbol",
			target:     "həˈloʊ",
			recognized: "jɛloʊ",
			wantScore:  54,
			wantOps: []phonetic.Opcode{
				op(phonetic.TagReplace, 0, 3, 0, 2),
				op(phonetic.TagEqual, 3, 6, 2, 5),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := phonetic.Align(tt.target, tt.recognized)
			if err != nil {
				t.Fatalf("Align(%q, %q): unexpected error: %v", tt.target, tt.recognized, err)
			}
			if got.Score != tt.wantScore {
				t.Errorf("Align(%q, %q).Score = %d, want %d", tt.target, tt.recognized, got.Score, tt.wantScore)
			}
			if !slices.Equal(got.Opcodes, tt.wantOps) {
				t.Errorf("Align(%q, %q).Opcodes = %+v, want %+v", tt.target, tt.recognized, got.Opcodes, tt.wantOps)
			}
		})
	}
}

func TestAlign_IdenticalScoresFull(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"kwik braʊn fɑks", "ðə kwɪk braʊn fɑks", "a", "ˈɪŋɡlɪʃ"} {
		got, err := phonetic.Align(s, s)
		if err != nil {
			t.Fatalf("Align(%q, %q): unexpected error: %v", s, s, err)
		}
		if got.Score != 100 || got.Ratio != 1 {
			t.Errorf("Align(%q, %q) = score %d ratio %f, want 100 and 1.0", s, s, got.Score, got.Ratio)
		}
		n := utf8.RuneCountInString(s)
		want := []phonetic.Opcode{op(phonetic.TagEqual, 0, n, 0, n)}
		if !slices.Equal(got.Opcodes, want) {
			t.Errorf("Align(%q, %q).Opcodes = %+v, want %+v", s, s, got.Opcodes, want)
		}
	}
}

func TestAlign_RatioIsSymmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"hɛloʊ wɜrld", "hɛloʊ wɜrl"},
		{"kæt", "kɑt"},
		{"abcd", "bcda"},
		{"", "hi"},
		{"ðə kwɪk braʊn fɑks", "ðə kwɪk braʊn fɔks"},
		{"həˈloʊ", "jɛloʊ"},
		// Greedy matching finds 2 symbols one way and 3 the other.
		{"cba", "acaa"},
		{"bacbca", "cccac"},
		{"ðə rɛd bɛd", "bɛd rɛd ðə"},
	}
	for _, p := range pairs {
		ab, err := phonetic.Align(p[0], p[1])
		if err != nil {
			t.Fatalf("Align(%q, %q): %v", p[0], p[1], err)
		}
		ba, err := phonetic.Align(p[1], p[0])
		if err != nil {
			t.Fatalf("Align(%q, %q): %v", p[1], p[0], err)
		}
		if ab.Ratio != ba.Ratio || ab.Score != ba.Score {
			t.Errorf("ratio(%q,%q)=%f, ratio(%q,%q)=%f, want equal", p[0], p[1], ab.Ratio, p[1], p[0], ba.Ratio)
		}
	}
}

func TestAlign_KeepsTheBetterDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target, recognized string
		wantScore          int
		wantOps            []phonetic.Opcode
	}{
		{
			target:     "cba",
			recognized: "acaa",
			wantScore:  57,
			wantOps: []phonetic.Opcode{
				op(phonetic.TagInsert, 0, 0, 0, 1),
				op(phonetic.TagEqual, 0, 1, 1, 2),
				op(phonetic.TagDelete, 1, 2, 2, 2),
				op(phonetic.TagEqual, 2, 3, 2, 3),
				op(phonetic.TagInsert, 3, 3, 3, 4),
			},
		},
		{
			target:     "acaa",
			recognized: "cba",
			wantScore:  57,
			wantOps: []phonetic.Opcode{
				op(phonetic.TagDelete, 0, 1, 0, 0),
				op(phonetic.TagEqual, 1, 2, 0, 1),
				op(phonetic.TagInsert, 2, 2, 1, 2),
				op(phonetic.TagEqual, 2, 3, 2, 3),
				op(phonetic.TagDelete, 3, 4, 3, 3),
			},
		},
		{
			target:     "bacbca",
			recognized: "cccac",
			wantScore:  54,
			wantOps: []phonetic.Opcode{
				op(phonetic.TagDelete, 0, 2, 0, 0),
				op(phonetic.TagEqual, 2, 3, 0, 1),
				op(phonetic.TagReplace, 3, 4, 1, 2),
				op(phonetic.TagEqual, 4, 6, 2, 4),
				op(phonetic.TagInsert, 6, 6, 4, 5),
			},
		},
	}
	for _, tt := range tests {
		got, err := phonetic.Align(tt.target, tt.recognized)
		if err != nil {
			t.Fatalf("Align(%q, %q): %v", tt.target, tt.recognized, err)
		}
		if got.Score != tt.wantScore {
			t.Errorf("Align(%q, %q).Score = %d, want %d", tt.target, tt.recognized, got.Score, tt.wantScore)
		}
		if !slices.Equal(got.Opcodes, tt.wantOps) {
			t.Errorf("Align(%q, %q).Opcodes = %+v, want %+v", tt.target, tt.recognized, got.Opcodes, tt.wantOps)
		}
	}
}

func TestAlign_OpcodesPartitionBothStrings(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"ðə kwɪk braʊn fɑks", "də kwɪ bɹaʊn fɑksɪz"},
		{"hɛloʊ wɜrld", "wɜrld hɛloʊ"},
		{"aaaa", "a"},
		{"x", "yyyy"},
	}
	for _, p := range pairs {
		got, err := phonetic.Align(p[0], p[1])
		if err != nil {
			t.Fatalf("Align(%q, %q): %v", p[0], p[1], err)
		}
		i, j := 0, 0
		for k, o := range got.Opcodes {
			if o.TargetStart != i || o.RecognizedStart != j {
				t.Fatalf("Align(%q, %q): opcode %d starts at (%d,%d), want (%d,%d)", p[0], p[1], k, o.TargetStart, o.RecognizedStart, i, j)
			}
			i, j = o.TargetEnd, o.RecognizedEnd
		}
		if i != utf8.RuneCountInString(p[0]) || j != utf8.RuneCountInString(p[1]) {
			t.Errorf("Align(%q, %q): opcodes end at (%d,%d), want full lengths", p[0], p[1], i, j)
		}
	}
}

func TestAlign_InvalidUTF8(t *testing.T) {
	t.Parallel()

	if _, err := phonetic.Align("ok", "\xff\xfe"); !errors.Is(err, phonetic.ErrInvalidInput) {
		t.Errorf("Align with invalid recognized: err = %v, want ErrInvalidInput", err)
	}
	if _, err := phonetic.Align("\xc3", "ok"); !errors.Is(err, phonetic.ErrInvalidInput) {
		t.Errorf("Align with invalid target: err = %v, want ErrInvalidInput", err)
	}
}

func TestScoreOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ratio float64
		want  int
	}{
		{0, 0},
		{-0.5, 0},
		{0.999, 99},
		{0.5, 50},
		{1, 100},
		{1.2, 100},
	}
	for _, tt := range tests {
		if got := phonetic.ScoreOf(tt.ratio); got != tt.want {
			t.Errorf("ScoreOf(%f) = %d, want %d", tt.ratio, got, tt.want)
		}
	}
}

func TestTag_TextRoundTrip(t *testing.T) {
	t.Parallel()

	var tag phonetic.Tag
	if err := tag.UnmarshalText([]byte("delete")); err != nil || tag != phonetic.TagDelete {
		t.Errorf("UnmarshalText(delete) = %v, %v; want TagDelete, nil", tag, err)
	}
	if err := tag.UnmarshalText([]byte("swap")); !errors.Is(err, phonetic.ErrInvalidInput) {
		t.Errorf("UnmarshalText(swap): err = %v, want ErrInvalidInput", err)
	}
	if _, err := phonetic.Tag(0).MarshalText(); !errors.Is(err, phonetic.ErrInvalidInput) {
		t.Errorf("MarshalText(0): err = %v, want ErrInvalidInput", err)
	}
}

func TestAlignment_Mismatches(t *testing.T) {
	t.Parallel()

	a, err := phonetic.Align("abcd", "bcda")
	if err != nil {
		t.Fatal(err)
	}
	tm, rm := a.Mismatches()
	if tm != 1 || rm != 1 {
		t.Errorf("Mismatches() = (%d, %d), want (1, 1)", tm, rm)
	}
}
