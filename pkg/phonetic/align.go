package phonetic

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// ErrInvalidInput is returned when an argument to a core function is not a
// usable phonemic string or opcode list. It is never retried.
var ErrInvalidInput = errors.New("phonetic: invalid input")

// Tag identifies how a span of the target relates to a span of the
// recognized string.
type Tag uint8

const (
	// TagEqual marks spans that are identical on both sides.
	TagEqual Tag = iota + 1

	// TagReplace marks a target span that was pronounced as different symbols.
	TagReplace

	// TagDelete marks target symbols that are missing from the recognized string.
	TagDelete

	// TagInsert marks recognized symbols that have no counterpart in the target.
	TagInsert
)

// String returns the lower-case tag name used in JSON payloads and logs.
func (t Tag) String() string {
	switch t {
	case TagEqual:
		return "equal"
	case TagReplace:
		return "replace"
	case TagDelete:
		return "delete"
	case TagInsert:
		return "insert"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (t Tag) MarshalText() ([]byte, error) {
	switch t {
	case TagEqual, TagReplace, TagDelete, TagInsert:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("%w: unknown tag %d", ErrInvalidInput, uint8(t))
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (t *Tag) UnmarshalText(b []byte) error {
	switch string(b) {
	case "equal":
		*t = TagEqual
	case "replace":
		*t = TagReplace
	case "delete":
		*t = TagDelete
	case "insert":
		*t = TagInsert
	default:
		return fmt.Errorf("%w: unknown tag %q", ErrInvalidInput, string(b))
	}
	return nil
}

// Opcode describes one step of an alignment. Ranges are half-open rune
// indices: target[TargetStart:TargetEnd] corresponds to
// recognized[RecognizedStart:RecognizedEnd].
type Opcode struct {
	Tag             Tag `json:"tag"`
	TargetStart     int `json:"target_start"`
	TargetEnd       int `json:"target_end"`
	RecognizedStart int `json:"recognized_start"`
	RecognizedEnd   int `json:"recognized_end"`
}

// Alignment is the result of comparing a target phonemic string with a
// recognized one.
type Alignment struct {
	// Ratio is 2*M/T where M is the number of matched symbols and T the total
	// number of symbols in both strings. It is 1.0 when both are empty.
	Ratio float64 `json:"ratio"`

	// Score is Ratio scaled to [0, 100] and truncated.
	Score int `json:"score"`

	// Opcodes partition both strings, in order. Empty when both inputs are.
	Opcodes []Opcode `json:"opcodes"`
}

// Align compares target and recognized symbol by symbol and returns the
// similarity ratio, the derived score and the opcode list that turns target
// into recognized.
//
// Matching follows the Ratcliff/Obershelp scheme: the longest common
// contiguous run is matched first and the gaps on either side are matched
// recursively. Frequent symbols are never discarded as junk, which keeps
// results stable for long transcriptions dominated by a few vowels.
//
// The greedy scheme can find more matches in one direction than the other,
// so both directions are tried and the one with more matched symbols wins,
// with ties going to target→recognized. Ratio and Score are therefore the
// same for Align(a, b) and Align(b, a).
//
// Align fails with [ErrInvalidInput] if either string is not valid UTF-8.
func Align(target, recognized string) (Alignment, error) {
	if err := validString("target", target); err != nil {
		return Alignment{}, err
	}
	if err := validString("recognized", recognized); err != nil {
		return Alignment{}, err
	}

	a, b := symbols(target), symbols(recognized)
	forward := difflib.NewMatcherWithJunk(a, b, false, nil)
	ratio := forward.Ratio()
	raw, transposed := forward.GetOpCodes(), false
	if reverse := difflib.NewMatcherWithJunk(b, a, false, nil); reverse.Ratio() > ratio {
		ratio = reverse.Ratio()
		raw, transposed = reverse.GetOpCodes(), true
	}

	ops := make([]Opcode, 0, len(raw))
	for _, op := range raw {
		o := Opcode{
			Tag:             tagOf(op.Tag),
			TargetStart:     op.I1,
			TargetEnd:       op.I2,
			RecognizedStart: op.J1,
			RecognizedEnd:   op.J2,
		}
		if transposed {
			o = o.transpose()
		}
		ops = append(ops, o)
	}

	return Alignment{
		Ratio:   ratio,
		Score:   ScoreOf(ratio),
		Opcodes: ops,
	}, nil
}

// transpose swaps the sides of an opcode computed recognized→target.
func (o Opcode) transpose() Opcode {
	tag := o.Tag
	switch tag {
	case TagDelete:
		tag = TagInsert
	case TagInsert:
		tag = TagDelete
	}
	return Opcode{
		Tag:             tag,
		TargetStart:     o.RecognizedStart,
		TargetEnd:       o.RecognizedEnd,
		RecognizedStart: o.TargetStart,
		RecognizedEnd:   o.TargetEnd,
	}
}

// ScoreOf converts a similarity ratio to an integer score in [0, 100] by
// truncation. Ratios outside [0, 1] are clamped.
func ScoreOf(ratio float64) int {
	switch {
	case ratio <= 0:
		return 0
	case ratio >= 1:
		return 100
	}
	return int(ratio * 100)
}

// Mismatches reports how many target and recognized symbols fall outside
// equal spans.
func (a Alignment) Mismatches() (target, recognized int) {
	for _, op := range a.Opcodes {
		if op.Tag == TagEqual {
			continue
		}
		target += op.TargetEnd - op.TargetStart
		recognized += op.RecognizedEnd - op.RecognizedStart
	}
	return target, recognized
}

// symbols splits s into one element per rune.
func symbols(s string) []string {
	out := make([]string, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func tagOf(b byte) Tag {
	switch b {
	case 'r':
		return TagReplace
	case 'd':
		return TagDelete
	case 'i':
		return TagInsert
	default:
		return TagEqual
	}
}
