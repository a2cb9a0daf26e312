package phonetic

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// Placeholder stands in for target symbols that are missing from the
// recognized string. A delete span renders as exactly one placeholder
// regardless of its length.
const Placeholder = "_"

// Marker decorates mismatched text for a particular output medium.
type Marker interface {
	// Wrap returns s decorated as a mismatch.
	Wrap(s string) string
}

// MarkerFunc adapts an ordinary function to the [Marker] interface.
type MarkerFunc func(s string) string

// Wrap calls f(s).
func (f MarkerFunc) Wrap(s string) string { return f(s) }

// Built-in markers.
var (
	// ANSIMarker renders mismatches in bold red for terminals.
	ANSIMarker Marker = MarkerFunc(func(s string) string { return "\x1b[1;31m" + s + "\x1b[0m" })

	// MarkdownMarker renders mismatches in bold.
	MarkdownMarker Marker = MarkerFunc(func(s string) string { return "**" + s + "**" })

	// HTMLMarker wraps mismatches in a span with class "mismatch". The text is
	// HTML-escaped.
	HTMLMarker Marker = MarkerFunc(func(s string) string {
		return `<span class="mismatch">` + html.EscapeString(s) + `</span>`
	})

	// BracketMarker wraps mismatches in square brackets.
	BracketMarker Marker = MarkerFunc(func(s string) string { return "[" + s + "]" })
)

// MarkerByName returns the built-in marker registered under name. Known names
// are "ansi", "markdown", "html" and "bracket". The empty name selects
// BracketMarker.
func MarkerByName(name string) (Marker, error) {
	switch strings.ToLower(name) {
	case "", "bracket":
		return BracketMarker, nil
	case "ansi":
		return ANSIMarker, nil
	case "markdown", "md":
		return MarkdownMarker, nil
	case "html":
		return HTMLMarker, nil
	}
	return nil, fmt.Errorf("%w: unknown marker %q", ErrInvalidInput, name)
}

// Segment is one rendered piece of the recognized string.
type Segment struct {
	// Text is the recognized substring, or [Placeholder] for deletions.
	Text string `json:"text"`

	// Mismatch is false only for equal spans.
	Mismatch bool `json:"mismatch"`

	// Placeholder is true when Text stands in for missing target symbols.
	Placeholder bool `json:"placeholder,omitempty"`

	// Tag is the opcode tag the segment was produced from.
	Tag Tag `json:"tag"`
}

// Segments walks ops over recognized and returns the rendered pieces in
// order, without decoration. Empty equal, replace and insert spans produce no
// segment; every delete span produces one placeholder segment.
//
// It fails with [ErrInvalidInput] when recognized is not valid UTF-8, when an
// opcode carries an unknown tag, or when a recognized range is inverted or
// falls outside recognized.
func Segments(recognized string, ops []Opcode) ([]Segment, error) {
	if err := validString("recognized", recognized); err != nil {
		return nil, err
	}
	rs := []rune(recognized)

	segs := make([]Segment, 0, len(ops))
	for i, op := range ops {
		if op.RecognizedStart < 0 || op.RecognizedEnd < op.RecognizedStart || op.RecognizedEnd > len(rs) {
			return nil, fmt.Errorf("%w: opcode %d: recognized range [%d:%d] outside [0:%d]",
				ErrInvalidInput, i, op.RecognizedStart, op.RecognizedEnd, len(rs))
		}
		switch op.Tag {
		case TagEqual, TagReplace, TagInsert:
			if op.RecognizedStart == op.RecognizedEnd {
				continue
			}
			segs = append(segs, Segment{
				Text:     string(rs[op.RecognizedStart:op.RecognizedEnd]),
				Mismatch: op.Tag != TagEqual,
				Tag:      op.Tag,
			})
		case TagDelete:
			segs = append(segs, Segment{
				Text:        Placeholder,
				Mismatch:    true,
				Placeholder: true,
				Tag:         TagDelete,
			})
		default:
			return nil, fmt.Errorf("%w: opcode %d: unknown tag %d", ErrInvalidInput, i, uint8(op.Tag))
		}
	}
	return segs, nil
}

// RenderDiff renders recognized according to ops. Equal spans are copied
// verbatim; replace and insert spans are wrapped with m; every delete span
// becomes a single wrapped [Placeholder]. A nil marker selects
// [BracketMarker].
//
// The output depends only on its arguments. Errors are those of [Segments].
func RenderDiff(recognized string, ops []Opcode, m Marker) (string, error) {
	segs, err := Segments(recognized, ops)
	if err != nil {
		return "", err
	}
	return Join(segs, m), nil
}

// Join concatenates segs, wrapping mismatched segments with m. A nil marker
// selects [BracketMarker].
func Join(segs []Segment, m Marker) string {
	if m == nil {
		m = BracketMarker
	}
	var b strings.Builder
	for _, s := range segs {
		if s.Mismatch {
			b.WriteString(m.Wrap(s.Text))
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

func validString(name, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidInput, name)
	}
	return nil
}
