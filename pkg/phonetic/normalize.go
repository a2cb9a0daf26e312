// Package phonetic implements the scoring core of phonocoach: text
// normalisation, alignment of two phonemic strings, and rendering of the
// per-symbol diff between them.
//
// Everything in this package is pure. [Normalize], [Align], [RenderDiff] and
// [Segments] never block, hold no state between calls, and are safe for
// concurrent use. Phonemic strings are compared rune by rune, so a symbol
// such as "ʊ" or "ɜ" counts as one position regardless of its UTF-8 width.
package phonetic

import (
	"strings"
	"unicode"
)

// Normalize lowercases text, removes every rune that is neither a word
// character (letter, number or underscore) nor whitespace, and trims leading
// and trailing whitespace.
//
// Normalize is total: any input, including the empty string and invalid
// UTF-8, yields a result. Invalid byte sequences are dropped. The function is
// idempotent, so Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	// Lowercasing first keeps the function idempotent: some runes lowercase
	// into a letter plus a combining mark, and the mark must be filtered in
	// the same pass.
	lowered := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if r == unicode.ReplacementChar {
			continue
		}
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// isWordRune reports whether r is a word character in the regular-expression
// sense: a letter, a number or the underscore.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
