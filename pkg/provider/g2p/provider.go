// Package g2p defines the Provider interface for grapheme-to-phoneme
// converters.
//
// A converter turns normalized text (lowercase words separated by single
// spaces) into a phonemic string: one IPA transcription per input word,
// joined by single spaces. The phonemic string is what the alignment engine
// compares symbol by symbol, so target and attempt must always go through the
// same converter.
//
// Implementations must be safe for concurrent use.
package g2p

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider is the abstraction over any grapheme-to-phoneme backend.
type Provider interface {
	// ToPhonemic converts text to its phonemic representation. Empty input
	// yields an empty string and no error.
	//
	// Words the converter cannot transcribe are reported with a
	// [*UnsupportedTextError]; backend failures with a [*ConversionError].
	ToPhonemic(ctx context.Context, text string) (string, error)
}

// ErrUnsupportedText is the cause wrapped by every [UnsupportedTextError].
var ErrUnsupportedText = errors.New("g2p: unsupported text")

// UnsupportedTextError lists input words the converter has no
// transcription for.
type UnsupportedTextError struct {
	// Provider is the short name of the converter (e.g. "cmudict").
	Provider string

	// Words are the offending words in input order, without duplicates.
	Words []string
}

// Error implements error.
func (e *UnsupportedTextError) Error() string {
	return fmt.Sprintf("g2p: %s: no pronunciation for %s", e.Provider, strings.Join(quoteAll(e.Words), ", "))
}

// Unwrap returns [ErrUnsupportedText].
func (e *UnsupportedTextError) Unwrap() error { return ErrUnsupportedText }

// ConversionError reports that the converter backend itself failed.
type ConversionError struct {
	Provider string
	Err      error
}

// Error implements error.
func (e *ConversionError) Error() string {
	return fmt.Sprintf("g2p: %s: conversion failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConversionError) Unwrap() error { return e.Err }

// Fail wraps err as a [*ConversionError] attributed to provider. Errors that
// already are an UnsupportedTextError or ConversionError pass through
// unchanged, and a nil err yields nil.
func Fail(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnsupportedTextError
	var ce *ConversionError
	if errors.As(err, &ue) || errors.As(err, &ce) {
		return err
	}
	return &ConversionError{Provider: provider, Err: err}
}

// Words splits text into lowercase words on whitespace.
func Words(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Unsupported collects unknown words without duplicates.
type Unsupported struct {
	seen  map[string]struct{}
	words []string
}

// Add records w.
func (u *Unsupported) Add(w string) {
	if u.seen == nil {
		u.seen = make(map[string]struct{})
	}
	if _, ok := u.seen[w]; ok {
		return
	}
	u.seen[w] = struct{}{}
	u.words = append(u.words, w)
}

// Err returns an [*UnsupportedTextError] for the collected words, or nil.
func (u *Unsupported) Err(provider string) error {
	if len(u.words) == 0 {
		return nil
	}
	return &UnsupportedTextError{Provider: provider, Words: u.words}
}

func quoteAll(ws []string) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = fmt.Sprintf("%q", w)
	}
	return out
}
