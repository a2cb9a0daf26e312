package stt

import (
	"strings"
	"time"
)

// Transcript is the result of recognizing one attempt.
type Transcript struct {
	// Text is the recognized speech, as returned by the provider.
	Text string `json:"text"`

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// provider does not report confidence.
	Confidence float64 `json:"confidence,omitempty"`

	// Language is the language the provider recognized, when reported.
	Language string `json:"language,omitempty"`

	// Words contains per-word detail when available (Deepgram, OpenAI
	// verbose output). Nil for providers without word-level output.
	Words []WordDetail `json:"words,omitempty"`

	// Duration is the length of the recognized audio.
	Duration time.Duration `json:"duration,omitempty"`
}

// IsBlank reports whether t contains no recognized words.
func (t Transcript) IsBlank() bool {
	return strings.TrimSpace(t.Text) == ""
}

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string        `json:"word"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Confidence float64       `json:"confidence,omitempty"`
}
