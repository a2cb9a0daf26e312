// Package audio holds the PCM clip type exchanged between recognizers,
// synthesizers and the HTTP surface, plus WAV encoding and the sample-format
// conversions needed to feed speech recognizers.
//
// All PCM in this package is signed 16-bit little-endian, interleaved when
// there is more than one channel.
package audio

import "time"

// RecognizerSampleRate is the sample rate speech recognizers expect. Attempts
// are normalised to mono at this rate before transcription.
const RecognizerSampleRate = 16000

// Clip is a complete, finite piece of audio: a recorded attempt or a
// synthesized reference.
type Clip struct {
	// PCM holds signed 16-bit little-endian samples.
	PCM []byte

	// SampleRate in Hz (e.g. 16000 for recognizers, 22050 for Coqui output).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int
}

// IsEmpty reports whether c carries no samples.
func (c Clip) IsEmpty() bool {
	return len(c.PCM) < 2
}

// Duration returns the playback length of c. It is zero for clips with an
// invalid format.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
