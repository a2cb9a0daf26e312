package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/phonocoach/pkg/audio"
)

// ErrNoSpeech is returned by [Trim] when no frame of the clip is speech.
var ErrNoSpeech = errors.New("vad: no speech detected")

// Trim runs clip through a fresh session of e and returns the span from the
// first speech frame to the last, widened by pad on both sides. clip must be
// mono; cfg.SampleRate is taken from it. A trailing partial frame is kept
// when speech is still in progress at the end of the clip.
func Trim(e Engine, clip audio.Clip, cfg Config, pad time.Duration) (audio.Clip, error) {
	if clip.Channels != 1 {
		return audio.Clip{}, fmt.Errorf("vad: trim needs mono audio, got %d channels", clip.Channels)
	}
	cfg.SampleRate = clip.SampleRate
	if err := cfg.Validate(); err != nil {
		return audio.Clip{}, err
	}
	sess, err := e.NewSession(cfg)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("vad: new session: %w", err)
	}
	defer sess.Close()

	n := cfg.FrameBytes()
	first, last := -1, -1
	speaking := false
	for off := 0; off+n <= len(clip.PCM); off += n {
		ev, err := sess.ProcessFrame(clip.PCM[off : off+n])
		if err != nil {
			return audio.Clip{}, fmt.Errorf("vad: frame at byte %d: %w", off, err)
		}
		switch ev.Type {
		case SpeechStart, SpeechContinue:
			if first < 0 {
				first = off
			}
			last = off + n
			speaking = true
		default:
			speaking = false
		}
	}
	if first < 0 {
		return audio.Clip{}, ErrNoSpeech
	}
	if speaking {
		last = len(clip.PCM)
	}

	padBytes := int(int64(pad)*int64(clip.SampleRate)/int64(time.Second)) * 2
	out := clip
	out.PCM = clip.PCM[max(0, first-padBytes):min(len(clip.PCM), last+padBytes)]
	return out, nil
}
