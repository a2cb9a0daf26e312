package audio

import (
	"encoding/binary"
	"math"
)

// ForRecognizer returns c down-mixed to mono and resampled to
// [RecognizerSampleRate]. A clip already in that format is returned
// unchanged. Down-mixing happens first so only one channel is resampled.
func ForRecognizer(c Clip) Clip {
	return Convert(c, RecognizerSampleRate, 1)
}

// Convert returns c at the given sample rate and channel count. Only mono and
// stereo targets are supported; any source channel count is accepted.
func Convert(c Clip, sampleRate, channels int) Clip {
	if c.SampleRate == sampleRate && c.Channels == channels {
		return c
	}
	pcm := c.PCM[:len(c.PCM)&^1]

	if c.Channels > 1 {
		pcm = DownmixToMono(pcm, c.Channels)
	}
	if c.SampleRate != sampleRate {
		pcm = ResampleMono16(pcm, c.SampleRate, sampleRate)
	}
	if channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return Clip{PCM: pcm, SampleRate: sampleRate, Channels: channels}
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// DownmixToMono averages all channels of each interleaved frame. Trailing
// bytes that do not form a complete frame are dropped.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameSize := 2 * channels
	frames := len(pcm) / frameSize
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(sampleAt(pcm, i*channels+ch))
		}
		putSample(out, i, int16(sum/int32(channels)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, or either rate is invalid, the input
// is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sampleAt(pcm, idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sampleAt(pcm, idx+1)
		}
		putSample(out, i, int16(float64(s0)*(1-frac)+float64(s1)*frac))
	}
	return out
}

// Float32Mono converts 16-bit PCM with the given channel count to mono
// float32 samples in [-1.0, 1.0], averaging channels per frame. This is the
// input format of in-process whisper models.
func Float32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(sampleAt(pcm, i*channels+ch)) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// RMS returns the root-mean-square energy of 16-bit PCM in sample units
// (0–32767). It is 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(sampleAt(pcm, i))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}
