package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE

	// maxWAVSize caps decoded uploads; ten minutes of 48 kHz stereo fits.
	maxWAVSize = 128 << 20
)

// ErrInvalidWAV is returned when a byte stream is not a RIFF/WAVE container
// this package can decode.
var ErrInvalidWAV = errors.New("audio: invalid WAV")

// EncodeWAV wraps c in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(c Clip) []byte {
	const bps = 16
	byteRate := c.SampleRate * c.Channels * bps / 8
	blockAlign := c.Channels * bps / 8
	dataSize := len(c.PCM)

	buf := make([]byte, 44+dataSize)
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], wavFormatPCM)
	le.PutUint16(buf[22:24], uint16(c.Channels))
	le.PutUint32(buf[24:28], uint32(c.SampleRate))
	le.PutUint32(buf[28:32], uint32(byteRate))
	le.PutUint16(buf[32:34], uint16(blockAlign))
	le.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], c.PCM)

	return buf
}

// ReadWAV reads a complete WAV file from r and decodes it with [DecodeWAV].
func ReadWAV(r io.Reader) (Clip, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxWAVSize+1))
	if err != nil {
		return Clip{}, fmt.Errorf("audio: read wav: %w", err)
	}
	if len(data) > maxWAVSize {
		return Clip{}, fmt.Errorf("%w: larger than %d bytes", ErrInvalidWAV, maxWAVSize)
	}
	return DecodeWAV(data)
}

// wavFormat is the subset of the "fmt " chunk needed for decoding.
type wavFormat struct {
	tag           uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// DecodeWAV parses a RIFF/WAVE container and returns its samples as 16-bit
// PCM. Integer PCM of 8, 16, 24 and 32 bits and 32-bit IEEE float are
// accepted; everything else fails with [ErrInvalidWAV].
//
// Chunks are walked rather than assuming a fixed 44-byte header, since
// encoders frequently insert LIST or fact chunks before the data.
func DecodeWAV(wav []byte) (Clip, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		f        wavFormat
		foundFmt bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return Clip{}, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidWAV)
			}
			fd := wav[body:]
			f = wavFormat{
				tag:           binary.LittleEndian.Uint16(fd[0:2]),
				channels:      int(binary.LittleEndian.Uint16(fd[2:4])),
				sampleRate:    int(binary.LittleEndian.Uint32(fd[4:8])),
				bitsPerSample: int(binary.LittleEndian.Uint16(fd[14:16])),
			}
			// WAVE_FORMAT_EXTENSIBLE carries the real format in the first two
			// bytes of the sub-format GUID.
			if f.tag == wavFormatExtensible && size >= 40 && body+26 <= len(wav) {
				f.tag = binary.LittleEndian.Uint16(fd[24:26])
			}
			foundFmt = true

		case "data":
			if !foundFmt {
				return Clip{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			end := body + size
			// Streaming encoders write 0 or 0xFFFFFFFF when the length is unknown.
			if end > len(wav) || size == 0 {
				end = len(wav)
			}
			return decodeSamples(f, wav[body:end])
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return Clip{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}

func decodeSamples(f wavFormat, data []byte) (Clip, error) {
	if f.channels <= 0 || f.sampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, f.channels, f.sampleRate)
	}
	c := Clip{SampleRate: f.sampleRate, Channels: f.channels}

	switch {
	case f.tag == wavFormatPCM && f.bitsPerSample == 16:
		c.PCM = data[:len(data)&^1]

	case f.tag == wavFormatPCM && f.bitsPerSample == 8:
		// 8-bit WAV is unsigned with a bias of 128.
		c.PCM = make([]byte, len(data)*2)
		for i, b := range data {
			putSample(c.PCM, i, int16((int(b)-128)<<8))
		}

	case f.tag == wavFormatPCM && (f.bitsPerSample == 24 || f.bitsPerSample == 32):
		width := f.bitsPerSample / 8
		n := len(data) / width
		c.PCM = make([]byte, n*2)
		for i := range n {
			// Keep the two most significant bytes.
			s := data[i*width+width-2 : i*width+width]
			c.PCM[i*2] = s[0]
			c.PCM[i*2+1] = s[1]
		}

	case f.tag == wavFormatFloat && f.bitsPerSample == 32:
		n := len(data) / 4
		c.PCM = make([]byte, n*2)
		for i := range n {
			v := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			putSample(c.PCM, i, floatToInt16(v))
		}

	default:
		return Clip{}, fmt.Errorf("%w: unsupported encoding (format %d, %d bits)", ErrInvalidWAV, f.tag, f.bitsPerSample)
	}
	return c, nil
}

func putSample(pcm []byte, i int, s int16) {
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
}

func floatToInt16(v float32) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	}
	return int16(v * 32767)
}
