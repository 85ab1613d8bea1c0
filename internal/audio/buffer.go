package audio

import (
	"time"

	"github.com/faiface/beep"
)

// resampleQuality is the beep interpolation quality used for sample-rate conversion
const resampleQuality = 4

// Buffer is an immutable decoded recording. Frames are stereo; mono sources are
// stored with both channels equal.
type Buffer struct {
	Source     string
	SampleRate int
	Channels   int
	Frames     [][2]float64
}

// Len returns the number of frames
func (b *Buffer) Len() int {
	return len(b.Frames)
}

// Duration returns the playing time
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Frames)) * time.Second / time.Duration(b.SampleRate)
}

// Mono returns the first channel
func (b *Buffer) Mono() []float64 {
	out := make([]float64, len(b.Frames))
	for i, f := range b.Frames {
		out[i] = f[0]
	}
	return out
}

// Format returns the beep format of the buffer at 16-bit precision
func (b *Buffer) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(b.SampleRate),
		NumChannels: 2,
		Precision:   2,
	}
}

// Streamer returns a fresh beep streamer over the frames
func (b *Buffer) Streamer() beep.Streamer {
	return &sliceStreamer{buf: b.Frames}
}

// Resample returns the buffer converted to rate. The receiver is returned
// unchanged when it is already at rate.
func (b *Buffer) Resample(rate int) *Buffer {
	if rate <= 0 || b.SampleRate <= 0 || rate == b.SampleRate {
		return b
	}
	s := beep.Resample(resampleQuality, beep.SampleRate(b.SampleRate), beep.SampleRate(rate), b.Streamer())
	expected := int(int64(len(b.Frames)) * int64(rate) / int64(b.SampleRate))
	frames := drain(s, expected)
	return &Buffer{
		Source:     b.Source,
		SampleRate: rate,
		Channels:   b.Channels,
		Frames:     frames,
	}
}

// drain reads a streamer to the end
func drain(s beep.Streamer, sizeHint int) [][2]float64 {
	out := make([][2]float64, 0, sizeHint)
	chunk := make([][2]float64, 1024)
	for {
		n, ok := s.Stream(chunk)
		out = append(out, chunk[:n]...)
		if !ok {
			return out
		}
	}
}

// sliceStreamer streams a slice of stereo frames
type sliceStreamer struct {
	buf [][2]float64
	pos int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	n = copy(samples, s.buf[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error {
	return nil
}

// EncodeS16LE converts stereo float frames to interleaved 16-bit little-endian
// PCM, clipping to [-1, 1]. dst is reused when large enough.
func EncodeS16LE(frames [][2]float64, dst []byte) []byte {
	need := len(frames) * 4
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	for i, f := range frames {
		for ch := 0; ch < 2; ch++ {
			v := f[ch]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			s := int16(v * 32767)
			dst[i*4+ch*2] = byte(s)
			dst[i*4+ch*2+1] = byte(s >> 8)
		}
	}
	return dst
}

// DecodeS16LE converts interleaved 16-bit little-endian PCM to float frames.
// Mono input is duplicated to both channels.
func DecodeS16LE(data []byte, channels int) [][2]float64 {
	if channels < 1 {
		channels = 1
	}
	frameBytes := channels * 2
	n := len(data) / frameBytes
	out := make([][2]float64, n)
	for i := 0; i < n; i++ {
		off := i * frameBytes
		left := float64(int16(data[off])|int16(data[off+1])<<8) / 32768.0
		right := left
		if channels > 1 {
			right = float64(int16(data[off+2])|int16(data[off+3])<<8) / 32768.0
		}
		out[i] = [2]float64{left, right}
	}
	return out
}
