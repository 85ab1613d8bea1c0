package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

var (
	// ErrDecode is returned when input bytes cannot be decoded as audio
	ErrDecode = errors.New("decode failed")
	// ErrUnsupportedFormat is returned for formats that neither beep nor ffmpeg can read
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Format is a container format the decoder recognizes
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatUnknown Format = ""
)

// Decoder turns audio bytes into Buffers. WAV and MP3 are decoded in-process;
// anything else goes through ffmpeg when it is installed.
type Decoder struct {
	ffmpegPath string
	sampleRate int // ffmpeg output rate
}

// NewDecoder creates a decoder. ffmpeg is optional.
func NewDecoder(sampleRate int) *Decoder {
	d := &Decoder{sampleRate: sampleRate}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		d.ffmpegPath = path
	}
	return d
}

// HasFFmpeg reports whether the ffmpeg fallback is available
func (d *Decoder) HasFFmpeg() bool {
	return d.ffmpegPath != ""
}

// DecodeFile reads and decodes a file on disk
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return d.Decode(ctx, path, MIMEForPath(path), data)
}

// Decode decodes an in-memory file. source names the file in errors and in the
// returned Buffer; mimeType is a hint, the content is sniffed first.
func (d *Decoder) Decode(ctx context.Context, source, mimeType string, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDecode, source)
	}

	format := Sniff(data)
	if format == FormatUnknown {
		format = formatFromMIME(mimeType)
	}

	var (
		s      beep.StreamSeekCloser
		bf     beep.Format
		err    error
		frames [][2]float64
	)
	switch format {
	case FormatWAV:
		s, bf, err = wav.Decode(bytes.NewReader(data))
	case FormatMP3:
		s, bf, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return d.decodeFFmpeg(ctx, source, data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, source, err)
	}
	defer s.Close()

	frames, err = drainContext(ctx, s, s.Len())
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s has no audio frames", ErrDecode, source)
	}

	return &Buffer{
		Source:     source,
		SampleRate: int(bf.SampleRate),
		Channels:   bf.NumChannels,
		Frames:     frames,
	}, nil
}

// drainContext reads a streamer to the end, checking ctx between chunks
func drainContext(ctx context.Context, s beep.Streamer, sizeHint int) ([][2]float64, error) {
	out := make([][2]float64, 0, max(sizeHint, 0))
	chunk := make([][2]float64, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, ok := s.Stream(chunk)
		out = append(out, chunk[:n]...)
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

// decodeFFmpeg pipes data through ffmpeg to stereo s16le at the decoder rate
func (d *Decoder) decodeFFmpeg(ctx context.Context, source string, data []byte) (*Buffer, error) {
	if d.ffmpegPath == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, source)
	}

	args := []string{
		"-v", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "2",
		"-ar", fmt.Sprintf("%d", d.sampleRate),
		"-",
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s: ffmpeg: %s", ErrDecode, source, msg)
	}

	frames := DecodeS16LE(stdout.Bytes(), 2)
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s has no audio frames", ErrDecode, source)
	}
	return &Buffer{
		Source:     source,
		SampleRate: d.sampleRate,
		Channels:   2,
		Frames:     frames,
	}, nil
}

// Sniff identifies WAV and MP3 content from its leading bytes
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

func formatFromMIME(mimeType string) Format {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return FormatWAV
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg-3":
		return FormatMP3
	}
	return FormatUnknown
}

// MIMEForPath guesses a MIME type from a file extension
func MIMEForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".opus":
		return "audio/opus"
	}
	return "application/octet-stream"
}
