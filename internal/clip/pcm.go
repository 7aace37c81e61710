package clip

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCM is decoded, interleaved integer audio.
type PCM struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Data       []int
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Data) / p.Channels
}

// Duration returns the length in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// frame converts an offset in seconds to a frame index clamped to the buffer.
func (p *PCM) frame(seconds float64) int {
	f := int(math.Round(seconds * float64(p.SampleRate)))
	if f < 0 {
		return 0
	}
	if n := p.Frames(); f > n {
		return n
	}
	return f
}

// Slice returns the samples of [start, end).
func (p *PCM) Slice(start, end float64) []int {
	from, to := p.frame(start), p.frame(end)
	if to <= from {
		return nil
	}
	return p.Data[from*p.Channels : to*p.Channels]
}

// empty returns a buffer with the same format and no samples.
func (p *PCM) empty() *PCM {
	return &PCM{SampleRate: p.SampleRate, Channels: p.Channels, BitDepth: p.BitDepth}
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// DecodeWAV decodes a PCM WAV file.
func DecodeWAV(data []byte) (*PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decode wav: invalid file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(dec.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	return &PCM{
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   int(dec.BitDepth),
		Data:       buf.Data,
	}, nil
}

// EncodeWAV encodes p as a PCM WAV file. The encoder needs a seekable writer,
// so the file is staged in the temp dir.
func EncodeWAV(p *PCM) ([]byte, error) {
	f, err := os.CreateTemp("", "oto-clip-*.wav")
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	enc := wav.NewEncoder(f, p.SampleRate, p.BitDepth, p.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		Data:           p.Data,
		SourceBitDepth: p.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return io.ReadAll(f)
}
