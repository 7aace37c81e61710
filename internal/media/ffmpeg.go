// Package media wraps the ffmpeg binary for audio format conversion.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"oto-insights-go/internal/services"
)

// Format names an output container understood by Transcode.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatOpus Format = "opus"
)

// MimeType returns the content type stored alongside an asset of format f.
func (f Format) MimeType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatOpus:
		return "audio/opus"
	default:
		return "application/octet-stream"
	}
}

// FFmpeg runs conversions through stdin and stdout so no temp files are needed.
type FFmpeg struct {
	Binary string
}

// New returns an FFmpeg using binary, or "ffmpeg" from PATH when empty.
func New(binary string) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{Binary: binary}
}

// ToWAV converts any decodable audio to 16-bit PCM WAV, keeping the source
// sample rate and channel layout.
func (f *FFmpeg) ToWAV(ctx context.Context, src io.Reader) ([]byte, error) {
	return f.Transcode(ctx, src, FormatWAV)
}

// Transcode converts src to the given format.
func (f *FFmpeg) Transcode(ctx context.Context, src io.Reader, format Format) ([]byte, error) {
	args, err := outputArgs(format)
	if err != nil {
		return nil, err
	}
	args = append([]string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0"}, args...)
	args = append(args, "pipe:1")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Binary, args...)
	cmd.Stdin = src
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrProvider, "ffmpeg", "transcode "+string(format), strings.TrimSpace(stderr.String()), err)
	}
	if stdout.Len() == 0 {
		return nil, services.Wrap(services.ErrProvider, "ffmpeg", "transcode "+string(format), "empty output", nil)
	}
	return stdout.Bytes(), nil
}

func outputArgs(format Format) ([]string, error) {
	switch format {
	case FormatWAV:
		return []string{"-vn", "-acodec", "pcm_s16le", "-f", "wav"}, nil
	case FormatOpus:
		return []string{"-vn", "-c:a", "libopus", "-b:a", "48k", "-f", "ogg"}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}
