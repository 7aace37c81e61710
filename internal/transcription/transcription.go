// Package transcription turns conversation audio into word-level captions.
package transcription

import (
	"context"
	"io"
	"strings"

	"oto-insights-go/internal/timecode"
	"oto-insights-go/internal/types"
)

// Transcriber converts audio into a timed, speaker-labelled transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, name, mimeType string) (Result, error)
}

// Word is one recognised word on the source timeline, in seconds.
type Word struct {
	Text    string
	Start   float64
	End     float64
	Speaker string
}

// Result is a provider-independent transcription.
type Result struct {
	Words []Word
	// ActiveSeconds is the summed length of segments that contain speech.
	ActiveSeconds float64
}

// Captions renders one caption per recognised word.
func (r Result) Captions() []types.Caption {
	captions := make([]types.Caption, 0, len(r.Words))
	for _, w := range r.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		captions = append(captions, types.Caption{
			Timecode: timecode.FormatRange(w.Start, w.End),
			Speaker:  w.Speaker,
			Caption:  text,
		})
	}
	return captions
}
