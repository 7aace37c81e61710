// Package clip cuts conversation audio into short clips from caption timecodes.
package clip

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"oto-insights-go/internal/timecode"
	"oto-insights-go/internal/types"
)

// Padding is the pre- and post-roll added around each caption, in seconds.
const Padding = 1.0

// Normalizer converts arbitrary source audio to PCM WAV.
type Normalizer interface {
	ToWAV(ctx context.Context, src io.Reader) ([]byte, error)
}

// Constructor extracts padded caption ranges from source audio.
type Constructor struct {
	norm Normalizer
}

// NewConstructor returns a Constructor. norm may be nil when every source is
// already WAV.
func NewConstructor(norm Normalizer) *Constructor {
	return &Constructor{norm: norm}
}

// Load reads src and decodes it, normalising non-WAV input first.
func (c *Constructor) Load(ctx context.Context, src io.Reader) (*PCM, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read source audio: %w", err)
	}
	if !IsWAV(data) {
		if c.norm == nil {
			return nil, fmt.Errorf("source audio is not wav and no normalizer is configured")
		}
		data, err = c.norm.ToWAV(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("normalize source audio: %w", err)
		}
	}
	return DecodeWAV(data)
}

// PaddedSpans returns the source ranges a candidate's captions select, with
// pre- and post-roll applied. A roll is skipped when the padded point already
// lies inside a previously recorded range, and every span is clamped to
// [0, duration].
func PaddedSpans(captions []types.ClipCaption, duration float64) ([]Span, error) {
	var ranges Ranges
	for _, c := range captions {
		start, err := timecode.Parse(c.TimecodeStart)
		if err != nil {
			return nil, err
		}
		if !ranges.Contains(start - Padding) {
			start -= Padding
		}
		if start < 0 {
			start = 0
		}

		end, err := timecode.Parse(c.TimecodeEnd)
		if err != nil {
			return nil, err
		}
		if !ranges.Contains(end + Padding) {
			end += Padding
		}
		if end > duration {
			end = duration
		}

		ranges.Add(start, end)
	}
	return ranges, nil
}

// Construct builds the audio of every candidate from one decoding of src.
// The returned candidates are copies carrying WAV audio; their captions keep
// the source timeline.
func (c *Constructor) Construct(ctx context.Context, src io.Reader, candidates []types.Candidate) ([]types.Candidate, error) {
	pcm, err := c.Load(ctx, src)
	if err != nil {
		return nil, err
	}

	out := make([]types.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spans, err := PaddedSpans(cand.Captions, pcm.Duration())
		if err != nil {
			return nil, fmt.Errorf("construct %q: %w", cand.Title, err)
		}
		clip := pcm.empty()
		for _, s := range spans {
			clip.Data = append(clip.Data, pcm.Slice(s.Start, s.End)...)
		}
		wav, err := EncodeWAV(clip)
		if err != nil {
			return nil, fmt.Errorf("construct %q: %w", cand.Title, err)
		}
		cand.Audio = wav
		out = append(out, cand)
	}
	return out, nil
}

// ConstructWithCaptions concatenates the caption ranges of a clip exactly,
// without padding, and rewrites each caption onto the new clip's timeline.
// The input slice is not modified. No captions yields a WAV with no samples.
func (c *Constructor) ConstructWithCaptions(ctx context.Context, src io.Reader, captions []types.ClipCaption) ([]byte, []types.ClipCaption, error) {
	pcm, err := c.Load(ctx, src)
	if err != nil {
		return nil, nil, err
	}

	clip := pcm.empty()
	rebased := make([]types.ClipCaption, 0, len(captions))
	for _, cc := range captions {
		start, err := timecode.Parse(cc.TimecodeStart)
		if err != nil {
			return nil, nil, err
		}
		end, err := timecode.Parse(cc.TimecodeEnd)
		if err != nil {
			return nil, nil, err
		}

		newStart := clip.Duration()
		clip.Data = append(clip.Data, pcm.Slice(start, end)...)
		newEnd := clip.Duration()

		cc.TimecodeStart = timecode.Format(newStart)
		cc.TimecodeEnd = timecode.Format(newEnd)
		rebased = append(rebased, cc)
	}

	wav, err := EncodeWAV(clip)
	if err != nil {
		return nil, nil, err
	}
	return wav, rebased, nil
}
