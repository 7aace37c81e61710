package transcription

import (
	"context"
	"io"
)

// Mock returns a fixed transcript without calling any provider.
type Mock struct {
	Result Result
	Err    error
}

// NewMock returns a Mock with a short two-speaker exchange and nine minutes of
// speech.
func NewMock() *Mock {
	return &Mock{Result: Result{
		ActiveSeconds: 540,
		Words: []Word{
			{Text: "So", Start: 0.4, End: 0.6, Speaker: "speaker_0"},
			{Text: "how", Start: 0.6, End: 0.8, Speaker: "speaker_0"},
			{Text: "was", Start: 0.8, End: 1.0, Speaker: "speaker_0"},
			{Text: "Kyoto?", Start: 1.0, End: 1.5, Speaker: "speaker_0"},
			{Text: "Honestly", Start: 2.1, End: 2.7, Speaker: "speaker_1"},
			{Text: "the", Start: 2.7, End: 2.8, Speaker: "speaker_1"},
			{Text: "best", Start: 2.8, End: 3.1, Speaker: "speaker_1"},
			{Text: "trip", Start: 3.1, End: 3.4, Speaker: "speaker_1"},
			{Text: "this", Start: 3.4, End: 3.6, Speaker: "speaker_1"},
			{Text: "year.", Start: 3.6, End: 4.0, Speaker: "speaker_1"},
		},
	}}
}

func (m *Mock) Transcribe(ctx context.Context, audio io.Reader, _, _ string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	_, _ = io.Copy(io.Discard, audio)
	if m.Err != nil {
		return Result{}, m.Err
	}
	return m.Result, nil
}
