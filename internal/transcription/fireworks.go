package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/services"
)

type fireworksWord struct {
	Word      string  `json:"word"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	SpeakerID string  `json:"speaker_id"`
}

type fireworksSegment struct {
	ID        int     `json:"id"`
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	NoSpeech  bool    `json:"no_speech"`
	SpeakerID string  `json:"speaker_id"`
}

type fireworksResponse struct {
	Task     string             `json:"task"`
	Language string             `json:"language"`
	Text     string             `json:"text"`
	Words    []fireworksWord    `json:"words"`
	Segments []fireworksSegment `json:"segments"`
	Duration float64            `json:"duration"`
}

// Fireworks calls the Fireworks whisper endpoint with diarization enabled.
type Fireworks struct {
	URL    string
	APIKey string
	Client *http.Client
	// MaxElapsed bounds retries of one request.
	MaxElapsed time.Duration

	log *logger.Logger
}

// NewFireworks returns a Fireworks transcriber.
func NewFireworks(url, apiKey string, log *logger.Logger) *Fireworks {
	if log == nil {
		log = logger.Nop()
	}
	return &Fireworks{
		URL:        url,
		APIKey:     apiKey,
		Client:     httpClient,
		MaxElapsed: 2 * time.Minute,
		log:        log.Component("transcription").With("backend", "fireworks"),
	}
}

var fireworksFields = [][2]string{
	{"vad_model", "whisperx-pyannet"},
	{"alignment_model", "mms_fa"},
	{"preprocessing", "bass_dynamic"},
	{"temperature", "0.2"},
	{"timestamp_granularities", "word,segment"},
	{"audio_window_seconds", "5"},
	{"speculation_window_words", "4"},
	{"diarize", "true"},
	{"response_format", "verbose_json"},
}

func (f *Fireworks) Transcribe(ctx context.Context, audio io.Reader, name, mimeType string) (Result, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return Result{}, fmt.Errorf("read audio: %w", err)
	}
	if name == "" {
		name = "audio"
	}

	newReq := func() (*http.Request, error) {
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		part, err := w.CreateFormFile("file", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		for _, kv := range fireworksFields {
			if err := w.WriteField(kv[0], kv[1]); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, &b)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
		return req, nil
	}

	start := time.Now()
	var resp fireworksResponse
	if err := doJSON(ctx, f.Client, newReq, f.MaxElapsed, &resp); err != nil {
		f.log.WithError(err).Error("fireworks transcription failed")
		return Result{}, err
	}
	if len(resp.Words) == 0 && len(resp.Segments) == 0 && resp.Text != "" {
		return Result{}, services.Wrap(services.ErrProvider, "fireworks", "transcribe", "response has text but no timestamps", nil)
	}

	res := fireworksResult(resp)
	f.log.WithField("words", len(res.Words)).
		WithField("active_seconds", res.ActiveSeconds).
		WithField("elapsed", time.Since(start).String()).
		Info("transcription completed")
	return res, nil
}

func fireworksResult(resp fireworksResponse) Result {
	var res Result
	for _, s := range resp.Segments {
		if s.NoSpeech {
			continue
		}
		res.ActiveSeconds += s.End - s.Start
	}
	res.Words = make([]Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		res.Words = append(res.Words, Word{Text: w.Word, Start: w.Start, End: w.End, Speaker: w.SpeakerID})
	}
	return res
}
