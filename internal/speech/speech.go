// Package speech synthesizes narrator voice-overs for clips.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/services"
)

// MimeType is the content type of synthesized audio.
const MimeType = "audio/opus"

// Synthesizer renders text as opus audio.
type Synthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// TTS calls an OpenAI-compatible /audio/speech endpoint.
type TTS struct {
	URL          string
	APIKey       string
	Model        string
	Voice        string
	Instructions string
	HTTP         *http.Client

	log *logger.Logger
}

func NewTTS(url, apiKey, model, voice string, log *logger.Logger) *TTS {
	if log == nil {
		log = logger.Nop()
	}
	return &TTS{
		URL:          url,
		APIKey:       apiKey,
		Model:        model,
		Voice:        voice,
		Instructions: "Speak in a calm and soothing tone",
		HTTP:         &http.Client{Timeout: 60 * time.Second},
		log:          log.Component("speech"),
	}
}

func (t *TTS) Speak(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"model":           t.Model,
		"input":           text,
		"voice":           t.Voice,
		"instructions":    t.Instructions,
		"response_format": "opus",
	})
	if err != nil {
		return nil, err
	}

	var audio []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("tts server error %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("tts client error %d: %s", resp.StatusCode, string(data)))
		}
		if len(data) == 0 {
			return backoff.Permanent(fmt.Errorf("tts returned no audio"))
		}
		audio = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		t.log.WithError(err).Warn("speech synthesis failed")
		return nil, services.Provider("tts", "speak", err)
	}
	return audio, nil
}

// Mock returns fixed bytes for any text.
type Mock struct {
	Err error
}

func (m Mock) Speak(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return []byte("OggS mock voice-over: " + text), nil
}
