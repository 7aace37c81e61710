// Package enhance cleans up clip audio before publishing.
package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/media"
	"oto-insights-go/internal/services"
)

// Enhancer fetches audio from a signed URL and returns it enhanced in format.
type Enhancer interface {
	Enhance(ctx context.Context, url string, format media.Format) ([]byte, error)
}

// Transcoder converts audio between formats.
type Transcoder interface {
	Transcode(ctx context.Context, src io.Reader, format media.Format) ([]byte, error)
}

// Sieve runs the audio enhancement function on the Sieve job API and
// transcodes its output.
type Sieve struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	JobTimeout   time.Duration
	HTTP         *http.Client

	transcoder Transcoder
	log        *logger.Logger
}

func NewSieve(baseURL, apiKey string, transcoder Transcoder, log *logger.Logger) *Sieve {
	if log == nil {
		log = logger.Nop()
	}
	return &Sieve{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		PollInterval: 3 * time.Second,
		JobTimeout:   2 * time.Minute,
		HTTP:         &http.Client{Timeout: 60 * time.Second},
		transcoder:   transcoder,
		log:          log.Component("enhance"),
	}
}

type sieveJob struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Outputs []struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"outputs"`
}

var errPending = errors.New("job pending")

func (s *Sieve) Enhance(ctx context.Context, url string, format media.Format) ([]byte, error) {
	id, err := s.push(ctx, url)
	if err != nil {
		return nil, services.Provider("sieve", "push", err)
	}
	log := s.log.With("job_id", id)
	log.Info("enhancement job submitted")

	jobCtx, cancel := context.WithTimeout(ctx, s.JobTimeout)
	defer cancel()

	var output string
	poll := func() error {
		var job sieveJob
		if err := s.do(jobCtx, http.MethodGet, s.BaseURL+"/jobs/"+id, nil, &job); err != nil {
			return err
		}
		switch job.Status {
		case "queued", "started", "processing":
			return errPending
		case "error":
			return backoff.Permanent(fmt.Errorf("job %s failed: %s", id, job.Error))
		case "finished":
			if len(job.Outputs) == 0 || job.Outputs[0].Data.URL == "" {
				return backoff.Permanent(fmt.Errorf("job %s finished without output", id))
			}
			output = job.Outputs[0].Data.URL
			return nil
		default:
			return backoff.Permanent(fmt.Errorf("job %s has unknown status %q", id, job.Status))
		}
	}
	if err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(s.PollInterval), jobCtx)); err != nil {
		if errors.Is(err, errPending) || errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrProvider, "sieve", "poll", "job "+id+" timed out", nil)
		}
		return nil, services.Provider("sieve", "poll", err)
	}

	enhanced, err := s.download(ctx, output)
	if err != nil {
		return nil, services.Provider("sieve", "download", err)
	}
	log.Info("enhancement job finished")
	return s.transcoder.Transcode(ctx, bytes.NewReader(enhanced), format)
}

func (s *Sieve) push(ctx context.Context, url string) (string, error) {
	payload := map[string]any{
		"function": "sieve/audio_enhancement",
		"inputs": map[string]any{
			"audio":             map[string]string{"url": url},
			"filter_type":       "all",
			"enhancement_steps": 64,
		},
	}
	var job sieveJob
	if err := s.do(ctx, http.MethodPost, s.BaseURL+"/push", payload, &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("push returned no job id")
	}
	return job.ID, nil
}

func (s *Sieve) do(ctx context.Context, method, url string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("X-API-Key", s.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("sieve server error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("sieve client error %d: %s", resp.StatusCode, string(raw)))
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return backoff.Permanent(fmt.Errorf("decode sieve response: %w", err))
	}
	return nil
}

func (s *Sieve) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Opener resolves a signed URL issued by this service's object storage.
type Opener interface {
	OpenSigned(ctx context.Context, url string) (io.ReadCloser, error)
}

// Passthrough skips enhancement and only transcodes. It is used when no
// enhancement key is configured.
type Passthrough struct {
	opener     Opener
	transcoder Transcoder
}

func NewPassthrough(opener Opener, transcoder Transcoder) *Passthrough {
	return &Passthrough{opener: opener, transcoder: transcoder}
}

func (p *Passthrough) Enhance(ctx context.Context, url string, format media.Format) ([]byte, error) {
	rc, err := p.opener.OpenSigned(ctx, url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return p.transcoder.Transcode(ctx, rc, format)
}
