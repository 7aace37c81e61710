// Package extractor produces conversation analysis through an
// OpenAI-compatible chat completion gateway.
package extractor

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

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat completion call. Task names the analysis being produced
// and is used for logging and by the mock gateway.
type Request struct {
	Task        string
	Messages    []Message
	Temperature float64
	// JSON asks the gateway for a single JSON object.
	JSON bool
}

// Completer returns the assistant message for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client talks to a chat completions endpoint.
type Client struct {
	URL    string
	APIKey string
	Model  string
	HTTP   *http.Client
	// MaxElapsed bounds retries of one completion.
	MaxElapsed time.Duration

	log *logger.Logger
}

// NewClient returns a gateway client.
func NewClient(url, apiKey, model string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		URL:        url,
		APIKey:     apiKey,
		Model:      model,
		HTTP:       &http.Client{Timeout: 3 * time.Minute},
		MaxElapsed: 45 * time.Second,
		log:        log.Component("llm"),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// Complete sends the request with retry. Client errors other than 429 are
// not retried.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       c.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	log := c.log.With("task", req.Task)
	var content string

	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		log.WithField("http_status", resp.StatusCode).Debug("llm raw response received")

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("llm server error %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("llm client error %d: %s", resp.StatusCode, string(raw)))
		}

		text, ok := contentFromChoices(raw)
		if !ok {
			return backoff.Permanent(fmt.Errorf("no choices in llm response"))
		}
		content = text
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.MaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", services.Provider("llm", req.Task, err)
	}
	return content, nil
}

// contentFromChoices reads choices[0].message.content.
func contentFromChoices(body []byte) (string, bool) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return "", false
	}
	return parsed.Choices[0].Message.Content, true
}
