package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"oto-insights-go/internal/services"
)

// Long recordings take minutes to transcribe.
var httpClient = &http.Client{Timeout: 10 * time.Minute}

// doJSON sends the request built by newReq and decodes a JSON body into target.
// Transport failures, 429 and 5xx are retried; other statuses are permanent.
// newReq is called once per attempt so request bodies can be replayed. Waits
// between attempts end early when ctx is cancelled.
func doJSON(ctx context.Context, client *http.Client, newReq func() (*http.Request, error), maxElapsed time.Duration, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	op := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(body))
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body)))
		}
		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(fmt.Errorf("json decode error: %w body=%s", err, truncate(body)))
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return services.Provider("transcription", "request", err)
	}
	return nil
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
