package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"oto-insights-go/internal/media"
	"oto-insights-go/internal/services"
)

type upper struct{}

func (upper) Transcode(_ context.Context, src io.Reader, format media.Format) ([]byte, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return []byte(string(format) + ":" + strings.ToUpper(string(data))), nil
}

func TestSieveEnhance(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /push", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "key" {
			t.Errorf("missing api key")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["function"] != "sieve/audio_enhancement" {
			t.Errorf("unexpected function %v", body["function"])
		}
		_, _ = io.WriteString(w, `{"id": "job-1", "status": "queued"}`)
	})
	mux.HandleFunc("GET /jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			_, _ = io.WriteString(w, `{"id": "job-1", "status": "processing"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id": "job-1", "status": "finished", "outputs": [{"data": {"url": "`+srv.URL+`/out.wav"}}]}`)
	})
	mux.HandleFunc("GET /out.wav", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "enhanced")
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	s := NewSieve(srv.URL, "key", upper{}, nil)
	s.PollInterval = 10 * time.Millisecond
	out, err := s.Enhance(context.Background(), "https://files/clip.wav", media.FormatOpus)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if string(out) != "opus:ENHANCED" {
		t.Fatalf("unexpected output %q", out)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", polls.Load())
	}
}

func TestSieveJobError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /push", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "job-2"}`)
	})
	mux.HandleFunc("GET /jobs/job-2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "job-2", "status": "error", "error": "bad audio"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSieve(srv.URL, "key", upper{}, nil)
	s.PollInterval = time.Millisecond
	_, err := s.Enhance(context.Background(), "u", media.FormatOpus)
	if !errors.Is(err, services.ErrProvider) || !strings.Contains(err.Error(), "bad audio") {
		t.Fatalf("expected provider error with job message, got %v", err)
	}
}

func TestSieveJobTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /push", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "job-3"}`)
	})
	mux.HandleFunc("GET /jobs/job-3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "job-3", "status": "started"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSieve(srv.URL, "key", upper{}, nil)
	s.PollInterval = time.Millisecond
	s.JobTimeout = 50 * time.Millisecond
	_, err := s.Enhance(context.Background(), "u", media.FormatOpus)
	if !errors.Is(err, services.ErrProvider) || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout provider error, got %v", err)
	}
}

type opener map[string]string

func (o opener) OpenSigned(_ context.Context, url string) (io.ReadCloser, error) {
	body, ok := o[url]
	if !ok {
		return nil, services.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestPassthrough(t *testing.T) {
	p := NewPassthrough(opener{"signed": "raw"}, upper{})
	out, err := p.Enhance(context.Background(), "signed", media.FormatOpus)
	if err != nil || string(out) != "opus:RAW" {
		t.Fatalf("Enhance = %q, %v", out, err)
	}
	if _, err := p.Enhance(context.Background(), "missing", media.FormatOpus); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
