package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"oto-insights-go/internal/services"
)

func TestTTSSpeak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["response_format"] != "opus" || body["voice"] != "nova" || body["input"] != "hello" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = w.Write([]byte("OggS..."))
	}))
	defer srv.Close()

	audio, err := NewTTS(srv.URL, "k", "gpt-4o-mini-tts", "nova", nil).Speak(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if string(audio) != "OggS..." {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestTTSClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewTTS(srv.URL, "k", "m", "v", nil).Speak(context.Background(), "x")
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
