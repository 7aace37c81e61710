package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"oto-insights-go/internal/services"
)

func newTestStore(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "http://files.test/", "secret")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestUploadOpenDelete(t *testing.T) {
	ctx := context.Background()
	l := newTestStore(t)

	key, err := l.Upload(ctx, "clips/owner-1", "wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(key, "clips/owner-1/") || !strings.HasSuffix(key, ".wav") {
		t.Fatalf("unexpected key %q", key)
	}

	rc, err := l.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, rc); got != "RIFF" {
		t.Fatalf("unexpected content %q", got)
	}

	if err := l.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := l.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, err := l.Open(ctx, key); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	l := newTestStore(t)
	for _, key := range []string{"../etc/passwd", "a/../../b", ""} {
		if _, err := l.Open(context.Background(), key); !errors.Is(err, services.ErrNotFound) {
			t.Errorf("Open(%q) = %v, want not found", key, err)
		}
	}
}

func TestSignedURLs(t *testing.T) {
	ctx := context.Background()
	l := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	key, err := l.Upload(ctx, "clips/o", ".wav", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	signed, err := l.Sign(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !strings.HasPrefix(signed, "http://files.test/files/"+key+"?") {
		t.Fatalf("unexpected url %q", signed)
	}

	rc, err := l.OpenSigned(ctx, signed)
	if err != nil {
		t.Fatalf("OpenSigned: %v", err)
	}
	if got := readAll(t, rc); got != "audio" {
		t.Fatalf("unexpected content %q", got)
	}

	u, _ := url.Parse(signed)
	q := u.Query()
	if err := l.Verify(key, q.Get("expires"), "deadbeef"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("tampered signature should fail, got %v", err)
	}
	if err := l.Verify("clips/o/other.wav", q.Get("expires"), q.Get("signature")); err == nil {
		t.Fatal("signature must be bound to the key")
	}

	now = now.Add(2 * time.Hour)
	if err := l.Verify(key, q.Get("expires"), q.Get("signature")); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestNewLocalRequiresKey(t *testing.T) {
	if _, err := NewLocal(t.TempDir(), "", ""); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
