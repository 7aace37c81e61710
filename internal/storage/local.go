// Package storage keeps uploaded and generated audio on local disk and issues
// HMAC-signed, expiring URLs for it.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"oto-insights-go/internal/services"
)

// Local stores objects under a root directory. Object keys are slash
// separated and relative to the root.
type Local struct {
	root    string
	baseURL string
	key     []byte
	now     func() time.Time
}

// NewLocal creates root if needed. baseURL is the public address of the API
// serving GET /files/{key}.
func NewLocal(root, baseURL, signingKey string) (*Local, error) {
	if signingKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "signing key is required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	return &Local{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     []byte(signingKey),
		now:     time.Now,
	}, nil
}

// cleanKey rejects keys that would escape the root.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(key))[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") || strings.Contains(key, "..") {
		return "", services.Wrap(services.ErrNotFound, "storage", "resolve", fmt.Sprintf("invalid key %q", key), nil)
	}
	return cleaned, nil
}

func (l *Local) path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

// Upload writes r under prefix with a fresh uuid name and returns the key.
// The file appears atomically.
func (l *Local) Upload(ctx context.Context, prefix, ext string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	key := path.Join(prefix, uuid.NewString()+ext)
	dest, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}
	return key, nil
}

// Open returns a reader for key.
func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "storage", "open", key, nil)
	}
	return f, err
}

// Delete removes key. Missing objects are not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (l *Local) signature(key string, expires int64) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns a URL granting read access to key until ttl elapses.
func (l *Local) Sign(_ context.Context, key string, ttl time.Duration) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	expires := l.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", l.signature(cleaned, expires))
	return l.baseURL + "/files/" + cleaned + "?" + q.Encode(), nil
}

// Verify checks a signature issued by Sign.
func (l *Local) Verify(key, expires, signature string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "storage", "verify", "malformed expiry", nil)
	}
	want := l.signature(cleaned, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return services.Wrap(services.ErrNotFound, "storage", "verify", "bad signature", nil)
	}
	if l.now().Unix() > exp {
		return services.Wrap(services.ErrNotFound, "storage", "verify", "url expired", nil)
	}
	return nil
}

// OpenSigned verifies a URL produced by Sign and opens its object.
func (l *Local) OpenSigned(ctx context.Context, raw string) (io.ReadCloser, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "storage", "open signed", "malformed url", err)
	}
	key, ok := strings.CutPrefix(u.Path, "/files/")
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "storage", "open signed", "not a file url", nil)
	}
	q := u.Query()
	if err := l.Verify(key, q.Get("expires"), q.Get("signature")); err != nil {
		return nil, err
	}
	return l.Open(ctx, key)
}
