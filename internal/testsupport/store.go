// Package testsupport holds fixtures shared by package tests.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"oto-insights-go/internal/store"
	"oto-insights-go/internal/types"
)

// MustOpenStore opens a fresh SQLite store in a temp dir and closes it when
// the test ends.
func MustOpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "oto.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// MustCreateConversation inserts a NOT_STARTED conversation for owner.
func MustCreateConversation(t testing.TB, s *store.Store, owner, filePath string) *types.Conversation {
	t.Helper()
	c := &types.Conversation{
		OwnerID:  owner,
		FileName: filepath.Base(filePath),
		FilePath: filePath,
		MimeType: "audio/wav",
	}
	if err := s.CreateConversation(context.Background(), c); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return c
}
