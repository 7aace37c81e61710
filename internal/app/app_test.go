package app_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"oto-insights-go/internal/app"
	"oto-insights-go/internal/clip"
	"oto-insights-go/internal/config"
	"oto-insights-go/internal/types"
)

func mockConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "oto.db")
	cfg.Storage.ObjectDir = filepath.Join(dir, "objects")
	cfg.Storage.SigningKey = "secret"
	cfg.Pipeline.LockDir = filepath.Join(dir, "locks")
	cfg.Transcription.Backend = "mock"
	cfg.LLM.UseMock = true
	cfg.Voice.UseMockVoice = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("mock config invalid: %v", err)
	}
	return cfg
}

func TestNewRunsConversationEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, mockConfig(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	audio, err := clip.EncodeWAV(&clip.PCM{SampleRate: 8000, Channels: 1, BitDepth: 16, Data: make([]int, 8000*10)})
	if err != nil {
		t.Fatal(err)
	}
	key, err := a.Files.Upload(ctx, "conversations/u1", ".wav", bytes.NewReader(audio))
	if err != nil {
		t.Fatal(err)
	}
	conv := &types.Conversation{OwnerID: "u1", FileName: "a.wav", FilePath: key, MimeType: "audio/wav"}
	if err := a.Store.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	st, err := a.Dispatcher.Run(ctx, conv.ID)
	if err != nil || st != types.StatusCompleted {
		t.Fatalf("run = %s, %v", st, err)
	}
	got, err := a.Store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusCompleted || got.Points != 30 {
		t.Fatalf("conversation = %+v", got)
	}
	if a.Server().Handler() == nil {
		t.Fatal("no handler")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Transcription.Backend = "carrier-pigeon"
	if _, err := app.New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
