package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrProvider, "fireworks", "transcribe", "upload failed", cause)

	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	want := "provider error: fireworks: transcribe: upload failed: connection reset"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if err.Error() != "provider error: service failure" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"admission", fmt.Errorf("run: %w", ErrAdmissionRejected), "admission_rejected"},
		{"prerequisite", Wrap(ErrPrerequisiteMissing, "summary", "load transcript", "", nil), "prerequisite_missing"},
		{"deadline", fmt.Errorf("stage: %w", context.DeadlineExceeded), "timeout"},
		{"timeout marker", ErrTimeout, "timeout"},
		{"provider", Provider("llm", "complete", errors.New("boom")), "provider"},
		{"format", ErrFormat, "format"},
		{"canceled", context.Canceled, "canceled"},
		{"other", errors.New("disk full"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}
