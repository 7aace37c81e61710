package status_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"oto-insights-go/internal/services"
	"oto-insights-go/internal/status"
	"oto-insights-go/internal/testsupport"
	"oto-insights-go/internal/types"
)

type recorder struct {
	mu     sync.Mutex
	events []types.StatusEvent
}

func (r *recorder) Publish(_ context.Context, ev types.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) statuses() []types.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Status, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Status
	}
	return out
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		from, to types.Status
		want     bool
	}{
		{types.StatusNotStarted, types.StatusProcessing, true},
		{types.StatusNotStarted, types.StatusFailed, true},
		{types.StatusNotStarted, types.StatusCompleted, false},
		{types.StatusProcessing, types.StatusCompleted, true},
		{types.StatusProcessing, types.StatusFailed, true},
		{types.StatusProcessing, types.StatusNotStarted, false},
		{types.StatusCompleted, types.StatusProcessing, false},
		{types.StatusCompleted, types.StatusFailed, false},
		{types.StatusFailed, types.StatusProcessing, false},
		{types.StatusFailed, types.StatusNotStarted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := status.Allowed(tt.from, tt.to); got != tt.want {
				t.Errorf("Allowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectorHappyPath(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t)
	conv := testsupport.MustCreateConversation(t, st, "owner-1", "uploads/a.wav")

	p := status.NewProjector(st, nil)
	rec := &recorder{}
	p.AddSink(rec)

	if err := p.Begin(ctx, conv.ID, "Transcribing conversation"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := p.Begin(ctx, conv.ID, "Analyzing conversation"); err != nil {
		t.Fatalf("begin again: %v", err)
	}
	if err := p.Label(ctx, conv.ID, "Awarding points"); err != nil {
		t.Fatalf("label: %v", err)
	}
	if err := p.Complete(ctx, conv.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := p.Complete(ctx, conv.ID); err != nil {
		t.Fatalf("second complete should be a no-op: %v", err)
	}

	got, err := st.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusCompleted || got.InnerStatus != status.LabelCompleted {
		t.Fatalf("unexpected final state %s %q", got.Status, got.InnerStatus)
	}

	want := []types.Status{types.StatusProcessing, types.StatusProcessing, types.StatusProcessing, types.StatusCompleted}
	statuses := rec.statuses()
	if len(statuses) != len(want) {
		t.Fatalf("got %d events, want %d", len(statuses), len(want))
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, statuses[i], want[i])
		}
	}
	if rec.events[0].OwnerID != "owner-1" {
		t.Errorf("owner not propagated: %q", rec.events[0].OwnerID)
	}
}

func TestProjectorTerminalStatesAreSticky(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t)
	conv := testsupport.MustCreateConversation(t, st, "owner-1", "uploads/a.wav")

	p := status.NewProjector(st, nil)
	rec := &recorder{}
	p.AddSink(rec)

	if err := p.Fail(ctx, conv.ID, "transcribe: provider error"); err != nil {
		t.Fatalf("fail from not started: %v", err)
	}
	if err := p.Fail(ctx, conv.ID, "again"); err != nil {
		t.Fatalf("second fail should be a no-op: %v", err)
	}
	if err := p.Label(ctx, conv.ID, "late label"); err != nil {
		t.Fatalf("label on terminal: %v", err)
	}
	if err := p.Begin(ctx, conv.ID, "Transcribing conversation"); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("begin on failed: got %v", err)
	}
	if err := p.Complete(ctx, conv.ID); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("complete on failed: got %v", err)
	}

	got, _ := st.GetConversation(ctx, conv.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("status regressed to %s", got.Status)
	}
	if got.InnerStatus != "Analysis failed: transcribe: provider error" {
		t.Fatalf("unexpected inner status %q", got.InnerStatus)
	}
	if n := len(rec.statuses()); n != 1 {
		t.Fatalf("expected exactly one event, got %d", n)
	}
}

func TestProjectorCompleteRequiresProcessing(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t)
	conv := testsupport.MustCreateConversation(t, st, "owner-1", "uploads/a.wav")

	p := status.NewProjector(st, nil)
	if err := p.Complete(ctx, conv.ID); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("complete on not started: got %v", err)
	}
	if err := p.Begin(ctx, "missing", "x"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("begin on missing: got %v", err)
	}
}

func TestProjectorSinkErrorsAreNotFatal(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t)
	conv := testsupport.MustCreateConversation(t, st, "owner-1", "uploads/a.wav")

	p := status.NewProjector(st, nil)
	p.AddSink(status.SinkFunc(func(context.Context, types.StatusEvent) error {
		return errors.New("broker down")
	}))
	rec := &recorder{}
	p.AddSink(rec)

	if err := p.Begin(ctx, conv.ID, "Transcribing conversation"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(rec.statuses()) != 1 {
		t.Fatal("later sinks should still receive the event")
	}
}
