package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"oto-insights-go/internal/types"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type countingRecorder struct {
	total, errs int
}

func (r *countingRecorder) RecordKafkaPublish(_ string, err error, _ float64) {
	r.total++
	if err != nil {
		r.errs++
	}
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"disabled", Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", Config{Enabled: true, Brokers: []string{}}},
		{"nil brokers", Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, nil, nil)
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writer != nil {
				t.Error("expected nil writer when disabled")
			}
			if err := p.Publish(context.Background(), types.StatusEvent{ConversationID: "c1"}); err != nil {
				t.Errorf("expected no error when disabled, got %v", err)
			}
			if err := p.Close(); err != nil {
				t.Errorf("close: %v", err)
			}
		})
	}
}

func TestNew_EnabledBuildsWriter(t *testing.T) {
	p := New(Config{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "status"}, nil, nil)
	if !p.Enabled() || p.writer == nil {
		t.Fatal("expected an enabled publisher with a writer")
	}
	w, ok := p.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("unexpected writer type %T", p.writer)
	}
	if w.Topic != "status" {
		t.Errorf("topic = %q", w.Topic)
	}
}

func TestPublishWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	rec := &countingRecorder{}
	p := NewWithWriter(w, "oto.status", "oto", rec, nil)

	ev := types.StatusEvent{
		ConversationID: "c1",
		OwnerID:        "u1",
		Status:         types.StatusProcessing,
		InnerStatus:    "Transcribing conversation",
		At:             time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "c1" {
		t.Errorf("key = %q", msg.Key)
	}
	var got types.StatusEvent
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Status != types.StatusProcessing || got.OwnerID != "u1" {
		t.Errorf("unexpected payload %+v", got)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["status"] != "processing" || headers["principal"] != "oto" {
		t.Errorf("unexpected headers %v", headers)
	}
	if rec.total != 1 || rec.errs != 0 {
		t.Errorf("recorder = %+v", rec)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("close did not reach writer: %v", err)
	}
}

func TestPublishWriteError(t *testing.T) {
	broker := errors.New("leader not available")
	rec := &countingRecorder{}
	p := NewWithWriter(&fakeWriter{err: broker}, "oto.status", "oto", rec, nil)

	err := p.Publish(context.Background(), types.StatusEvent{ConversationID: "c1"})
	if !errors.Is(err, broker) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if rec.errs != 1 {
		t.Errorf("error not recorded: %+v", rec)
	}
}
