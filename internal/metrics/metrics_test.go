package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"oto-insights-go/internal/types"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.GetCounter().GetValue()
	case out.Gauge != nil:
		return out.GetGauge().GetValue()
	}
	t.Fatalf("unsupported metric %v", out.String())
	return 0
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()
	a.RecordRunStart()
	if got := value(t, b.RunsActive); got != 0 {
		t.Fatalf("instances share state: %v", got)
	}
}

func TestRecordStage(t *testing.T) {
	m := New()
	m.RecordStage("summary", true, "", 0.2)
	m.RecordStage("clips", false, "provider", 1.5)
	m.RecordStage("clips", false, "provider", 0.5)

	if got := value(t, m.StageFailures.WithLabelValues("clips", "false", "provider")); got != 2 {
		t.Errorf("clip failures = %v, want 2", got)
	}
	if got := value(t, m.StageFailures.WithLabelValues("summary", "true", "")); got != 0 {
		t.Errorf("successful stage counted as failure: %v", got)
	}
}

func TestRecordRunAndKafka(t *testing.T) {
	m := New()
	m.RecordRunStart()
	m.RecordRunEnd("completed", 12)
	m.RecordKafkaPublish("status", nil, 0.01)
	m.RecordKafkaPublish("status", errors.New("broker down"), 0.02)

	if got := value(t, m.RunsActive); got != 0 {
		t.Errorf("active runs = %v", got)
	}
	if got := value(t, m.RunsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed runs = %v", got)
	}
	if got := value(t, m.KafkaPublishTotal.WithLabelValues("status")); got != 2 {
		t.Errorf("publishes = %v", got)
	}
	if got := value(t, m.KafkaPublishErrors.WithLabelValues("status")); got != 1 {
		t.Errorf("publish errors = %v", got)
	}
}

func TestPublishCountsStatusEvents(t *testing.T) {
	m := New()
	ctx := context.Background()
	_ = m.Publish(ctx, types.StatusEvent{Status: types.StatusProcessing})
	_ = m.Publish(ctx, types.StatusEvent{Status: types.StatusProcessing})
	_ = m.Publish(ctx, types.StatusEvent{Status: types.StatusCompleted})

	if got := value(t, m.StatusTransitions.WithLabelValues("processing")); got != 2 {
		t.Errorf("processing events = %v", got)
	}
	m.RecordPoints(30)
	m.RecordPoints(-5)
	if got := value(t, m.PointsAwarded); got != 30 {
		t.Errorf("points = %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.RecordClips(2, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "oto_insights_clips_created_total 2") {
		t.Fatalf("metrics output missing clip counter:\n%s", body)
	}
}
