package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"oto-insights-go/internal/api"
	"oto-insights-go/internal/dispatch"
	"oto-insights-go/internal/pipeline"
	"oto-insights-go/internal/services"
	"oto-insights-go/internal/storage"
	"oto-insights-go/internal/store"
	"oto-insights-go/internal/testsupport"
	"oto-insights-go/internal/types"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	triggered []string
	busy      map[string]bool
}

func (d *fakeDispatcher) Trigger(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy[id] {
		return dispatch.ErrAlreadyRunning
	}
	d.triggered = append(d.triggered, id)
	return nil
}

func (d *fakeDispatcher) Exclusive(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	busy := d.busy[id]
	d.mu.Unlock()
	if busy {
		return dispatch.ErrAlreadyRunning
	}
	return fn(ctx)
}

type fakeStages struct {
	err error
}

func (f fakeStages) RunStage(_ context.Context, _ string, stage pipeline.Stage) (pipeline.StageResult, error) {
	return pipeline.StageResult{Stage: stage, Critical: stage.Critical(), Err: f.err, Duration: 5 * time.Millisecond}, f.err
}

type harness struct {
	store      *store.Store
	files      *storage.Local
	hub        *api.Hub
	dispatcher *fakeDispatcher
	srv        *httptest.Server
}

func newHarness(t *testing.T, stages fakeStages) *harness {
	t.Helper()
	h := &harness{
		store:      testsupport.MustOpenStore(t),
		hub:        api.NewHub(nil),
		dispatcher: &fakeDispatcher{busy: map[string]bool{}},
	}
	files, err := storage.NewLocal(t.TempDir(), "http://files.test", "secret")
	if err != nil {
		t.Fatal(err)
	}
	h.files = files

	ctx, cancel := context.WithCancel(context.Background())
	go h.hub.Run(ctx)

	s := api.New(api.Options{
		Store:      h.store,
		Trends:     h.store,
		Dispatcher: h.dispatcher,
		Stages:     stages,
		Files:      files,
		Hub:        h.hub,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "# metrics")
		}),
	})
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		h.srv.Close()
		cancel()
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, fakeStages{})
	resp, body := h.do(t, http.MethodGet, "/healthz")
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}
	resp, body = h.do(t, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "# metrics") {
		t.Fatalf("metrics = %d %q", resp.StatusCode, body)
	}
}

func TestProcess(t *testing.T) {
	h := newHarness(t, fakeStages{})
	ctx := context.Background()
	fresh := testsupport.MustCreateConversation(t, h.store, "u1", "conversations/u1/a.wav")
	busy := testsupport.MustCreateConversation(t, h.store, "u1", "conversations/u1/b.wav")
	done := testsupport.MustCreateConversation(t, h.store, "u1", "conversations/u1/c.wav")
	h.dispatcher.busy[busy.ID] = true
	if _, err := h.store.CompareAndSetStatus(ctx, done.ID, types.StatusNotStarted, types.StatusFailed, "Analysis failed: x"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"accepted", fresh.ID, http.StatusAccepted},
		{"already running", busy.ID, http.StatusConflict},
		{"terminal", done.ID, http.StatusConflict},
		{"unknown", "missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, http.MethodPost, "/conversations/"+tt.id+"/process")
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
	if len(h.dispatcher.triggered) != 1 || h.dispatcher.triggered[0] != fresh.ID {
		t.Fatalf("triggered = %v", h.dispatcher.triggered)
	}
}

func TestStageReplay(t *testing.T) {
	missing := services.Wrap(services.ErrPrerequisiteMissing, "summary", "load transcript", "", nil)
	tests := []struct {
		name     string
		stage    string
		err      error
		want     int
		wantKind string
	}{
		{"ok", "summary", nil, http.StatusOK, ""},
		{"prerequisite", "summary", missing, http.StatusConflict, "prerequisite_missing"},
		{"provider", "transcribe", services.Provider("fireworks", "transcribe", errors.New("503")), http.StatusBadGateway, "provider"},
		{"unknown stage", "dance", nil, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fakeStages{err: tt.err})
			resp, body := h.do(t, http.MethodPost, "/conversations/c1/stages/"+tt.stage)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
			if tt.want == http.StatusBadRequest {
				return
			}
			var out struct {
				Stage    string `json:"stage"`
				Critical bool   `json:"critical"`
				Kind     string `json:"kind"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				t.Fatal(err)
			}
			if out.Stage != tt.stage || !out.Critical || out.Kind != tt.wantKind {
				t.Fatalf("response = %+v", out)
			}
		})
	}
}

func TestStageReplayRespectsClaim(t *testing.T) {
	h := newHarness(t, fakeStages{})
	h.dispatcher.busy["c1"] = true
	resp, _ := h.do(t, http.MethodPost, "/conversations/c1/stages/summary")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestConversationView(t *testing.T) {
	h := newHarness(t, fakeStages{})
	ctx := context.Background()
	conv := testsupport.MustCreateConversation(t, h.store, "u1", "conversations/u1/a.wav")

	resp, body := h.do(t, http.MethodGet, "/conversations/"+conv.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if strings.Contains(string(body), `"analysis"`) {
		t.Fatalf("analysis should be omitted before processing: %s", body)
	}

	_, err := h.store.ReplaceClips(ctx, conv.ID, []types.Clip{{
		OwnerID:         "u1",
		ConversationID:  conv.ID,
		Title:           "Best trip",
		FilePath:        "clips/u1/a.opus",
		CommentFilePath: "clip_comments/u1/a.opus",
	}})
	if err != nil {
		t.Fatal(err)
	}
	_, body = h.do(t, http.MethodGet, "/conversations/"+conv.ID)
	var out struct {
		Conversation types.Conversation `json:"conversation"`
		Clips        []struct {
			Title      string `json:"title"`
			FileURL    string `json:"file_url"`
			CommentURL string `json:"comment_url"`
		} `json:"clips"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Conversation.ID != conv.ID || len(out.Clips) != 1 {
		t.Fatalf("response = %s", body)
	}
	c := out.Clips[0]
	if !strings.HasPrefix(c.FileURL, "http://files.test/files/clips/u1/a.opus?") ||
		!strings.Contains(c.CommentURL, "signature=") {
		t.Fatalf("clip urls = %+v", c)
	}
}

func TestTrendRoutes(t *testing.T) {
	h := newHarness(t, fakeStages{})
	ctx := context.Background()

	resp, body := h.do(t, http.MethodGet, "/trends")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("empty trends = %d %s", resp.StatusCode, body)
	}
	err := h.store.ReplaceTrends(ctx,
		[]types.TrendData{{Title: "quiet", Volume: 1}, {Title: "travel", Volume: 4, PositiveSentiment: 0.8}},
		[]types.MicroTrendData{{Title: "kyoto trips", Volume: 2}})
	if err != nil {
		t.Fatal(err)
	}

	_, body = h.do(t, http.MethodGet, "/trends")
	var list []types.Trend
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Title != "travel" || list[0].PositiveSentiment != 0.8 {
		t.Fatalf("trends = %s", body)
	}
	resp, body = h.do(t, http.MethodGet, "/trends/"+list[0].ID)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"overall_positive_sentiment": 0.8`) {
		t.Fatalf("trend = %d %s", resp.StatusCode, body)
	}

	_, body = h.do(t, http.MethodGet, "/microtrends")
	var micro []types.MicroTrend
	if err := json.Unmarshal(body, &micro); err != nil || len(micro) != 1 {
		t.Fatalf("micro trends = %s, %v", body, err)
	}
	if resp, _ := h.do(t, http.MethodGet, "/microtrends/"+micro[0].ID); resp.StatusCode != http.StatusOK {
		t.Fatalf("micro trend status = %d", resp.StatusCode)
	}
	for _, path := range []string{"/trends/missing", "/microtrends/missing"} {
		if resp, _ := h.do(t, http.MethodGet, path); resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s = %d", path, resp.StatusCode)
		}
	}
}

func TestSignedFiles(t *testing.T) {
	h := newHarness(t, fakeStages{})
	ctx := context.Background()
	key, err := h.files.Upload(ctx, "clips/u1", ".opus", strings.NewReader("opus-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	signed, err := h.files.Sign(ctx, key, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatal(err)
	}

	resp, body := h.do(t, http.MethodGet, u.RequestURI())
	if resp.StatusCode != http.StatusOK || string(body) != "opus-bytes" {
		t.Fatalf("signed read = %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/opus" {
		t.Fatalf("content type = %q", ct)
	}

	q := u.Query()
	q.Set("signature", "bad")
	resp, _ = h.do(t, http.MethodGet, u.Path+"?"+q.Encode())
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("tampered read = %d", resp.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	h := newHarness(t, fakeStages{})
	conv := testsupport.MustCreateConversation(t, h.store, "u1", "conversations/u1/a.wav")

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/conversations/" + conv.ID + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot types.StatusEvent
	if err := ws.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.ConversationID != conv.ID || snapshot.Status != types.StatusNotStarted {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.hub.Watchers(conv.ID) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx := context.Background()
	_ = h.hub.Publish(ctx, types.StatusEvent{ConversationID: "other", Status: types.StatusProcessing})
	if err := h.hub.Publish(ctx, types.StatusEvent{
		ConversationID: conv.ID,
		Status:         types.StatusProcessing,
		InnerStatus:    "Transcribing conversation",
	}); err != nil {
		t.Fatal(err)
	}
	var ev types.StatusEvent
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Status != types.StatusProcessing || ev.InnerStatus != "Transcribing conversation" {
		t.Fatalf("event = %+v", ev)
	}
}
