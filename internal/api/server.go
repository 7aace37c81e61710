// Package api exposes the pipeline over HTTP: triggers, stage replays,
// conversation and trend reads, a websocket status stream and signed file
// downloads.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	"oto-insights-go/internal/dispatch"
	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/pipeline"
	"oto-insights-go/internal/services"
	"oto-insights-go/internal/types"
)

// Conversations is the read side the handlers need. *store.Store satisfies it.
type Conversations interface {
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
	GetAnalysis(ctx context.Context, id string) (*types.Analysis, error)
	ListClips(ctx context.Context, conversationID string) ([]types.Clip, error)
	Ping(ctx context.Context) error
}

// Dispatcher claims conversations. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Trigger(ctx context.Context, id string) error
	Exclusive(ctx context.Context, id string, fn func(ctx context.Context) error) error
}

type StageRunner interface {
	RunStage(ctx context.Context, id string, stage pipeline.Stage) (pipeline.StageResult, error)
}

// Files serves and signs stored objects. *storage.Local satisfies it.
type Files interface {
	Verify(key, expires, signature string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Options struct {
	Store        Conversations
	Trends       Trends
	Dispatcher   Dispatcher
	Stages       StageRunner
	Files        Files
	Hub          *Hub
	Metrics      http.Handler
	SignedURLTTL time.Duration
	Log          *logger.Logger
}

type Server struct {
	store      Conversations
	trends     Trends
	dispatcher Dispatcher
	stages     StageRunner
	files      Files
	hub        *Hub
	metrics    http.Handler
	ttl        time.Duration
	log        *logger.Logger
}

func New(o Options) *Server {
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	if o.SignedURLTTL <= 0 {
		o.SignedURLTTL = time.Hour
	}
	return &Server{
		store:      o.Store,
		trends:     o.Trends,
		dispatcher: o.Dispatcher,
		stages:     o.Stages,
		files:      o.Files,
		hub:        o.Hub,
		metrics:    o.Metrics,
		ttl:        o.SignedURLTTL,
		log:        o.Log.Component("api"),
	}
}

// Handler returns the routed, request-logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("POST /conversations/{id}/process", s.handleProcess)
	mux.HandleFunc("POST /conversations/{id}/stages/{stage}", s.handleStage)
	mux.HandleFunc("GET /conversations/{id}", s.handleConversation)
	mux.HandleFunc("GET /conversations/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /files/{path...}", s.handleFile)

	if s.trends != nil {
		mux.HandleFunc("GET /trends", s.handleTrends)
		mux.HandleFunc("GET /trends/{id}", s.handleTrend)
		mux.HandleFunc("GET /microtrends", s.handleMicroTrends)
		mux.HandleFunc("GET /microtrends/{id}", s.handleMicroTrend)
	}

	return s.logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	fmt.Fprint(w, "ok")
}

type acceptedResponse struct {
	ConversationID string       `json:"conversation_id"`
	Status         types.Status `json:"status"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if conv.Status.Terminal() {
		s.writeError(w, r, services.Wrap(services.ErrInvalidTransition, "api", "process",
			fmt.Sprintf("%s is already %s", id, conv.Status), nil))
		return
	}
	if err := s.dispatcher.Trigger(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{ConversationID: id, Status: conv.Status})
}

type stageResponse struct {
	ConversationID string         `json:"conversation_id"`
	Stage          pipeline.Stage `json:"stage"`
	Critical       bool           `json:"critical"`
	DurationMS     int64          `json:"duration_ms"`
	Error          string         `json:"error,omitempty"`
	Kind           string         `json:"kind,omitempty"`
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stage, err := pipeline.ParseStage(r.PathValue("stage"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var res pipeline.StageResult
	err = s.dispatcher.Exclusive(r.Context(), id, func(ctx context.Context) error {
		var runErr error
		res, runErr = s.stages.RunStage(ctx, id, stage)
		return runErr
	})
	if errors.Is(err, dispatch.ErrAlreadyRunning) {
		s.writeError(w, r, err)
		return
	}

	out := stageResponse{
		ConversationID: id,
		Stage:          stage,
		Critical:       stage.Critical(),
		DurationMS:     res.Duration.Milliseconds(),
	}
	code := http.StatusOK
	if err != nil {
		out.Error = err.Error()
		out.Kind = services.Kind(err)
		code = httpStatus(err)
	}
	writeJSON(w, code, out)
}

type clipView struct {
	types.Clip
	FileURL    string `json:"file_url,omitempty"`
	CommentURL string `json:"comment_url,omitempty"`
}

type conversationResponse struct {
	Conversation *types.Conversation `json:"conversation"`
	Analysis     *types.Analysis     `json:"analysis,omitempty"`
	Clips        []clipView          `json:"clips"`
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := conversationResponse{Conversation: conv, Clips: []clipView{}}

	analysis, err := s.store.GetAnalysis(ctx, id)
	switch {
	case err == nil:
		out.Analysis = analysis
	case !errors.Is(err, services.ErrNotFound):
		s.writeError(w, r, err)
		return
	}

	clips, err := s.store.ListClips(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, c := range clips {
		v := clipView{Clip: c}
		if v.FileURL, err = s.files.Sign(ctx, c.FilePath, s.ttl); err != nil {
			s.writeError(w, r, err)
			return
		}
		if c.CommentFilePath != "" {
			if v.CommentURL, err = s.files.Sign(ctx, c.CommentFilePath, s.ttl); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		out.Clips = append(out.Clips, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "status stream disabled", http.StatusNotFound)
		return
	}
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snapshot := types.StatusEvent{
		ConversationID: conv.ID,
		OwnerID:        conv.OwnerID,
		Status:         conv.Status,
		InnerStatus:    conv.InnerStatus,
		At:             conv.UpdatedAt,
	}
	if err := s.hub.serve(w, r, snapshot); err != nil {
		// Upgrade has already answered the client.
		s.log.WithRequest(r).WithField("error", err.Error()).Warn("websocket session failed")
	}
}

var contentTypes = map[string]string{
	".wav":  "audio/wav",
	".opus": "audio/opus",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("path")
	q := r.URL.Query()
	if err := s.files.Verify(key, q.Get("expires"), q.Get("signature")); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	rc, err := s.files.Open(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	ct, ok := contentTypes[path.Ext(key)]
	if !ok {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.WithRequest(r).WithField("error", err.Error()).Warn("failed to stream file")
	}
}

// httpStatus maps the error taxonomy onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrAlreadyRunning),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrPrerequisiteMissing):
		return http.StatusConflict
	case errors.Is(err, services.ErrAdmissionRejected):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	entry := s.log.WithRequest(r).WithField("error", err.Error()).WithField("kind", services.Kind(err))
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: services.Kind(err)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.WithRequest(r).
			WithField("status", sw.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("request served")
	})
}
