package api

import (
	"context"
	"net/http"

	"oto-insights-go/internal/types"
)

// Trends is the read side of the trend tables. *store.Store satisfies it.
type Trends interface {
	ListTrends(ctx context.Context) ([]types.Trend, error)
	GetTrend(ctx context.Context, id string) (*types.Trend, error)
	ListMicroTrends(ctx context.Context) ([]types.MicroTrend, error)
	GetMicroTrend(ctx context.Context, id string) (*types.MicroTrend, error)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	list, err := s.trends.ListTrends(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	t, err := s.trends.GetTrend(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleMicroTrends(w http.ResponseWriter, r *http.Request) {
	list, err := s.trends.ListMicroTrends(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMicroTrend(w http.ResponseWriter, r *http.Request) {
	t, err := s.trends.GetMicroTrend(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
