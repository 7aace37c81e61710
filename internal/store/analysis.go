package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"oto-insights-go/internal/types"
)

// SaveTranscript writes or replaces the transcript of a conversation.
func (s *Store) SaveTranscript(ctx context.Context, t types.Transcript) error {
	captions, err := json.Marshal(t.Captions)
	if err != nil {
		return fmt.Errorf("marshal captions: %w", err)
	}
	now := formatTime(s.now())
	_, err = s.exec(ctx, `INSERT INTO transcripts (id, owner_id, captions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET captions = excluded.captions, updated_at = excluded.updated_at`,
		t.ID, t.OwnerID, string(captions), now, now)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// GetTranscript loads the transcript of a conversation.
func (s *Store) GetTranscript(ctx context.Context, id string) (*types.Transcript, error) {
	var (
		t                          types.Transcript
		captions, created, updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, owner_id, captions, created_at, updated_at FROM transcripts WHERE id = ?`, id).
		Scan(&t.ID, &t.OwnerID, &captions, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("transcript", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(captions), &t.Captions); err != nil {
		return nil, fmt.Errorf("decode captions: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = parseTime(created), parseTime(updated)
	return &t, nil
}

var facetColumns = map[types.Facet]string{
	types.FacetSummary:    "summary",
	types.FacetHighlights: "highlights",
	types.FacetInsights:   "insights",
	types.FacetBreakdown:  "breakdown",
}

// ResetAnalysis creates the analysis row of a conversation with every facet
// cleared.
func (s *Store) ResetAnalysis(ctx context.Context, id, ownerID string) error {
	_, err := s.exec(ctx, `INSERT INTO analyses (id, owner_id, summary, highlights, insights, breakdown, updated_at)
		VALUES (?, ?, NULL, NULL, NULL, NULL, ?)
		ON CONFLICT(id) DO UPDATE SET summary = NULL, highlights = NULL, insights = NULL, breakdown = NULL,
			updated_at = excluded.updated_at`,
		id, ownerID, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("reset analysis: %w", err)
	}
	return nil
}

// SaveFacet writes one analysis facet. Only the facet's own column is
// touched, so concurrent writers of different facets do not overwrite each
// other.
func (s *Store) SaveFacet(ctx context.Context, id, ownerID string, facet types.Facet, value any) error {
	column, ok := facetColumns[facet]
	if !ok {
		return fmt.Errorf("save facet: unknown facet %q", facet)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", facet, err)
	}
	_, err = s.exec(ctx, `INSERT INTO analyses (id, owner_id, `+column+`, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET `+column+` = excluded.`+column+`, updated_at = excluded.updated_at`,
		id, ownerID, string(data), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save %s: %w", facet, err)
	}
	return nil
}

// GetAnalysis loads every facet produced so far.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*types.Analysis, error) {
	var (
		a                                        types.Analysis
		summary, highlights, insights, breakdown sql.NullString
		updated                                  string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, owner_id, summary, highlights, insights, breakdown, updated_at
		FROM analyses WHERE id = ?`, id).
		Scan(&a.ID, &a.OwnerID, &summary, &highlights, &insights, &breakdown, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("analysis", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}

	decode := func(col sql.NullString, target any) error {
		if !col.Valid {
			return nil
		}
		return json.Unmarshal([]byte(col.String), target)
	}
	if summary.Valid {
		a.Summary = &types.Summary{}
	}
	if insights.Valid {
		a.Insights = &types.Insights{}
	}
	if breakdown.Valid {
		a.Breakdown = &types.Breakdown{}
	}
	if highlights.Valid {
		a.Highlights = []types.Highlight{}
	}
	for _, err := range []error{
		decode(summary, a.Summary),
		decode(highlights, &a.Highlights),
		decode(insights, a.Insights),
		decode(breakdown, a.Breakdown),
	} {
		if err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}
	return &a, nil
}

// SaveTopic writes or replaces the topics of a conversation.
func (s *Store) SaveTopic(ctx context.Context, t types.Topic) error {
	data, err := json.Marshal(t.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	now := formatTime(s.now())
	_, err = s.exec(ctx, `INSERT INTO topics (id, owner_id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		t.ID, t.OwnerID, string(data), now, now)
	if err != nil {
		return fmt.Errorf("save topics: %w", err)
	}
	return nil
}

// GetTopic loads the topics of a conversation.
func (s *Store) GetTopic(ctx context.Context, id string) (*types.Topic, error) {
	var (
		t    types.Topic
		data string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, owner_id, data FROM topics WHERE id = ?`, id).Scan(&t.ID, &t.OwnerID, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("topic", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &t.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	return &t, nil
}

// HasTopic reports whether topics were already extracted for a conversation.
func (s *Store) HasTopic(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM topics WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check topics: %w", err)
	}
	return n > 0, nil
}
