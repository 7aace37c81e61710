package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"oto-insights-go/internal/types"
)

// ListTopics returns the extracted topics of every conversation, most
// recently updated first, flattened and capped at limit. A limit <= 0 means
// no cap.
func (s *Store) ListTopics(ctx context.Context, limit int) ([]types.TopicData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM topics ORDER BY updated_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []types.TopicData
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan topics: %w", err)
		}
		var topics []types.TopicData
		if err := json.Unmarshal([]byte(data), &topics); err != nil {
			return nil, fmt.Errorf("decode topics: %w", err)
		}
		for _, t := range topics {
			if limit > 0 && len(out) == limit {
				return out, nil
			}
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

// ReplaceTrends swaps both trend tables for a new set in one transaction.
func (s *Store) ReplaceTrends(ctx context.Context, trends []types.TrendData, micro []types.MicroTrendData) error {
	now := formatTime(s.now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trends`); err != nil {
			return fmt.Errorf("delete trends: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM micro_trends`); err != nil {
			return fmt.Errorf("delete micro trends: %w", err)
		}
		for _, t := range trends {
			if _, err := tx.ExecContext(ctx, `INSERT INTO trends
				(id, title, description, volume, positive_sentiment, negative_sentiment, cluster_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), t.Title, t.Description, t.Volume, t.PositiveSentiment, t.NegativeSentiment, t.ClusterID, now); err != nil {
				return fmt.Errorf("insert trend %q: %w", t.Title, err)
			}
		}
		for _, t := range micro {
			if _, err := tx.ExecContext(ctx, `INSERT INTO micro_trends
				(id, title, description, volume, positive_sentiment, negative_sentiment, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), t.Title, t.Description, t.Volume, t.PositiveSentiment, t.NegativeSentiment, now); err != nil {
				return fmt.Errorf("insert micro trend %q: %w", t.Title, err)
			}
		}
		return nil
	})
}

const (
	trendColumns      = `id, title, description, volume, positive_sentiment, negative_sentiment, cluster_id, created_at`
	microTrendColumns = `id, title, description, volume, positive_sentiment, negative_sentiment, created_at`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanTrend(row scanner) (types.Trend, error) {
	var (
		t       types.Trend
		created string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Volume, &t.PositiveSentiment, &t.NegativeSentiment, &t.ClusterID, &created)
	t.CreatedAt = parseTime(created)
	return t, err
}

func scanMicroTrend(row scanner) (types.MicroTrend, error) {
	var (
		t       types.MicroTrend
		created string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Volume, &t.PositiveSentiment, &t.NegativeSentiment, &created)
	t.CreatedAt = parseTime(created)
	return t, err
}

// ListTrends returns the current trends, largest volume first.
func (s *Store) ListTrends(ctx context.Context) ([]types.Trend, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trendColumns+` FROM trends ORDER BY volume DESC, title`)
	if err != nil {
		return nil, fmt.Errorf("list trends: %w", err)
	}
	defer rows.Close()
	out := []types.Trend{}
	for rows.Next() {
		t, err := scanTrend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListMicroTrends returns the current micro trends, largest volume first.
func (s *Store) ListMicroTrends(ctx context.Context) ([]types.MicroTrend, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+microTrendColumns+` FROM micro_trends ORDER BY volume DESC, title`)
	if err != nil {
		return nil, fmt.Errorf("list micro trends: %w", err)
	}
	defer rows.Close()
	out := []types.MicroTrend{}
	for rows.Next() {
		t, err := scanMicroTrend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan micro trend: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTrend(ctx context.Context, id string) (*types.Trend, error) {
	t, err := scanTrend(s.db.QueryRowContext(ctx, `SELECT `+trendColumns+` FROM trends WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("trend", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load trend: %w", err)
	}
	return &t, nil
}

func (s *Store) GetMicroTrend(ctx context.Context, id string) (*types.MicroTrend, error) {
	t, err := scanMicroTrend(s.db.QueryRowContext(ctx, `SELECT `+microTrendColumns+` FROM micro_trends WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("micro trend", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load micro trend: %w", err)
	}
	return &t, nil
}
