package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"oto-insights-go/internal/services"
	"oto-insights-go/internal/types"
)

const conversationColumns = `id, owner_id, status, inner_status, file_name, file_path, mime_type, points,
	available_duration, language, situation, place, time, location, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*types.Conversation, error) {
	var (
		c                types.Conversation
		status           string
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &status, &c.InnerStatus, &c.FileName, &c.FilePath, &c.MimeType, &c.Points,
		&c.AvailableDuration, &c.Language, &c.Situation, &c.Place, &c.Time, &c.Location, &created, &updated); err != nil {
		return nil, err
	}
	c.Status = types.Status(status)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

func notFound(kind, id string) error {
	return services.Wrap(services.ErrNotFound, "store", "load "+kind, id, nil)
}

// CreateConversation inserts c in NOT_STARTED state, assigning an id when c
// has none.
func (s *Store) CreateConversation(ctx context.Context, c *types.Conversation) error {
	if c.OwnerID == "" {
		return fmt.Errorf("create conversation: owner id is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.Status = types.StatusNotStarted
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.exec(ctx, `INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, string(c.Status), c.InnerStatus, c.FileName, c.FilePath, c.MimeType, c.Points,
		c.AvailableDuration, c.Language, c.Situation, c.Place, c.Time, c.Location, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetConversation loads one conversation.
func (s *Store) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("conversation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return c, nil
}

// ConversationFilter narrows ListConversations. Zero fields match everything.
type ConversationFilter struct {
	OwnerID string
	Status  types.Status
	Limit   int
}

// ListConversations returns matching conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, f ConversationFilter) ([]types.Conversation, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []types.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountConversations returns the number of stored conversations.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// CompareAndSetStatus moves a conversation from expect to next. It returns
// ErrInvalidTransition when the stored status is no longer expect.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, expect, next types.Status, inner string) (*types.Conversation, error) {
	res, err := s.exec(ctx, `UPDATE conversations SET status = ?, inner_status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(next), inner, formatTime(s.now()), id, string(expect))
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetConversation(ctx, id); err != nil {
			return nil, err
		}
		return nil, services.Wrap(services.ErrInvalidTransition, "store", "update status",
			fmt.Sprintf("%s is no longer %s", id, expect), nil)
	}
	return s.GetConversation(ctx, id)
}

// SetInnerStatus updates the label of a conversation that is not terminal.
// It reports whether a row was changed.
func (s *Store) SetInnerStatus(ctx context.Context, id, inner string) (bool, error) {
	res, err := s.exec(ctx, `UPDATE conversations SET inner_status = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		inner, formatTime(s.now()), id, string(types.StatusCompleted), string(types.StatusFailed))
	if err != nil {
		return false, fmt.Errorf("update inner status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetPoints records the points earned by a conversation.
func (s *Store) SetPoints(ctx context.Context, id string, points float64) error {
	res, err := s.exec(ctx, `UPDATE conversations SET points = ?, updated_at = ? WHERE id = ?`,
		points, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("update points: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("conversation", id)
	}
	return nil
}

// SetMetadata copies breakdown metadata onto the conversation.
func (s *Store) SetMetadata(ctx context.Context, id string, md types.Metadata) error {
	_, err := s.exec(ctx, `UPDATE conversations SET available_duration = ?, language = ?, situation = ?,
		place = ?, time = ?, location = ?, updated_at = ? WHERE id = ?`,
		md.Duration, md.Language, md.Situation, md.Place, md.Time, md.Location, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// ResetConversation moves a FAILED conversation back to NOT_STARTED so it can
// be resubmitted. It is an operator action outside the pipeline.
func (s *Store) ResetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	return s.CompareAndSetStatus(ctx, id, types.StatusFailed, types.StatusNotStarted, "Reset by operator")
}
