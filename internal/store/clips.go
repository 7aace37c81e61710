package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"oto-insights-go/internal/services"
	"oto-insights-go/internal/types"
)

const clipColumns = `id, owner_id, conversation_id, title, description, comment, captions,
	file_name, file_path, mime_type, comment_file_name, comment_file_path, comment_mime_type, created_at, updated_at`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ReplaceClips swaps the clips of a conversation for clips in one
// transaction and returns the rows it removed so their objects can be
// deleted. Either the whole set is written or nothing changes. Clips of a
// FAILED conversation are refused.
func (s *Store) ReplaceClips(ctx context.Context, conversationID string, clips []types.Clip) ([]types.Clip, error) {
	var previous []types.Clip
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM conversations WHERE id = ?`, conversationID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("conversation", conversationID)
		}
		if err != nil {
			return fmt.Errorf("load conversation status: %w", err)
		}
		if types.Status(status) == types.StatusFailed {
			return services.Wrap(services.ErrInvalidTransition, "store", "replace clips",
				fmt.Sprintf("%s is failed", conversationID), nil)
		}

		previous, err = listClips(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE conversation_id = ?`, conversationID); err != nil {
			return fmt.Errorf("delete clips: %w", err)
		}
		return insertClips(ctx, tx, s.now(), conversationID, clips)
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

func insertClips(ctx context.Context, tx *sql.Tx, now time.Time, conversationID string, clips []types.Clip) error {
	if len(clips) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO clips (`+clipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare clip insert: %w", err)
	}
	defer stmt.Close()

	for i := range clips {
		c := &clips[i]
		if c.ConversationID != conversationID {
			return fmt.Errorf("clip %q belongs to conversation %q", c.Title, c.ConversationID)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt, c.UpdatedAt = now, now
		captions, err := json.Marshal(c.Captions)
		if err != nil {
			return fmt.Errorf("marshal clip captions: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.OwnerID, c.ConversationID, c.Title, c.Description, c.Comment, string(captions),
			c.FileName, c.FilePath, c.MimeType, c.CommentFileName, c.CommentFilePath, c.CommentMimeType,
			formatTime(now), formatTime(now)); err != nil {
			return fmt.Errorf("insert clip %q: %w", c.Title, err)
		}
	}
	return nil
}

// ListClips returns the clips of a conversation in creation order.
func (s *Store) ListClips(ctx context.Context, conversationID string) ([]types.Clip, error) {
	return listClips(ctx, s.db, conversationID)
}

func listClips(ctx context.Context, q querier, conversationID string) ([]types.Clip, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+clipColumns+`
		FROM clips WHERE conversation_id = ? ORDER BY created_at, rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	var out []types.Clip
	for rows.Next() {
		var (
			c                          types.Clip
			captions, created, updated string
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.ConversationID, &c.Title, &c.Description, &c.Comment, &captions,
			&c.FileName, &c.FilePath, &c.MimeType, &c.CommentFileName, &c.CommentFilePath, &c.CommentMimeType,
			&created, &updated); err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		if err := json.Unmarshal([]byte(captions), &c.Captions); err != nil {
			return nil, fmt.Errorf("decode clip captions: %w", err)
		}
		c.CreatedAt, c.UpdatedAt = parseTime(created), parseTime(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}
