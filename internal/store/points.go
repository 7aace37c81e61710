package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"oto-insights-go/internal/types"
)

// AwardPoints appends a ledger entry for a conversation and adds amount to
// the owner's balance in the same transaction. A conversation is credited at
// most once: when an entry already exists nothing changes and awarded is
// false.
func (s *Store) AwardPoints(ctx context.Context, ownerID, conversationID string, amount float64) (awarded bool, err error) {
	now := formatTime(s.now())
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		awarded = false
		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM point_transactions WHERE conversation_id = ?`,
			conversationID).Scan(&existing); err != nil {
			return fmt.Errorf("check ledger: %w", err)
		}
		if existing > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO point_transactions (id, owner_id, amount, conversation_id, created_at)
			VALUES (?, ?, ?, ?, ?)`, uuid.NewString(), ownerID, amount, conversationID, now); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO points (owner_id, points, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(owner_id) DO UPDATE SET points = points + excluded.points, updated_at = excluded.updated_at`,
			ownerID, amount, now); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		awarded = true
		return nil
	})
	return awarded, err
}

// HasAward reports whether a ledger entry exists for a conversation.
func (s *Store) HasAward(ctx context.Context, conversationID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM point_transactions WHERE conversation_id = ?`,
		conversationID).Scan(&n); err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	return n > 0, nil
}

// Balance returns the owner's point balance; owners without awards have zero.
func (s *Store) Balance(ctx context.Context, ownerID string) (types.PointBalance, error) {
	b := types.PointBalance{OwnerID: ownerID}
	var updated string
	err := s.db.QueryRowContext(ctx, `SELECT points, updated_at FROM points WHERE owner_id = ?`, ownerID).
		Scan(&b.Points, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("load balance: %w", err)
	}
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

// Transactions lists the owner's ledger, oldest first.
func (s *Store) Transactions(ctx context.Context, ownerID string) ([]types.PointTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, amount, COALESCE(conversation_id, ''), created_at
		FROM point_transactions WHERE owner_id = ? ORDER BY created_at, rowid`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []types.PointTransaction
	for rows.Next() {
		var (
			tx      types.PointTransaction
			created string
		)
		if err := rows.Scan(&tx.ID, &tx.OwnerID, &tx.Amount, &tx.ConversationID, &created); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.CreatedAt = parseTime(created)
		out = append(out, tx)
	}
	return out, rows.Err()
}
