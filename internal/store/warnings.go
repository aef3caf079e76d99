// ABOUTME: SQLite operations for the per-(group, user) warning ledger
// ABOUTME: The increment is a single upsert-returning statement so concurrent infractions never lose updates

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IncrementWarning atomically creates-or-increments the warning counter
// for a (group, user) pair and returns the new count. The increment runs
// as one statement in the storage layer, which linearizes concurrent
// infractions for the same pair.
func (s *SQLiteStore) IncrementWarning(ctx context.Context, groupID, userID string) (int, error) {
	query := `
		INSERT INTO user_warnings (group_id, user_id, count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(group_id, user_id) DO UPDATE
		SET count = count + 1, updated_at = excluded.updated_at
		RETURNING count
	`

	var count int
	err := s.db.QueryRowContext(ctx, query,
		groupID, userID, time.Now().UTC().Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing warning: %w", err)
	}

	s.logger.Debug("incremented warning", "group", groupID, "user", userID, "count", count)
	return count, nil
}

// GetWarning retrieves the warning counter for a (group, user) pair.
// Returns ErrNotFound if the user has no active warnings.
func (s *SQLiteStore) GetWarning(ctx context.Context, groupID, userID string) (*UserWarning, error) {
	query := `
		SELECT group_id, user_id, count, updated_at
		FROM user_warnings
		WHERE group_id = ? AND user_id = ?
	`

	var w UserWarning
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, groupID, userID).Scan(
		&w.GroupID,
		&w.UserID,
		&w.Count,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying warning: %w", err)
	}

	w.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &w, nil
}

// ResetWarning deletes the warning counter unconditionally.
// Resetting an absent counter is not an error.
func (s *SQLiteStore) ResetWarning(ctx context.Context, groupID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_warnings WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("resetting warning: %w", err)
	}

	s.logger.Debug("reset warning", "group", groupID, "user", userID)
	return nil
}
