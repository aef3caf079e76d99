// ABOUTME: SQLite operations for per-group moderation policy
// ABOUTME: List fields are stored as JSON arrays; mutations run read-modify-write inside a transaction

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetGroupSettings retrieves the policy for a group.
// Returns ErrNotFound if no record exists (moderation disabled).
func (s *SQLiteStore) GetGroupSettings(ctx context.Context, groupID string) (*GroupSettings, error) {
	query := `
		SELECT group_id, enabled, welcome, farewell, block_media, block_links,
		       banned_words, max_warnings, rules, whitelist, created_at, updated_at
		FROM group_settings
		WHERE group_id = ?
	`
	return scanGroupSettings(s.db.QueryRowContext(ctx, query, groupID))
}

// scanner abstracts sql.Row and sql.Rows for settings scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanGroupSettings(row scanner) (*GroupSettings, error) {
	var g GroupSettings
	var bannedJSON, whitelistJSON string
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&g.GroupID,
		&g.Enabled,
		&g.Welcome,
		&g.Farewell,
		&g.BlockMedia,
		&g.BlockLinks,
		&bannedJSON,
		&g.MaxWarnings,
		&g.Rules,
		&whitelistJSON,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning group settings: %w", err)
	}

	if err := json.Unmarshal([]byte(bannedJSON), &g.BannedWords); err != nil {
		return nil, fmt.Errorf("parsing banned_words: %w", err)
	}
	if err := json.Unmarshal([]byte(whitelistJSON), &g.Whitelist); err != nil {
		return nil, fmt.Errorf("parsing whitelist: %w", err)
	}

	g.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	g.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &g, nil
}

// UpsertGroupSettings creates or replaces the settings record for a group.
func (s *SQLiteStore) UpsertGroupSettings(ctx context.Context, settings *GroupSettings) error {
	bannedJSON, err := json.Marshal(emptyIfNil(settings.BannedWords))
	if err != nil {
		return fmt.Errorf("encoding banned_words: %w", err)
	}
	whitelistJSON, err := json.Marshal(emptyIfNil(settings.Whitelist))
	if err != nil {
		return fmt.Errorf("encoding whitelist: %w", err)
	}

	createdAt := settings.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO group_settings (group_id, enabled, welcome, farewell, block_media, block_links,
		                            banned_words, max_warnings, rules, whitelist, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			enabled = excluded.enabled,
			welcome = excluded.welcome,
			farewell = excluded.farewell,
			block_media = excluded.block_media,
			block_links = excluded.block_links,
			banned_words = excluded.banned_words,
			max_warnings = excluded.max_warnings,
			rules = excluded.rules,
			whitelist = excluded.whitelist,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		settings.GroupID,
		settings.Enabled,
		settings.Welcome,
		settings.Farewell,
		settings.BlockMedia,
		settings.BlockLinks,
		string(bannedJSON),
		settings.Threshold(),
		settings.Rules,
		string(whitelistJSON),
		createdAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting group settings: %w", err)
	}

	s.logger.Debug("upserted group settings", "group", settings.GroupID, "enabled", settings.Enabled)
	return nil
}

// emptyIfNil keeps JSON columns as [] instead of null.
func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// DeleteGroupSettings removes the settings record for a group.
// Returns ErrNotFound if no record exists.
func (s *SQLiteStore) DeleteGroupSettings(ctx context.Context, groupID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM group_settings WHERE group_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("deleting group settings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted group settings", "group", groupID)
	return nil
}

// AddBannedWord adds a word to the group's banned list with set semantics.
// The word is stored unnormalized; normalization happens at match time.
func (s *SQLiteStore) AddBannedWord(ctx context.Context, groupID, word string) error {
	return s.mutateList(ctx, groupID, "banned_words", func(list []string) []string {
		for _, w := range list {
			if w == word {
				return list
			}
		}
		return append(list, word)
	})
}

// RemoveBannedWord removes a word from the group's banned list.
func (s *SQLiteStore) RemoveBannedWord(ctx context.Context, groupID, word string) error {
	return s.mutateList(ctx, groupID, "banned_words", func(list []string) []string {
		return removeValue(list, word)
	})
}

// AddWhitelist appends a bare number to the group's whitelist.
func (s *SQLiteStore) AddWhitelist(ctx context.Context, groupID, number string) error {
	return s.mutateList(ctx, groupID, "whitelist", func(list []string) []string {
		for _, n := range list {
			if n == number {
				return list
			}
		}
		return append(list, number)
	})
}

// RemoveWhitelist removes a bare number from the group's whitelist.
func (s *SQLiteStore) RemoveWhitelist(ctx context.Context, groupID, number string) error {
	return s.mutateList(ctx, groupID, "whitelist", func(list []string) []string {
		return removeValue(list, number)
	})
}

// removeValue returns list without any occurrence of value.
func removeValue(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

// mutateList applies fn to one of the JSON list columns inside a transaction.
// The group's settings record is created with defaults if it doesn't exist,
// so list mutations from the admin channel work before the group is enabled.
func (s *SQLiteStore) mutateList(ctx context.Context, groupID, column string, fn func([]string) []string) error {
	if column != "banned_words" && column != "whitelist" {
		return fmt.Errorf("unknown list column %q", column)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning list mutation: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	// Ensure the row exists before mutating it.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO group_settings (group_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(group_id) DO NOTHING
	`, groupID, now, now); err != nil {
		return fmt.Errorf("ensuring group settings row: %w", err)
	}

	var listJSON string
	query := fmt.Sprintf(`SELECT %s FROM group_settings WHERE group_id = ?`, column)
	if err := tx.QueryRowContext(ctx, query, groupID).Scan(&listJSON); err != nil {
		return fmt.Errorf("reading %s: %w", column, err)
	}

	var list []string
	if err := json.Unmarshal([]byte(listJSON), &list); err != nil {
		return fmt.Errorf("parsing %s: %w", column, err)
	}

	updated, err := json.Marshal(emptyIfNil(fn(list)))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", column, err)
	}

	update := fmt.Sprintf(`UPDATE group_settings SET %s = ?, updated_at = ? WHERE group_id = ?`, column)
	if _, err := tx.ExecContext(ctx, update, string(updated), now, groupID); err != nil {
		return fmt.Errorf("writing %s: %w", column, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing list mutation: %w", err)
	}

	s.logger.Debug("mutated settings list", "group", groupID, "column", column)
	return nil
}
