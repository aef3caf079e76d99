// ABOUTME: SQLite operations for transport credentials and key records
// ABOUTME: Batched upserts run in a single transaction; purges match on the opaque composite id

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SaveCredentials upserts the singleton credentials record.
func (s *SQLiteStore) SaveCredentials(ctx context.Context, data []byte) error {
	query := `
		INSERT INTO credentials (id, data, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	s.logger.Debug("saved credentials", "size", len(data))
	return nil
}

// GetCredentials returns the singleton credentials record.
// Returns ErrNotFound if the device has never been paired.
func (s *SQLiteStore) GetCredentials(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM credentials WHERE id = 1`).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}

	return data, nil
}

// GetKeyRecords returns the stored values for the given ids of one type.
// Ids with no record are simply absent from the result.
func (s *SQLiteStore) GetKeyRecords(ctx context.Context, keyType string, ids []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, keyType)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`SELECT id, value FROM key_records WHERE type = ? AND id IN (%s)`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying key records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var value []byte
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("scanning key record row: %w", err)
		}
		result[id] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating key record rows: %w", err)
	}

	return result, nil
}

// ApplyKeyBatch applies the given upserts and deletes in one transaction.
// Either the whole batch is applied or none of it is.
func (s *SQLiteStore) ApplyKeyBatch(ctx context.Context, puts []*KeyRecord, deletes []KeyRef) error {
	if len(puts) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning key batch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	upsert := `
		INSERT INTO key_records (type, id, value, group_id, user_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE
		SET value = excluded.value, group_id = excluded.group_id,
		    user_id = excluded.user_id, updated_at = excluded.updated_at
	`
	for _, rec := range puts {
		if _, err := tx.ExecContext(ctx, upsert,
			rec.Type, rec.ID, rec.Value, nullString(rec.GroupID), nullString(rec.UserID), now,
		); err != nil {
			return fmt.Errorf("upserting key record %s/%s: %w", rec.Type, rec.ID, err)
		}
	}

	for _, ref := range deletes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM key_records WHERE type = ? AND id = ?`, ref.Type, ref.ID,
		); err != nil {
			return fmt.Errorf("deleting key record %s/%s: %w", ref.Type, ref.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing key batch: %w", err)
	}

	s.logger.Debug("applied key batch", "upserts", len(puts), "deletes", len(deletes))
	return nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// DeleteKeyRecordsByID deletes records of one type by exact id and
// returns the number of records removed. Absent ids are not an error.
func (s *SQLiteStore) DeleteKeyRecordsByID(ctx context.Context, keyType string, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, keyType)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`DELETE FROM key_records WHERE type = ? AND id IN (%s)`, placeholders)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting key records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return deleted, nil
}

// DeleteKeyRecordsMatching deletes records of one type whose opaque id
// contains every given substring. The transport collaborator encodes
// multiple logical identifiers into one id string, so purges locate
// records by partial match rather than exact key.
func (s *SQLiteStore) DeleteKeyRecordsMatching(ctx context.Context, keyType string, substrings ...string) (int64, error) {
	if len(substrings) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`DELETE FROM key_records WHERE type = ?`)
	args := []any{keyType}
	for _, sub := range substrings {
		sb.WriteString(` AND instr(id, ?) > 0`)
		args = append(args, sub)
	}

	result, err := s.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting matching key records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return deleted, nil
}

// ClearKeyData deletes all key records and the credentials record.
func (s *SQLiteStore) ClearKeyData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM key_records`); err != nil {
		return fmt.Errorf("clearing key records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear: %w", err)
	}

	s.logger.Info("cleared all key data")
	return nil
}
