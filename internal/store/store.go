// ABOUTME: Store interfaces and data types for groupwarden persistence
// ABOUTME: Defines Credentials, KeyRecord, GroupSettings, UserWarning and per-entity store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// DefaultMaxWarnings is the warning threshold applied when a group
// has no explicit max_warnings configured.
const DefaultMaxWarnings = 3

// Credentials is the singleton record holding the device's long-lived
// identity material. There is exactly one per deployment; it is created
// on first pairing and overwritten on every rotation.
type Credentials struct {
	Data      []byte
	UpdatedAt time.Time
}

// KeyRecord is one (type, id) -> value entry of transport key material.
// The id is an opaque composite string owned by the transport collaborator.
// GroupID and UserID are denormalized out of composite sender-key ids so
// records can also be located without substring matching; the opaque id
// remains the contract key.
type KeyRecord struct {
	Type      string
	ID        string
	Value     []byte
	GroupID   string
	UserID    string
	UpdatedAt time.Time
}

// KeyRef identifies a key record for deletion within a batch.
type KeyRef struct {
	Type string
	ID   string
}

// GroupSettings is the per-group moderation policy. Absence of a record
// means moderation is disabled and all features are off.
type GroupSettings struct {
	GroupID     string
	Enabled     bool
	Welcome     bool
	Farewell    bool
	BlockMedia  bool
	BlockLinks  bool
	BannedWords []string
	MaxWarnings int
	Rules       string
	Whitelist   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewGroupSettings returns settings for a group with all features off
// and the default warning threshold.
func NewGroupSettings(groupID string) *GroupSettings {
	now := time.Now().UTC()
	return &GroupSettings{
		GroupID:     groupID,
		MaxWarnings: DefaultMaxWarnings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Threshold returns the effective warning threshold for the group.
func (g *GroupSettings) Threshold() int {
	if g.MaxWarnings <= 0 {
		return DefaultMaxWarnings
	}
	return g.MaxWarnings
}

// UserWarning is the infraction counter for one (group, user) pair.
// The record is absent until the first infraction and deleted again
// when the user is removed at the threshold.
type UserWarning struct {
	GroupID   string
	UserID    string
	Count     int
	UpdatedAt time.Time
}

// KeyRecordStore persists transport credentials and key material.
type KeyRecordStore interface {
	// SaveCredentials upserts the singleton credentials record.
	SaveCredentials(ctx context.Context, data []byte) error
	// GetCredentials returns the singleton credentials record, or ErrNotFound.
	GetCredentials(ctx context.Context) ([]byte, error)

	// GetKeyRecords returns the stored values for the given ids of one type.
	// Missing ids are simply absent from the result, never an error.
	GetKeyRecords(ctx context.Context, keyType string, ids []string) (map[string][]byte, error)
	// ApplyKeyBatch applies upserts and deletes in a single transaction.
	ApplyKeyBatch(ctx context.Context, puts []*KeyRecord, deletes []KeyRef) error
	// DeleteKeyRecordsByID deletes records of one type by exact id and
	// returns how many were removed.
	DeleteKeyRecordsByID(ctx context.Context, keyType string, ids ...string) (int64, error)
	// DeleteKeyRecordsMatching deletes records of one type whose opaque id
	// contains every given substring, returning how many were removed.
	DeleteKeyRecordsMatching(ctx context.Context, keyType string, substrings ...string) (int64, error)
	// ClearKeyData deletes all key records and the credentials record.
	// Used only for full re-pairing.
	ClearKeyData(ctx context.Context) error
}

// SettingsStore persists per-group moderation policy.
type SettingsStore interface {
	// GetGroupSettings returns the settings for a group, or ErrNotFound.
	GetGroupSettings(ctx context.Context, groupID string) (*GroupSettings, error)
	// UpsertGroupSettings creates or replaces the settings record.
	UpsertGroupSettings(ctx context.Context, settings *GroupSettings) error
	// DeleteGroupSettings removes the settings record for a group.
	DeleteGroupSettings(ctx context.Context, groupID string) error

	// AddBannedWord adds a word with set semantics (duplicates are ignored).
	AddBannedWord(ctx context.Context, groupID, word string) error
	// RemoveBannedWord removes a word; removing an absent word is a no-op.
	RemoveBannedWord(ctx context.Context, groupID, word string) error
	// AddWhitelist appends a bare number to the group's whitelist.
	AddWhitelist(ctx context.Context, groupID, number string) error
	// RemoveWhitelist removes a bare number from the group's whitelist.
	RemoveWhitelist(ctx context.Context, groupID, number string) error
}

// WarningStore persists per-(group, user) infraction counters.
type WarningStore interface {
	// IncrementWarning atomically creates-or-increments the counter and
	// returns the new count. Safe under concurrent increments for the
	// same pair; the increment happens in the storage layer.
	IncrementWarning(ctx context.Context, groupID, userID string) (int, error)
	// GetWarning returns the current counter, or ErrNotFound.
	GetWarning(ctx context.Context, groupID, userID string) (*UserWarning, error)
	// ResetWarning deletes the counter unconditionally.
	ResetWarning(ctx context.Context, groupID, userID string) error
}
