// ABOUTME: Persistent key store satisfying the transport collaborator's key-store contract
// ABOUTME: Get/Set/Clear over typed key records plus the singleton credentials lifecycle

package keystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/groupwarden/internal/store"
	"github.com/2389/groupwarden/internal/transport"
)

// Key record types. The vocabulary is fixed by the transport
// collaborator's protocol layer.
const (
	TypeSession         = "session"
	TypeSenderKey       = "sender-key"
	TypePreKey          = "pre-key"
	TypeAppStateSyncKey = "app-state-sync-key"
)

// compositeSep separates the logical identifiers the transport
// collaborator packs into one sender-key id string.
const compositeSep = "::"

// Store adapts the persistence layer to the key-store contract the
// transport collaborator calls into during protocol operation. It also
// holds the device's in-memory credentials between rotations.
type Store struct {
	records store.KeyRecordStore
	logger  *slog.Logger

	mu    sync.RWMutex
	creds any
}

// New creates a key store over the given record store.
func New(records store.KeyRecordStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		records: records,
		logger:  logger.With("component", "keystore"),
	}
}

// Get returns the stored values for the requested ids of one key type.
// Only ids that exist appear in the result; missing ids are never an error.
func (s *Store) Get(ctx context.Context, keyType string, ids []string) (map[string]any, error) {
	raw, err := s.records.GetKeyRecords(ctx, keyType, ids)
	if err != nil {
		return nil, fmt.Errorf("loading %s records: %w", keyType, err)
	}

	result := make(map[string]any, len(raw))
	for id, data := range raw {
		value, err := Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s record %q: %w", keyType, id, err)
		}
		result[id] = value
	}
	return result, nil
}

// Set applies a batched update: for each type, ids mapping to a value are
// upserted and ids mapping to nil are deleted. The whole update is applied
// in a single storage transaction; a failure leaves nothing partially
// written.
func (s *Store) Set(ctx context.Context, update map[string]map[string]any) error {
	var puts []*store.KeyRecord
	var deletes []store.KeyRef

	for keyType, entries := range update {
		for id, value := range entries {
			if value == nil {
				deletes = append(deletes, store.KeyRef{Type: keyType, ID: id})
				continue
			}

			data, err := Marshal(value)
			if err != nil {
				return fmt.Errorf("encoding %s record %q: %w", keyType, id, err)
			}

			rec := &store.KeyRecord{Type: keyType, ID: id, Value: data}
			if keyType == TypeSenderKey {
				rec.GroupID, rec.UserID = splitCompositeID(id)
			}
			puts = append(puts, rec)
		}
	}

	if err := s.records.ApplyKeyBatch(ctx, puts, deletes); err != nil {
		return fmt.Errorf("applying key batch: %w", err)
	}
	return nil
}

// Clear deletes all key records and credentials. Used only for full
// re-pairing.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.records.ClearKeyData(ctx); err != nil {
		return fmt.Errorf("clearing key store: %w", err)
	}

	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()

	s.logger.Info("key store cleared")
	return nil
}

// Credentials returns the in-memory credentials value, or nil when the
// device has never been paired.
func (s *Store) Credentials() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// SetCredentials replaces the in-memory credentials value. The transport
// collaborator calls this on rotation, followed by SaveCreds.
func (s *Store) SetCredentials(creds any) {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
}

// SaveCreds serializes the current in-memory credentials and upserts the
// singleton record.
func (s *Store) SaveCreds(ctx context.Context) error {
	s.mu.RLock()
	creds := s.creds
	s.mu.RUnlock()

	if creds == nil {
		return errors.New("no credentials to save")
	}

	data, err := Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := s.records.SaveCredentials(ctx, data); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	s.logger.Debug("credentials saved")
	return nil
}

// LoadCreds reads the persisted credentials into memory and returns them.
// Returns store.ErrNotFound when the device has never been paired.
func (s *Store) LoadCreds(ctx context.Context) (any, error) {
	data, err := s.records.GetCredentials(ctx)
	if err != nil {
		return nil, err
	}

	creds, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	return creds, nil
}

// DeviceCredentials is the device pairing material the transport
// rotates: the account, the device identity, and the session token.
type DeviceCredentials struct {
	UserID      string
	DeviceID    string
	AccessToken string
}

// HandleCredentials persists rotated device credentials. Registered on
// the dispatcher's credentials stream; failures are logged, never
// propagated, so a storage hiccup does not take down the transport.
func (s *Store) HandleCredentials(ctx context.Context, evt transport.CredentialsEvent) {
	s.SetCredentials(map[string]any{
		"userId":      evt.UserID,
		"deviceId":    evt.DeviceID,
		"accessToken": evt.AccessToken,
		"rotatedAt":   evt.Timestamp.Format(time.RFC3339),
	})

	if err := s.SaveCreds(ctx); err != nil {
		s.logger.Error("saving rotated credentials", "error", err)
		return
	}
	s.logger.Info("credentials rotated", "user_id", evt.UserID, "device_id", evt.DeviceID)
}

// LoadDeviceCredentials reads the persisted credentials singleton and
// projects the known fields. Returns store.ErrNotFound when the device
// has never been paired.
func (s *Store) LoadDeviceCredentials(ctx context.Context) (*DeviceCredentials, error) {
	raw, err := s.LoadCreds(ctx)
	if err != nil {
		return nil, err
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected credentials shape %T", raw)
	}

	creds := &DeviceCredentials{}
	creds.UserID, _ = m["userId"].(string)
	creds.DeviceID, _ = m["deviceId"].(string)
	creds.AccessToken, _ = m["accessToken"].(string)
	return creds, nil
}

// splitCompositeID extracts the group and bare user identifiers from a
// composite sender-key id of the form <groupID>::<userID>[::<suffix>].
// Ids without the separator yield empty components; the opaque id remains
// the contract key either way.
func splitCompositeID(id string) (groupID, userID string) {
	parts := strings.Split(id, compositeSep)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
