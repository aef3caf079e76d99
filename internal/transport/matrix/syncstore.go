// ABOUTME: mautrix sync-token persistence backed by the key store
// ABOUTME: Filter ids and next-batch tokens survive restarts alongside the protocol keys

package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix/id"

	"github.com/2389/groupwarden/internal/transport"
)

// Key record types used for sync state.
const (
	typeFilterID  = "filter-id"
	typeNextBatch = "next-batch"
)

// SyncStore persists mautrix sync state in the same store as the
// protocol key material, so a restart resumes from the last sync token
// instead of replaying history.
type SyncStore struct {
	keys transport.KeyStore
}

// NewSyncStore creates a sync store over the key store.
func NewSyncStore(keys transport.KeyStore) *SyncStore {
	return &SyncStore{keys: keys}
}

func (s *SyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.save(ctx, typeFilterID, userID, filterID)
}

func (s *SyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, typeFilterID, userID)
}

func (s *SyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, token string) error {
	return s.save(ctx, typeNextBatch, userID, token)
}

func (s *SyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, typeNextBatch, userID)
}

func (s *SyncStore) save(ctx context.Context, keyType string, userID id.UserID, value string) error {
	return s.keys.Set(ctx, map[string]map[string]any{
		keyType: {userID.String(): value},
	})
}

func (s *SyncStore) load(ctx context.Context, keyType string, userID id.UserID) (string, error) {
	values, err := s.keys.Get(ctx, keyType, []string{userID.String()})
	if err != nil {
		return "", err
	}
	raw, ok := values[userID.String()]
	if !ok {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s value type %T", keyType, raw)
	}
	return value, nil
}
