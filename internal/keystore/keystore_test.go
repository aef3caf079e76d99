// ABOUTME: Tests for the key store contract over a real SQLite record store
// ABOUTME: Covers batched updates, composite ids, and the credentials lifecycle

package keystore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/groupwarden/internal/store"
	"github.com/2389/groupwarden/internal/transport"
)

// setupKeyStore creates a key store backed by a temporary SQLite store.
func setupKeyStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sqlStore, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return New(sqlStore, nil)
}

func TestKeyStore_SetGet_RoundTrip(t *testing.T) {
	ks := setupKeyStore(t)
	ctx := context.Background()

	session := map[string]any{
		"registrationId": float64(117),
		"currentRatchet": map[string]any{
			"rootKey":    []byte{0x10, 0x20, 0x30},
			"ephemeral":  []byte{0xff, 0x00, 0xff},
			"counter":    float64(3),
			"remoteName": "@alice:example.org",
		},
	}

	err := ks.Set(ctx, map[string]map[string]any{
		TypeSession: {"@alice:example.org": session},
	})
	require.NoError(t, err)

	got, err := ks.Get(ctx, TypeSession, []string{"@alice:example.org"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, session, got["@alice:example.org"])
}

func TestKeyStore_Get_MissingIDsAbsent(t *testing.T) {
	ks := setupKeyStore(t)
	ctx := context.Background()

	err := ks.Set(ctx, map[string]map[string]any{
		TypePreKey: {"1": map[string]any{"public": []byte{0x01}}},
	})
	require.NoError(t, err)

	got, err := ks.Get(ctx, TypePreKey, []string{"1", "2", "3"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	_, ok := got["2"]
	assert.False(t, ok)
}

func TestKeyStore_Set_NilValueDeletes(t *testing.T) {
	ks := setupKeyStore(t)
	ctx := context.Background()

	err := ks.Set(ctx, map[string]map[string]any{
		TypePreKey: {
			"1": map[string]any{"public": []byte{0x01}},
			"2": map[string]any{"public": []byte{0x02}},
		},
	})
	require.NoError(t, err)

	// Upsert one and delete the other in the same batched update
	err = ks.Set(ctx, map[string]map[string]any{
		TypePreKey: {
			"1": map[string]any{"public": []byte{0x11}},
			"2": nil,
		},
	})
	require.NoError(t, err)

	got, err := ks.Get(ctx, TypePreKey, []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"public": []byte{0x11}}, got["1"])
}

func TestKeyStore_Set_SenderKeyDenormalizesCompositeID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	sqlStore, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	ks := New(sqlStore, nil)
	ctx := context.Background()

	err = ks.Set(ctx, map[string]map[string]any{
		TypeSenderKey: {
			"!group:example.org::alice::1": map[string]any{"chainKey": []byte{0x01}},
		},
	})
	require.NoError(t, err)

	// The purge path locates the record through the composite id parts
	deleted, err := sqlStore.DeleteKeyRecordsMatching(ctx, TypeSenderKey, "!group:example.org", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestKeyStore_Clear(t *testing.T) {
	ks := setupKeyStore(t)
	ctx := context.Background()

	ks.SetCredentials(map[string]any{"noiseKey": []byte{0x01}})
	require.NoError(t, ks.SaveCreds(ctx))
	require.NoError(t, ks.Set(ctx, map[string]map[string]any{
		TypeSession: {"@alice:example.org": map[string]any{"k": []byte{0x01}}},
	}))

	require.NoError(t, ks.Clear(ctx))

	assert.Nil(t, ks.Credentials())
	_, err := ks.LoadCreds(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := ks.Get(ctx, TypeSession, []string{"@alice:example.org"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKeyStore_Credentials_SaveAndLoad(t *testing.T) {
	ks := setupKeyStore(t)
	ctx := context.Background()

	creds := map[string]any{
		"noiseKey":       []byte{0xaa, 0xbb},
		"signedIdentity": map[string]any{"private": []byte{0x01}, "public": []byte{0x02}},
		"me":             map[string]any{"id": "@warden:example.org"},
	}

	ks.SetCredentials(creds)
	require.NoError(t, ks.SaveCreds(ctx))

	// A fresh store instance simulates process restart
	fresh := New(ks.records, nil)
	loaded, err := fresh.LoadCreds(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds, loaded)
	assert.Equal(t, creds, fresh.Credentials())
}

func TestKeyStore_SaveCreds_WithoutCredentials(t *testing.T) {
	ks := setupKeyStore(t)

	err := ks.SaveCreds(context.Background())
	assert.Error(t, err)
}

func TestKeyStore_HandleCredentials_PersistsRotation(t *testing.T) {
	ks := setupKeyStore(t)
	ctx := context.Background()

	ks.HandleCredentials(ctx, transport.CredentialsEvent{
		UserID:      "@warden:example.org",
		DeviceID:    "DEVICEONE",
		AccessToken: "syt_first",
		Timestamp:   time.Now(),
	})

	// A fresh store instance simulates process restart
	fresh := New(ks.records, nil)
	creds, err := fresh.LoadDeviceCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "@warden:example.org", creds.UserID)
	assert.Equal(t, "DEVICEONE", creds.DeviceID)
	assert.Equal(t, "syt_first", creds.AccessToken)
}

func TestKeyStore_HandleCredentials_RotationOverwrites(t *testing.T) {
	ks := setupKeyStore(t)
	ctx := context.Background()

	ks.HandleCredentials(ctx, transport.CredentialsEvent{
		UserID:      "@warden:example.org",
		DeviceID:    "DEVICEONE",
		AccessToken: "syt_first",
		Timestamp:   time.Now(),
	})
	ks.HandleCredentials(ctx, transport.CredentialsEvent{
		UserID:      "@warden:example.org",
		DeviceID:    "DEVICETWO",
		AccessToken: "syt_second",
		Timestamp:   time.Now(),
	})

	creds, err := New(ks.records, nil).LoadDeviceCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "DEVICETWO", creds.DeviceID)
	assert.Equal(t, "syt_second", creds.AccessToken)
}

func TestKeyStore_LoadDeviceCredentials_NeverPaired(t *testing.T) {
	ks := setupKeyStore(t)

	_, err := ks.LoadDeviceCredentials(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSplitCompositeID(t *testing.T) {
	tests := []struct {
		id        string
		wantGroup string
		wantUser  string
	}{
		{"!group:example.org::alice::1", "!group:example.org", "alice"},
		{"!group:example.org::alice", "!group:example.org", "alice"},
		{"@direct:example.org", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			group, user := splitCompositeID(tt.id)
			assert.Equal(t, tt.wantGroup, group)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}
