// ABOUTME: Tests for the admin service settings mutations
// ABOUTME: Uses a real SQLite store in a temp directory

package admin

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/groupwarden/internal/store"
)

const testGroup = "!group:example.org"

func setupService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return NewService(st, st, slog.Default()), st
}

func TestStatusDefaultsForUnknownGroup(t *testing.T) {
	svc, _ := setupService(t)

	settings, err := svc.Status(context.Background(), testGroup)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, store.DefaultMaxWarnings, settings.Threshold())
}

func TestSetEnabledCreatesRow(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetEnabled(ctx, testGroup, true))

	settings, err := st.GetGroupSettings(ctx, testGroup)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
}

func TestTogglesPreserveOtherFields(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetEnabled(ctx, testGroup, true))
	require.NoError(t, svc.SetBlockLinks(ctx, testGroup, true))
	require.NoError(t, svc.SetBlockMedia(ctx, testGroup, true))
	require.NoError(t, svc.SetWelcome(ctx, testGroup, true))
	require.NoError(t, svc.SetBlockMedia(ctx, testGroup, false))

	settings, err := svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.True(t, settings.BlockLinks)
	assert.False(t, settings.BlockMedia)
	assert.True(t, settings.Welcome)
}

func TestSetMaxWarningsValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.Error(t, svc.SetMaxWarnings(ctx, testGroup, 0))
	require.Error(t, svc.SetMaxWarnings(ctx, testGroup, -2))
	require.NoError(t, svc.SetMaxWarnings(ctx, testGroup, 5))

	settings, err := svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(t, 5, settings.Threshold())
}

func TestSetRules(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetRules(ctx, testGroup, "  Be kind.  "))
	settings, err := svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(t, "Be kind.", settings.Rules)

	require.NoError(t, svc.SetRules(ctx, testGroup, ""))
	settings, err = svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Empty(t, settings.Rules)
}

func TestBannedWordsLowercasedAndValidated(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.Error(t, svc.AddBannedWord(ctx, testGroup, "   "))
	require.NoError(t, svc.AddBannedWord(ctx, testGroup, "  CASINO "))

	settings, err := svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(t, []string{"casino"}, settings.BannedWords)

	require.NoError(t, svc.RemoveBannedWord(ctx, testGroup, "Casino"))
	settings, err = svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Empty(t, settings.BannedWords)
}

func TestWhitelistRoundTrip(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.Error(t, svc.AddWhitelist(ctx, testGroup, ""))
	require.NoError(t, svc.AddWhitelist(ctx, testGroup, "@trusted:example.org"))

	settings, err := svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(t, []string{"@trusted:example.org"}, settings.Whitelist)

	require.NoError(t, svc.RemoveWhitelist(ctx, testGroup, "@trusted:example.org"))
	settings, err = svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Empty(t, settings.Whitelist)
}

func TestWarningInspectionAndPardon(t *testing.T) {
	svc, st := setupService(t)
	ctx := context.Background()

	count, err := svc.Warning(ctx, testGroup, "@user:example.org")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = st.IncrementWarning(ctx, testGroup, "@user:example.org")
	require.NoError(t, err)
	_, err = st.IncrementWarning(ctx, testGroup, "@user:example.org")
	require.NoError(t, err)

	count, err = svc.Warning(ctx, testGroup, "@user:example.org")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, svc.ResetWarning(ctx, testGroup, "@user:example.org"))
	count, err = svc.Warning(ctx, testGroup, "@user:example.org")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
