// ABOUTME: Tests for the moderation engine rule ordering and escalation flow
// ABOUTME: Drives the engine with a fake transport client over a real SQLite store

package moderation

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/groupwarden/internal/store"
	"github.com/2389/groupwarden/internal/transport"
)

const (
	testGroup = "!moderated:example.org"
	testBot   = "@warden:example.org"
	testUser  = "@spammer:example.org"
)

type fakeClient struct {
	mu        sync.Mutex
	selfID    string
	meta      map[string]*transport.GroupMetadata
	metaErr   error
	deleteErr error
	removeErr error
	texts     []string
	mentions  []string
	deleted   []string
	removed   []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		selfID: testBot,
		meta:   make(map[string]*transport.GroupMetadata),
	}
}

func (c *fakeClient) SendText(_ context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeClient) SendMention(_ context.Context, chatID, text string, mentions []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mentions = append(c.mentions, text)
	return nil
}

func (c *fakeClient) DeleteForEveryone(_ context.Context, chatID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, messageID)
	return nil
}

func (c *fakeClient) RemoveParticipant(_ context.Context, chatID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removeErr != nil {
		return c.removeErr
	}
	c.removed = append(c.removed, userID)
	return nil
}

func (c *fakeClient) GroupMetadata(_ context.Context, chatID string) (*transport.GroupMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metaErr != nil {
		return nil, c.metaErr
	}
	meta, ok := c.meta[chatID]
	if !ok {
		return nil, errors.New("unknown group")
	}
	return meta, nil
}

func (c *fakeClient) DisplayName(_ context.Context, userID string) (string, error) {
	return transport.BareID(userID), nil
}

func (c *fakeClient) SelfID() string { return c.selfID }

// groupWithBotAdmin seeds metadata where the bot holds admin.
func (c *fakeClient) groupWithBotAdmin() {
	c.meta[testGroup] = &transport.GroupMetadata{
		ID:      testGroup,
		Subject: "Test Group",
		Members: []transport.GroupMember{
			{UserID: testBot, IsAdmin: true},
			{UserID: testUser},
		},
	}
}

func setupEngine(t *testing.T) (*Engine, *store.SQLiteStore, *fakeClient) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	client := newFakeClient()
	client.groupWithBotAdmin()

	engine := New(st, st, client, NewCooldown(10*time.Minute), slog.Default())
	return engine, st, client
}

func enableGroup(t *testing.T, st *store.SQLiteStore, mutate func(*store.GroupSettings)) {
	t.Helper()
	settings := store.NewGroupSettings(testGroup)
	settings.Enabled = true
	if mutate != nil {
		mutate(settings)
	}
	require.NoError(t, st.UpsertGroupSettings(context.Background(), settings))
}

func textMessage(id, text string) transport.MessageEvent {
	return transport.MessageEvent{
		ChatID:    testGroup,
		SenderID:  testUser,
		MessageID: id,
		IsGroup:   true,
		Kind:      transport.KindText,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestEngineIgnoresDirectChats(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) { s.BlockLinks = true })

	evt := textMessage("m1", "https://example.com")
	evt.IsGroup = false
	evt.ChatID = testUser
	engine.HandleMessage(context.Background(), evt)

	assert.Empty(t, client.deleted)
}

func TestEngineIgnoresUnmoderatedGroup(t *testing.T) {
	engine, _, client := setupEngine(t)

	engine.HandleMessage(context.Background(), textMessage("m1", "https://example.com"))

	assert.Empty(t, client.deleted)
	assert.Empty(t, client.texts)
}

func TestEngineIgnoresDisabledGroup(t *testing.T) {
	engine, st, client := setupEngine(t)
	settings := store.NewGroupSettings(testGroup)
	settings.BlockLinks = true
	require.NoError(t, st.UpsertGroupSettings(context.Background(), settings))

	engine.HandleMessage(context.Background(), textMessage("m1", "https://example.com"))

	assert.Empty(t, client.deleted)
}

func TestEngineIgnoresOwnMessages(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) { s.BlockLinks = true })

	evt := textMessage("m1", "https://example.com")
	evt.SenderID = testBot
	engine.HandleMessage(context.Background(), evt)

	assert.Empty(t, client.deleted)
}

func TestEngineAdvisoryWhenNotAdmin(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) { s.BlockLinks = true })
	client.meta[testGroup].Members[0].IsAdmin = false

	engine.HandleMessage(context.Background(), textMessage("m1", "https://example.com"))
	engine.HandleMessage(context.Background(), textMessage("m2", "https://example.com"))
	engine.HandleMessage(context.Background(), textMessage("m3", "hello"))

	// exactly one advisory within the cooldown window, no deletions
	require.Len(t, client.texts, 1)
	assert.Contains(t, client.texts[0], "admin")
	assert.Empty(t, client.deleted)
}

func TestEngineWhitelistBypassesAllRules(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) {
		s.BlockLinks = true
		s.BlockMedia = true
		s.BannedWords = []string{"spam"}
		s.Whitelist = []string{"spammer"}
	})

	evt := textMessage("m1", "spam https://example.com")
	evt.Kind = transport.KindImage
	engine.HandleMessage(context.Background(), evt)

	assert.Empty(t, client.deleted)
	assert.Empty(t, client.mentions)
}

func TestEngineDeletesLinkAndWarns(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) { s.BlockLinks = true })

	engine.HandleMessage(context.Background(), textMessage("m1", "join https://example.com/group"))

	require.Equal(t, []string{"m1"}, client.deleted)
	require.Len(t, client.mentions, 1)
	assert.Contains(t, client.mentions[0], "link")
	assert.Contains(t, client.mentions[0], "1 of 3")

	warning, err := st.GetWarning(context.Background(), testGroup, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, warning.Count)
}

func TestEngineBlocksMedia(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) { s.BlockMedia = true })

	evt := textMessage("m1", "")
	evt.Kind = transport.KindSticker
	engine.HandleMessage(context.Background(), evt)

	require.Equal(t, []string{"m1"}, client.deleted)
	require.Len(t, client.mentions, 1)
	assert.Contains(t, client.mentions[0], "media")
}

func TestEngineBannedWordNormalized(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) { s.BannedWords = []string{"casino"} })

	engine.HandleMessage(context.Background(), textMessage("m1", "Visit our CASÍNO tonight"))

	require.Equal(t, []string{"m1"}, client.deleted)
	require.Len(t, client.mentions, 1)
	assert.Contains(t, client.mentions[0], "banned word")
}

func TestEngineCleanMessagePasses(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) {
		s.BlockLinks = true
		s.BlockMedia = true
		s.BannedWords = []string{"spam"}
	})

	engine.HandleMessage(context.Background(), textMessage("m1", "good morning everyone"))

	assert.Empty(t, client.deleted)
	assert.Empty(t, client.mentions)
}

func TestEngineMediaRuleBeatsBannedWordOnCaption(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) {
		s.BlockMedia = true
		s.BannedWords = []string{"spam"}
	})

	evt := textMessage("m1", "spam caption")
	evt.Kind = transport.KindImage
	engine.HandleMessage(context.Background(), evt)

	require.Len(t, client.mentions, 1)
	assert.Contains(t, client.mentions[0], "media")
	assert.NotContains(t, client.mentions[0], "banned word")
}

func TestEngineEscalatesToRemoval(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) {
		s.BlockLinks = true
		s.MaxWarnings = 2
	})

	engine.HandleMessage(context.Background(), textMessage("m1", "https://a.example"))
	require.Len(t, client.mentions, 1)
	assert.Contains(t, client.mentions[0], "1 of 2")
	assert.Empty(t, client.removed)

	engine.HandleMessage(context.Background(), textMessage("m2", "https://b.example"))
	require.Equal(t, []string{testUser}, client.removed)
	require.Len(t, client.mentions, 2)
	assert.Contains(t, client.mentions[1], "removed after reaching 2 warnings")

	// ledger reset after removal: if they come back, counting starts over
	_, err := st.GetWarning(context.Background(), testGroup, testUser)
	assert.ErrorIs(t, err, store.ErrNotFound)

	engine.HandleMessage(context.Background(), textMessage("m3", "https://c.example"))
	require.Len(t, client.mentions, 3)
	assert.Contains(t, client.mentions[2], "1 of 2")
}

func TestEngineFailedDeleteSkipsWarning(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) { s.BlockLinks = true })
	client.deleteErr = errors.New("message too old")

	engine.HandleMessage(context.Background(), textMessage("m1", "https://example.com"))

	assert.Empty(t, client.mentions)
	_, err := st.GetWarning(context.Background(), testGroup, testUser)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngineFailedRemovalKeepsLedger(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) {
		s.BlockLinks = true
		s.MaxWarnings = 1
	})
	client.removeErr = errors.New("forbidden")

	engine.HandleMessage(context.Background(), textMessage("m1", "https://example.com"))

	assert.Empty(t, client.removed)
	warning, err := st.GetWarning(context.Background(), testGroup, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, warning.Count)

	// next violation retries the removal
	client.removeErr = nil
	engine.HandleMessage(context.Background(), textMessage("m2", "https://example.com"))
	assert.Equal(t, []string{testUser}, client.removed)
}

func TestEngineWelcomeNotice(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) {
		s.Welcome = true
		s.Rules = "Be kind."
	})

	engine.HandleParticipant(context.Background(), transport.ParticipantEvent{
		ChatID: testGroup,
		UserID: "@newcomer:example.org",
		Action: transport.ParticipantJoined,
	})

	require.Len(t, client.mentions, 1)
	assert.Contains(t, client.mentions[0], "Welcome, newcomer")
	assert.Contains(t, client.mentions[0], "Be kind.")
}

func TestEngineFarewellNotice(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, func(s *store.GroupSettings) { s.Farewell = true })

	engine.HandleParticipant(context.Background(), transport.ParticipantEvent{
		ChatID: testGroup,
		UserID: testUser,
		Action: transport.ParticipantLeft,
	})

	require.Len(t, client.texts, 1)
	assert.Contains(t, client.texts[0], "spammer")
	assert.Contains(t, client.texts[0], "left")
}

func TestEngineGreetingsOffByDefault(t *testing.T) {
	engine, st, client := setupEngine(t)
	enableGroup(t, st, nil)

	engine.HandleParticipant(context.Background(), transport.ParticipantEvent{
		ChatID: testGroup,
		UserID: "@newcomer:example.org",
		Action: transport.ParticipantJoined,
	})
	engine.HandleParticipant(context.Background(), transport.ParticipantEvent{
		ChatID: testGroup,
		UserID: testUser,
		Action: transport.ParticipantLeft,
	})

	assert.Empty(t, client.texts)
	assert.Empty(t, client.mentions)
}
