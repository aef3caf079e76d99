// ABOUTME: Tests for the chat command front end
// ABOUTME: Drives command parsing and admin gating with a fake transport client

package admin

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/groupwarden/internal/transport"
)

const (
	testAdmin  = "@boss:example.org"
	testMember = "@member:example.org"
)

type fakeClient struct {
	mu    sync.Mutex
	meta  map[string]*transport.GroupMetadata
	texts []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		meta: map[string]*transport.GroupMetadata{
			testGroup: {
				ID: testGroup,
				Members: []transport.GroupMember{
					{UserID: testAdmin, IsAdmin: true},
					{UserID: testMember},
				},
			},
		},
	}
}

func (c *fakeClient) SendText(_ context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeClient) SendMention(_ context.Context, chatID, text string, mentions []string) error {
	return nil
}

func (c *fakeClient) DeleteForEveryone(_ context.Context, chatID, messageID string) error {
	return nil
}

func (c *fakeClient) RemoveParticipant(_ context.Context, chatID, userID string) error {
	return nil
}

func (c *fakeClient) GroupMetadata(_ context.Context, chatID string) (*transport.GroupMetadata, error) {
	return c.meta[chatID], nil
}

func (c *fakeClient) DisplayName(_ context.Context, userID string) (string, error) {
	return transport.BareID(userID), nil
}

func (c *fakeClient) SelfID() string { return "@warden:example.org" }

func setupCommands(t *testing.T) (*Commands, *Service, *fakeClient) {
	t.Helper()
	svc, _ := setupService(t)
	client := newFakeClient()
	return NewCommands(svc, client, slog.Default()), svc, client
}

func command(sender, text string) transport.MessageEvent {
	return transport.MessageEvent{
		ChatID:   testGroup,
		SenderID: sender,
		IsGroup:  true,
		Kind:     transport.KindText,
		Text:     text,
	}
}

func TestCommandsIgnoreRegularMessages(t *testing.T) {
	cmds, _, client := setupCommands(t)

	cmds.HandleMessage(context.Background(), command(testAdmin, "good morning"))
	cmds.HandleMessage(context.Background(), command(testAdmin, "warden, do something"))

	assert.Empty(t, client.texts)
}

func TestCommandsIgnoreNonAdmins(t *testing.T) {
	cmds, svc, client := setupCommands(t)

	cmds.HandleMessage(context.Background(), command(testMember, "!warden on"))

	assert.Empty(t, client.texts, "non-admin commands get no reply")
	settings, err := svc.Status(context.Background(), testGroup)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
}

func TestCommandsEnableDisable(t *testing.T) {
	cmds, svc, client := setupCommands(t)
	ctx := context.Background()

	cmds.HandleMessage(ctx, command(testAdmin, "!warden on"))
	settings, err := svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)

	cmds.HandleMessage(ctx, command(testAdmin, "!warden off"))
	settings, err = svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.False(t, settings.Enabled)

	require.Len(t, client.texts, 2)
	assert.Contains(t, client.texts[0], "enabled")
	assert.Contains(t, client.texts[1], "disabled")
}

func TestCommandsToggleAndStatus(t *testing.T) {
	cmds, _, client := setupCommands(t)
	ctx := context.Background()

	cmds.HandleMessage(ctx, command(testAdmin, "!warden links on"))
	cmds.HandleMessage(ctx, command(testAdmin, "!warden media on"))
	cmds.HandleMessage(ctx, command(testAdmin, "!warden status"))

	require.Len(t, client.texts, 3)
	status := client.texts[2]
	assert.Contains(t, status, "Block links: on")
	assert.Contains(t, status, "Block media: on")
	assert.Contains(t, status, "Moderation: off")
}

func TestCommandsBanUnban(t *testing.T) {
	cmds, svc, _ := setupCommands(t)
	ctx := context.Background()

	cmds.HandleMessage(ctx, command(testAdmin, "!warden ban Casino"))
	settings, err := svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(t, []string{"casino"}, settings.BannedWords)

	cmds.HandleMessage(ctx, command(testAdmin, "!warden unban casino"))
	settings, err = svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Empty(t, settings.BannedWords)
}

func TestCommandsMaxwarn(t *testing.T) {
	cmds, svc, client := setupCommands(t)
	ctx := context.Background()

	cmds.HandleMessage(ctx, command(testAdmin, "!warden maxwarn nope"))
	require.Len(t, client.texts, 1)
	assert.Contains(t, client.texts[0], "Usage")

	cmds.HandleMessage(ctx, command(testAdmin, "!warden maxwarn 2"))
	settings, err := svc.Status(ctx, testGroup)
	require.NoError(t, err)
	assert.Equal(t, 2, settings.Threshold())
}

func TestCommandsPardon(t *testing.T) {
	cmds, svc, client := setupCommands(t)
	ctx := context.Background()

	cmds.HandleMessage(ctx, command(testAdmin, "!warden warnings @user:example.org"))
	require.Len(t, client.texts, 1)
	assert.Contains(t, client.texts[0], "0 warning")

	cmds.HandleMessage(ctx, command(testAdmin, "!warden pardon @user:example.org"))
	require.Len(t, client.texts, 2)
	assert.Contains(t, client.texts[1], "cleared")

	count, err := svc.Warning(ctx, testGroup, "@user:example.org")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCommandsHelpAndUnknown(t *testing.T) {
	cmds, _, client := setupCommands(t)
	ctx := context.Background()

	cmds.HandleMessage(ctx, command(testAdmin, "!warden help"))
	cmds.HandleMessage(ctx, command(testAdmin, "!warden"))
	cmds.HandleMessage(ctx, command(testAdmin, "!warden frobnicate"))

	require.Len(t, client.texts, 3)
	assert.Contains(t, client.texts[0], "Moderation commands")
	assert.Contains(t, client.texts[1], "Moderation commands")
	assert.Contains(t, client.texts[2], "Unknown command")
}
