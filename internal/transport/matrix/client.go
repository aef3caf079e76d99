// ABOUTME: Matrix implementation of the transport client and event pump
// ABOUTME: Wraps mautrix, maps sync events onto the dispatcher, and serves moderation commands

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/groupwarden/internal/transport"
)

// networkTimeout bounds individual Matrix API calls so a stalled
// homeserver cannot wedge a moderation action.
const networkTimeout = 30 * time.Second

// Config carries the connection settings for the Matrix client.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// DeviceID pins the device identity from a previous pairing so the
	// crypto store keeps matching across restarts. Empty on first run.
	DeviceID string
	// Username and Password are used for a fresh login when no access
	// token is stored yet.
	Username string
	Password string
	// OwnerID is the account that receives out-of-band notices.
	OwnerID string
	// UndecryptableStatus is the receipt status code emitted for events
	// the client failed to decrypt.
	UndecryptableStatus int
}

// Client connects to a Matrix homeserver and feeds sync events into the
// dispatcher. It implements the transport client interface consumed by
// the moderation engine and the admin command channel.
type Client struct {
	cfg        Config
	mx         *mautrix.Client
	dispatcher *transport.Dispatcher
	crypto     *cryptohelper.CryptoHelper
	logger     *slog.Logger

	mu        sync.Mutex
	roomSizes map[id.RoomID]int
}

// NewClient creates a Matrix client backed by the given key store for
// sync-token persistence. Events are delivered through the dispatcher.
func NewClient(cfg Config, keys transport.KeyStore, dispatcher *transport.Dispatcher, logger *slog.Logger) (*Client, error) {
	mx, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	mx.Store = NewSyncStore(keys)
	if cfg.DeviceID != "" {
		mx.DeviceID = id.DeviceID(cfg.DeviceID)
	}

	c := &Client{
		cfg:        cfg,
		mx:         mx,
		dispatcher: dispatcher,
		logger:     logger.With("component", "matrix"),
		roomSizes:  make(map[id.RoomID]int),
	}

	syncer, ok := mx.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return nil, fmt.Errorf("unexpected syncer type: %T", mx.Syncer)
	}
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.EventSticker, c.handleMessage)
	syncer.OnEventType(event.EventEncrypted, c.handleEncrypted)
	syncer.OnEventType(event.StateMember, c.handleMember)

	return c, nil
}

// Login authenticates with username and password when no access token
// is configured. The resulting token is stored on the client for the
// lifetime of the process; persisting it is the caller's concern.
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.AccessToken != "" {
		return nil
	}
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return fmt.Errorf("no access token and no username/password configured")
	}

	resp, err := c.mx.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: c.cfg.Username,
		},
		Password:         c.cfg.Password,
		StoreCredentials: true,
	})
	if err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	c.logger.Info("logged in", "user_id", resp.UserID, "device_id", resp.DeviceID)
	c.dispatcher.DispatchCredentials(ctx, transport.CredentialsEvent{
		UserID:      resp.UserID.String(),
		DeviceID:    resp.DeviceID.String(),
		AccessToken: resp.AccessToken,
		Timestamp:   time.Now(),
	})
	return nil
}

// AccessToken returns the current access token, which may have been
// obtained by Login.
func (c *Client) AccessToken() string {
	return c.mx.AccessToken
}

// Run starts the sync loop and blocks until the context is cancelled or
// syncing fails.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("starting sync", "homeserver", c.cfg.Homeserver, "user_id", c.SelfID())

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- c.mx.SyncWithContext(ctx)
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("sync stopped")
		return nil
	case err := <-syncErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("matrix sync: %w", err)
		}
		return nil
	}
}

// SelfID returns the bot's Matrix user id.
func (c *Client) SelfID() string {
	return c.mx.UserID.String()
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := c.mx.SendText(ctx, id.RoomID(chatID), text); err != nil {
		return fmt.Errorf("sending text: %w", err)
	}
	return nil
}

// SendMention sends a text message that mentions the given users.
func (c *Client) SendMention(ctx context.Context, chatID, text string, mentions []string) error {
	userIDs := make([]id.UserID, len(mentions))
	for i, m := range mentions {
		userIDs[i] = id.UserID(m)
	}
	content := &event.MessageEventContent{
		MsgType:  event.MsgText,
		Body:     text,
		Mentions: &event.Mentions{UserIDs: userIDs},
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := c.mx.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending mention: %w", err)
	}
	return nil
}

// DeleteForEveryone redacts a message in the room.
func (c *Client) DeleteForEveryone(ctx context.Context, chatID, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	_, err := c.mx.RedactEvent(ctx, id.RoomID(chatID), id.EventID(messageID), mautrix.ReqRedact{
		Reason: "moderation",
	})
	if err != nil {
		return fmt.Errorf("redacting event: %w", err)
	}
	return nil
}

// RemoveParticipant kicks a user from the room.
func (c *Client) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	_, err := c.mx.KickUser(ctx, id.RoomID(chatID), &mautrix.ReqKickUser{
		UserID: id.UserID(userID),
		Reason: "exceeded warning limit",
	})
	if err != nil {
		return fmt.Errorf("kicking user: %w", err)
	}
	return nil
}

// GroupMetadata builds the member list from joined members and marks as
// admin everyone whose power level allows kicking.
func (c *Client) GroupMetadata(ctx context.Context, chatID string) (*transport.GroupMetadata, error) {
	roomID := id.RoomID(chatID)

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	joined, err := c.mx.JoinedMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetching joined members: %w", err)
	}
	c.rememberRoomSize(roomID, len(joined.Joined))

	var levels event.PowerLevelsEventContent
	if err := c.mx.StateEvent(ctx, roomID, event.StatePowerLevels, "", &levels); err != nil {
		return nil, fmt.Errorf("fetching power levels: %w", err)
	}
	adminLevel := levels.Kick()

	var name event.RoomNameEventContent
	if err := c.mx.StateEvent(ctx, roomID, event.StateRoomName, "", &name); err != nil {
		// Rooms without a name event are fine.
		name.Name = ""
	}

	meta := &transport.GroupMetadata{
		ID:      chatID,
		Subject: name.Name,
		Members: make([]transport.GroupMember, 0, len(joined.Joined)),
	}
	for userID, member := range joined.Joined {
		display := member.DisplayName
		meta.Members = append(meta.Members, transport.GroupMember{
			UserID:      userID.String(),
			DisplayName: display,
			IsAdmin:     levels.GetUserLevel(userID) >= adminLevel,
		})
	}
	return meta, nil
}

// DisplayName resolves a user's profile name, falling back to the bare
// identifier.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	resp, err := c.mx.GetDisplayName(ctx, id.UserID(userID))
	if err != nil || resp == nil || resp.DisplayName == "" {
		return transport.BareID(userID), nil
	}
	return resp.DisplayName, nil
}

// handleMessage maps an incoming room message onto a transport event.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.mx.UserID {
		return
	}

	kind := transport.KindOther
	text := ""

	if evt.Type == event.EventSticker {
		kind = transport.KindSticker
	} else if content, ok := evt.Content.Parsed.(*event.MessageEventContent); ok {
		// Notices are bot output, not member speech.
		if content.MsgType == event.MsgNotice {
			return
		}
		kind = kindFromMsgType(content.MsgType)
		text = content.Body
	}

	c.dispatcher.DispatchMessage(ctx, transport.MessageEvent{
		ChatID:    evt.RoomID.String(),
		SenderID:  evt.Sender.String(),
		MessageID: evt.ID.String(),
		IsGroup:   c.isGroupRoom(ctx, evt.RoomID),
		Kind:      kind,
		Text:      text,
		Timestamp: time.UnixMilli(evt.Timestamp),
	})
}

// handleEncrypted fires for encrypted events reaching the syncer. When
// encryption is enabled the crypto layer owns these events: it decrypts
// and re-dispatches them, reporting failures through its error callback.
// Without it every encrypted event is undecryptable by definition.
func (c *Client) handleEncrypted(ctx context.Context, evt *event.Event) {
	if c.crypto != nil {
		return
	}
	c.reportUndecryptable(ctx, evt, nil)
}

// reportUndecryptable surfaces a decryption failure as a receipt event
// with the configured undecryptable status so the self-heal layer can
// purge stale key material.
func (c *Client) reportUndecryptable(ctx context.Context, evt *event.Event, cause error) {
	c.logger.Warn("undecryptable event",
		"room_id", evt.RoomID.String(),
		"event_id", evt.ID.String(),
		"sender", evt.Sender.String(),
		"error", cause)

	c.dispatcher.DispatchReceipt(ctx, transport.ReceiptEvent{
		ChatID:    evt.RoomID.String(),
		SenderID:  evt.Sender.String(),
		MessageID: evt.ID.String(),
		IsGroup:   c.isGroupRoom(ctx, evt.RoomID),
		Status:    c.cfg.UndecryptableStatus,
	})
}

// handleMember maps membership state changes onto participant events.
func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	content, ok := evt.Content.Parsed.(*event.MemberEventContent)
	if !ok || evt.StateKey == nil {
		return
	}
	c.forgetRoomSize(evt.RoomID)

	var action transport.ParticipantAction
	switch content.Membership {
	case event.MembershipJoin:
		action = transport.ParticipantJoined
	case event.MembershipLeave, event.MembershipBan:
		action = transport.ParticipantLeft
	default:
		return
	}

	c.dispatcher.DispatchParticipant(ctx, transport.ParticipantEvent{
		ChatID:    evt.RoomID.String(),
		UserID:    *evt.StateKey,
		Action:    action,
		Timestamp: time.UnixMilli(evt.Timestamp),
	})
}

// isGroupRoom treats rooms with more than two joined members as groups.
// Sizes are cached and invalidated on membership changes.
func (c *Client) isGroupRoom(ctx context.Context, roomID id.RoomID) bool {
	c.mu.Lock()
	size, ok := c.roomSizes[roomID]
	c.mu.Unlock()
	if ok {
		return size > 2
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	joined, err := c.mx.JoinedMembers(ctx, roomID)
	if err != nil {
		c.logger.Error("fetching joined members", "room_id", roomID.String(), "error", err)
		return false
	}
	c.rememberRoomSize(roomID, len(joined.Joined))
	return len(joined.Joined) > 2
}

func (c *Client) rememberRoomSize(roomID id.RoomID, size int) {
	c.mu.Lock()
	c.roomSizes[roomID] = size
	c.mu.Unlock()
}

func (c *Client) forgetRoomSize(roomID id.RoomID) {
	c.mu.Lock()
	delete(c.roomSizes, roomID)
	c.mu.Unlock()
}

// kindFromMsgType maps Matrix message types onto transport kinds.
func kindFromMsgType(msgType event.MessageType) transport.MessageKind {
	switch msgType {
	case event.MsgText, event.MsgEmote:
		return transport.KindText
	case event.MsgImage:
		return transport.KindImage
	case event.MsgVideo:
		return transport.KindVideo
	case event.MsgAudio:
		return transport.KindAudio
	case event.MsgFile:
		return transport.KindDocument
	}
	return transport.KindOther
}

var _ transport.Client = (*Client)(nil)
