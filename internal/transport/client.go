// ABOUTME: Capability interfaces consumed from the messaging transport collaborator
// ABOUTME: Send/delete/remove/metadata operations plus the key-store contract the transport calls into

package transport

import "context"

// GroupMember is one participant of a group with its admin flag.
type GroupMember struct {
	UserID      string
	DisplayName string
	IsAdmin     bool
}

// GroupMetadata is the minimal group state the moderation engine needs.
type GroupMetadata struct {
	ID      string
	Subject string
	Members []GroupMember
}

// IsAdmin reports whether the given user holds administrative capability
// in the group.
func (m *GroupMetadata) IsAdmin(userID string) bool {
	for _, member := range m.Members {
		if member.UserID == userID {
			return member.IsAdmin
		}
	}
	return false
}

// Client is the command capability the moderation engine and the admin
// channel consume from the transport collaborator. Implementations carry
// their own operation timeouts; a timed-out call returns an error and is
// never fatal.
type Client interface {
	// SendText sends a plain text message to a chat.
	SendText(ctx context.Context, chatID, text string) error
	// SendMention sends a text message mentioning the given users.
	SendMention(ctx context.Context, chatID, text string, mentions []string) error
	// DeleteForEveryone retracts a message for all participants.
	DeleteForEveryone(ctx context.Context, chatID, messageID string) error
	// RemoveParticipant removes a user from a group.
	RemoveParticipant(ctx context.Context, chatID, userID string) error
	// GroupMetadata fetches the subject and participant list of a group.
	GroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error)
	// DisplayName resolves a contact's display name; implementations fall
	// back to the bare identifier when the contact is unknown.
	DisplayName(ctx context.Context, userID string) (string, error)
	// SelfID returns the bot's own account identifier.
	SelfID() string
}

// KeyStore is the contract the transport collaborator calls into during
// protocol operation. Satisfied by the keystore package.
type KeyStore interface {
	Get(ctx context.Context, keyType string, ids []string) (map[string]any, error)
	Set(ctx context.Context, update map[string]map[string]any) error
	Clear(ctx context.Context) error
	SaveCreds(ctx context.Context) error
}
