// ABOUTME: Typed events emitted by the messaging transport collaborator
// ABOUTME: Message, participant-change, delivery-status and credential-rotation events

package transport

import (
	"strings"
	"time"
)

// MessageKind classifies the payload of an incoming message.
type MessageKind int

const (
	KindText MessageKind = iota
	KindImage
	KindVideo
	KindAudio
	KindSticker
	KindDocument
	KindContact
	KindPoll
	KindOther
)

// IsMedia reports whether the kind counts as a media payload for the
// block-media rule.
func (k MessageKind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindSticker, KindDocument, KindContact, KindPoll:
		return true
	}
	return false
}

// String returns the kind name for logging.
func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSticker:
		return "sticker"
	case KindDocument:
		return "document"
	case KindContact:
		return "contact"
	case KindPoll:
		return "poll"
	}
	return "other"
}

// MessageEvent is one incoming message. Text carries the plain body for
// text messages and the caption for media messages; it may be empty.
type MessageEvent struct {
	ChatID    string
	SenderID  string
	MessageID string
	IsGroup   bool
	Kind      MessageKind
	Text      string
	Timestamp time.Time
}

// ParticipantAction describes a group membership change.
type ParticipantAction int

const (
	ParticipantJoined ParticipantAction = iota
	ParticipantLeft
)

// ParticipantEvent is a group membership change.
type ParticipantEvent struct {
	ChatID    string
	UserID    string
	Action    ParticipantAction
	Timestamp time.Time
}

// ReceiptEvent is a delivery-status update for a previously sent message.
// Status is a transport-owned numeric code; the code meaning
// "recipient could not decrypt" is configuration, not a constant here.
type ReceiptEvent struct {
	ChatID    string
	SenderID  string
	MessageID string
	IsGroup   bool
	Status    int
}

// CredentialsEvent signals that the transport rotated the device
// credentials. It carries the material to persist so the next start can
// resume the same device instead of pairing again.
type CredentialsEvent struct {
	UserID      string
	DeviceID    string
	AccessToken string
	Timestamp   time.Time
}

// BareID strips the sigil prefix and the domain/device suffix from a
// chat or contact identifier, e.g. "@alice:example.org" -> "alice".
// Used for loose matching against composite key ids and whitelists.
func BareID(id string) string {
	if len(id) > 0 && (id[0] == '@' || id[0] == '!' || id[0] == '+') {
		id = id[1:]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	return id
}
