// ABOUTME: Owner notifications over the Matrix client
// ABOUTME: Plain notices and login artifacts delivered to the owner's account

package matrix

import (
	"context"
	"fmt"
	"net/http"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Notifier sends out-of-band notices to the owner account configured
// for the bot. The owner room is created lazily on first use.
type Notifier struct {
	client  *Client
	ownerID id.UserID

	roomID id.RoomID
}

// NewNotifier creates a notifier targeting the configured owner. It
// returns an error when no owner is configured.
func NewNotifier(client *Client) (*Notifier, error) {
	if client.cfg.OwnerID == "" {
		return nil, fmt.Errorf("no owner configured")
	}
	return &Notifier{client: client, ownerID: id.UserID(client.cfg.OwnerID)}, nil
}

// Notify sends a plain text notice to the owner's direct chat.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	roomID, err := n.ownerRoom(ctx)
	if err != nil {
		return err
	}
	return n.client.SendText(ctx, roomID.String(), text)
}

// SendPairingArtifact uploads login material and posts it to the
// owner's direct chat as an image.
func (n *Notifier) SendPairingArtifact(ctx context.Context, filename string, data []byte) error {
	roomID, err := n.ownerRoom(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	upload, err := n.client.mx.UploadBytes(ctx, data, http.DetectContentType(data))
	if err != nil {
		return fmt.Errorf("uploading artifact: %w", err)
	}

	content := &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    filename,
		URL:     upload.ContentURI.CUString(),
	}
	if _, err := n.client.mx.SendMessageEvent(ctx, roomID, event.EventMessage, content); err != nil {
		return fmt.Errorf("sending artifact: %w", err)
	}
	return nil
}

// ownerRoom returns the direct chat with the owner, creating one the
// first time.
func (n *Notifier) ownerRoom(ctx context.Context) (id.RoomID, error) {
	if n.roomID != "" {
		return n.roomID, nil
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	resp, err := n.client.mx.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Invite:   []id.UserID{n.ownerID},
		IsDirect: true,
		Preset:   "trusted_private_chat",
	})
	if err != nil {
		return "", fmt.Errorf("creating owner room: %w", err)
	}
	n.roomID = resp.RoomID
	return n.roomID, nil
}
