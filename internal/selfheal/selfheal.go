// ABOUTME: Self-healing for corrupted encryption sessions
// ABOUTME: Purges stale key material on undecryptable-message signals so the transport renegotiates

package selfheal

import (
	"context"
	"log/slog"

	"github.com/2389/groupwarden/internal/keystore"
	"github.com/2389/groupwarden/internal/store"
	"github.com/2389/groupwarden/internal/transport"
)

// Healer purges stale key material when the transport layer reports that
// a recipient could not decrypt a message. Deleting the records forces
// the transport to renegotiate keys on the next exchange, recovering the
// session without manual re-pairing.
type Healer struct {
	keys          store.KeyRecordStore
	undecryptable int
	logger        *slog.Logger
}

// New creates a healer. undecryptableStatus is the transport-owned
// delivery-status code meaning "recipient could not decrypt"; its value
// is configuration keyed to the transport collaborator's version.
func New(keys store.KeyRecordStore, undecryptableStatus int, logger *slog.Logger) *Healer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Healer{
		keys:          keys,
		undecryptable: undecryptableStatus,
		logger:        logger.With("component", "selfheal"),
	}
}

// HandleReceipt inspects a delivery-status update and purges matching key
// records when it signals an undecryptable message. The purge is
// best-effort: outcomes are logged, no error ever propagates, and absence
// of matches is not an error.
func (h *Healer) HandleReceipt(ctx context.Context, evt transport.ReceiptEvent) {
	if evt.Status != h.undecryptable {
		return
	}

	if evt.IsGroup {
		h.purgeSenderKeys(ctx, evt.ChatID, evt.SenderID)
		return
	}
	h.purgeSessions(ctx, evt.ChatID)
}

// purgeSessions deletes session records for a direct chat, matching both
// the full chat identifier and its bare form.
func (h *Healer) purgeSessions(ctx context.Context, chatID string) {
	ids := []string{chatID}
	if bare := transport.BareID(chatID); bare != "" && bare != chatID {
		ids = append(ids, bare)
	}

	deleted, err := h.keys.DeleteKeyRecordsByID(ctx, keystore.TypeSession, ids...)
	if err != nil {
		h.logger.Error("session purge failed", "chat", chatID, "error", err)
		return
	}

	h.logger.Info("purged stale sessions", "chat", chatID, "deleted", deleted)
}

// purgeSenderKeys deletes sender-key records for one participant in one
// group. The transport encodes both identifiers into one composite id, so
// the match is substring-based.
func (h *Healer) purgeSenderKeys(ctx context.Context, groupID, senderID string) {
	bare := transport.BareID(senderID)
	if bare == "" {
		h.logger.Debug("no sender to purge for", "group", groupID)
		return
	}

	deleted, err := h.keys.DeleteKeyRecordsMatching(ctx, keystore.TypeSenderKey, groupID, bare)
	if err != nil {
		h.logger.Error("sender-key purge failed", "group", groupID, "sender", bare, "error", err)
		return
	}

	h.logger.Info("purged stale sender keys", "group", groupID, "sender", bare, "deleted", deleted)
}
