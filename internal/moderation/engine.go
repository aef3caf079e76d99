// ABOUTME: Group moderation engine applying ordered rules to incoming messages
// ABOUTME: Deletes violations, escalates the warning ledger, and removes repeat offenders

package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/groupwarden/internal/store"
	"github.com/2389/groupwarden/internal/transport"
)

// adminNotice is sent at most once per cooldown window when the bot
// lacks admin capability in a moderated group.
const adminNotice = "I need admin privileges in this group to moderate it. Please promote me or disable moderation."

// Violation identifies which rule a message broke. Used in warning
// notices and logs.
type Violation string

const (
	ViolationLink       Violation = "link"
	ViolationMedia      Violation = "media"
	ViolationBannedWord Violation = "banned word"
)

// Engine evaluates group messages against the group's moderation
// settings and carries out the delete/warn/remove sequence. It is
// registered on the transport dispatcher as a message handler.
type Engine struct {
	settings store.SettingsStore
	warnings store.WarningStore
	client   transport.Client
	cooldown *Cooldown
	logger   *slog.Logger
}

// New creates a moderation engine. The cooldown governs how often the
// missing-admin advisory is repeated per group.
func New(settings store.SettingsStore, warnings store.WarningStore, client transport.Client, cooldown *Cooldown, logger *slog.Logger) *Engine {
	if cooldown == nil {
		cooldown = NewCooldown(DefaultNoticeCooldown)
	}
	return &Engine{
		settings: settings,
		warnings: warnings,
		client:   client,
		cooldown: cooldown,
		logger:   logger.With("component", "moderation"),
	}
}

// HandleMessage is the dispatcher entry point for incoming messages.
// Direct chats, unmoderated groups, and the bot's own messages pass
// through untouched. Failures are logged and never propagate to the
// transport.
func (e *Engine) HandleMessage(ctx context.Context, evt transport.MessageEvent) {
	if !evt.IsGroup || evt.SenderID == e.client.SelfID() {
		return
	}

	settings, err := e.settings.GetGroupSettings(ctx, evt.ChatID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Error("loading group settings", "group_id", evt.ChatID, "error", err)
		}
		return
	}
	if !settings.Enabled {
		return
	}

	meta, err := e.client.GroupMetadata(ctx, evt.ChatID)
	if err != nil {
		e.logger.Error("fetching group metadata", "group_id", evt.ChatID, "error", err)
		return
	}
	if !meta.IsAdmin(e.client.SelfID()) {
		if e.cooldown.Allow(evt.ChatID) {
			e.logger.Warn("not admin in moderated group", "group_id", evt.ChatID)
			if err := e.client.SendText(ctx, evt.ChatID, adminNotice); err != nil {
				e.logger.Error("sending admin advisory", "group_id", evt.ChatID, "error", err)
			}
		}
		return
	}

	if e.isWhitelisted(settings, evt.SenderID) {
		return
	}

	violation, ok := matchRule(settings, evt)
	if !ok {
		return
	}

	e.logger.Info("message violates rule",
		"group_id", evt.ChatID,
		"sender_id", evt.SenderID,
		"message_id", evt.MessageID,
		"rule", string(violation))

	// Delete first. If deletion fails the offending message is still
	// visible, so skipping escalation avoids warning for a message that
	// was never acted on.
	if err := e.client.DeleteForEveryone(ctx, evt.ChatID, evt.MessageID); err != nil {
		e.logger.Error("deleting message", "group_id", evt.ChatID, "message_id", evt.MessageID, "error", err)
		return
	}

	e.escalate(ctx, settings, evt, violation)
}

// isWhitelisted reports whether the sender bypasses all rules for this
// group. Entries are matched on the bare identifier so stored numbers
// and full transport ids both work.
func (e *Engine) isWhitelisted(settings *store.GroupSettings, senderID string) bool {
	bare := transport.BareID(senderID)
	for _, entry := range settings.Whitelist {
		if transport.BareID(entry) == bare {
			return true
		}
	}
	return false
}

// matchRule evaluates the rules in order: links, media, banned words.
// The first match wins.
func matchRule(settings *store.GroupSettings, evt transport.MessageEvent) (Violation, bool) {
	if settings.BlockLinks && ContainsLink(evt.Text) {
		return ViolationLink, true
	}
	if settings.BlockMedia && evt.Kind.IsMedia() {
		return ViolationMedia, true
	}
	if len(settings.BannedWords) > 0 && evt.Text != "" {
		normalized := Normalize(evt.Text)
		for _, word := range settings.BannedWords {
			banned := Normalize(word)
			if banned != "" && strings.Contains(normalized, banned) {
				return ViolationBannedWord, true
			}
		}
	}
	return "", false
}

// escalate increments the sender's warning ledger and removes them once
// the count reaches the group's threshold. The ledger is reset only
// after a successful removal so a failed kick retries on the next
// violation.
func (e *Engine) escalate(ctx context.Context, settings *store.GroupSettings, evt transport.MessageEvent, violation Violation) {
	count, err := e.warnings.IncrementWarning(ctx, evt.ChatID, evt.SenderID)
	if err != nil {
		e.logger.Error("incrementing warning", "group_id", evt.ChatID, "sender_id", evt.SenderID, "error", err)
		return
	}

	max := settings.Threshold()
	name := e.displayName(ctx, evt.SenderID)

	if count >= max {
		if err := e.client.RemoveParticipant(ctx, evt.ChatID, evt.SenderID); err != nil {
			e.logger.Error("removing participant", "group_id", evt.ChatID, "sender_id", evt.SenderID, "error", err)
			return
		}
		if err := e.warnings.ResetWarning(ctx, evt.ChatID, evt.SenderID); err != nil {
			e.logger.Error("resetting warnings after removal", "group_id", evt.ChatID, "sender_id", evt.SenderID, "error", err)
		}
		e.logger.Info("participant removed", "group_id", evt.ChatID, "sender_id", evt.SenderID, "warnings", count)
		notice := fmt.Sprintf("%s has been removed after reaching %d warnings.", name, max)
		if err := e.client.SendMention(ctx, evt.ChatID, notice, []string{evt.SenderID}); err != nil {
			e.logger.Error("sending removal notice", "group_id", evt.ChatID, "error", err)
		}
		return
	}

	notice := fmt.Sprintf("%s: your message was removed (%s). Warning %d of %d. At %d warnings you will be removed from the group.",
		name, violation, count, max, max)
	if err := e.client.SendMention(ctx, evt.ChatID, notice, []string{evt.SenderID}); err != nil {
		e.logger.Error("sending warning notice", "group_id", evt.ChatID, "error", err)
	}
}

// displayName resolves a friendly name for notices, falling back to the
// bare identifier.
func (e *Engine) displayName(ctx context.Context, userID string) string {
	name, err := e.client.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return transport.BareID(userID)
	}
	return name
}
