// ABOUTME: Welcome and farewell notices on group membership changes
// ABOUTME: Registered on the dispatcher alongside the message handler

package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/groupwarden/internal/store"
	"github.com/2389/groupwarden/internal/transport"
)

// HandleParticipant posts welcome and farewell notices for groups that
// have them enabled. The bot's own joins and leaves are ignored.
func (e *Engine) HandleParticipant(ctx context.Context, evt transport.ParticipantEvent) {
	if evt.UserID == e.client.SelfID() {
		return
	}

	settings, err := e.settings.GetGroupSettings(ctx, evt.ChatID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Error("loading group settings", "group_id", evt.ChatID, "error", err)
		}
		return
	}

	switch evt.Action {
	case transport.ParticipantJoined:
		if !settings.Welcome {
			return
		}
		e.greet(ctx, settings, evt.UserID)
	case transport.ParticipantLeft:
		if !settings.Farewell {
			return
		}
		name := e.displayName(ctx, evt.UserID)
		text := fmt.Sprintf("%s has left the group. Farewell!", name)
		if err := e.client.SendText(ctx, evt.ChatID, text); err != nil {
			e.logger.Error("sending farewell", "group_id", evt.ChatID, "error", err)
		}
	}
}

// greet sends the welcome notice, appending the group rules when the
// admins have set them.
func (e *Engine) greet(ctx context.Context, settings *store.GroupSettings, userID string) {
	name := e.displayName(ctx, userID)

	var b strings.Builder
	fmt.Fprintf(&b, "Welcome, %s!", name)
	if rules := strings.TrimSpace(settings.Rules); rules != "" {
		b.WriteString("\n\nGroup rules:\n")
		b.WriteString(rules)
	}

	if err := e.client.SendMention(ctx, settings.GroupID, b.String(), []string{userID}); err != nil {
		e.logger.Error("sending welcome", "group_id", settings.GroupID, "error", err)
	}
}
