// ABOUTME: Chat command front end for the admin service
// ABOUTME: Parses !warden commands from group admins and replies in-channel

package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/2389/groupwarden/internal/transport"
)

// CommandPrefix marks a message as an administrative command.
const CommandPrefix = "!warden"

const helpText = `Moderation commands (group admins only):
!warden on | off            enable or disable moderation
!warden status              show current settings
!warden links on|off        block link messages
!warden media on|off        block media messages
!warden welcome on|off      greet new members
!warden farewell on|off     announce departures
!warden rules <text>        set rules shown in welcomes (clear: !warden rules clear)
!warden maxwarn <n>         warnings before removal
!warden ban <word>          add a banned word
!warden unban <word>        remove a banned word
!warden allow <user>        whitelist a user
!warden disallow <user>     remove from whitelist
!warden warnings <user>     show a user's warning count
!warden pardon <user>       reset a user's warnings`

// Commands routes chat commands to the admin service. It is registered
// on the dispatcher alongside the moderation engine; because the engine
// only acts on rule violations the two handlers never fight over the
// same message.
type Commands struct {
	service *Service
	client  transport.Client
	logger  *slog.Logger
}

// NewCommands creates the command front end.
func NewCommands(service *Service, client transport.Client, logger *slog.Logger) *Commands {
	return &Commands{
		service: service,
		client:  client,
		logger:  logger.With("component", "admin-commands"),
	}
}

// HandleMessage is the dispatcher entry point. Non-command messages and
// commands from non-admins are ignored silently; a malformed command
// from an admin gets a usage reply.
func (c *Commands) HandleMessage(ctx context.Context, evt transport.MessageEvent) {
	if !evt.IsGroup || evt.Kind != transport.KindText {
		return
	}
	text := strings.TrimSpace(evt.Text)
	if text != CommandPrefix && !strings.HasPrefix(text, CommandPrefix+" ") {
		return
	}

	meta, err := c.client.GroupMetadata(ctx, evt.ChatID)
	if err != nil {
		c.logger.Error("fetching group metadata", "group_id", evt.ChatID, "error", err)
		return
	}
	if !meta.IsAdmin(evt.SenderID) {
		return
	}

	reply := c.run(ctx, evt.ChatID, strings.TrimSpace(strings.TrimPrefix(text, CommandPrefix)))
	if reply == "" {
		return
	}
	if err := c.client.SendText(ctx, evt.ChatID, reply); err != nil {
		c.logger.Error("sending command reply", "group_id", evt.ChatID, "error", err)
	}
}

// run executes one command and returns the reply text.
func (c *Commands) run(ctx context.Context, groupID, args string) string {
	verb, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "", "help":
		return helpText
	case "on":
		return c.toggleReply(c.service.SetEnabled(ctx, groupID, true), "Moderation enabled.")
	case "off":
		return c.toggleReply(c.service.SetEnabled(ctx, groupID, false), "Moderation disabled.")
	case "status":
		return c.status(ctx, groupID)
	case "links":
		return c.flag(ctx, groupID, rest, verb, "Link blocking", c.service.SetBlockLinks)
	case "media":
		return c.flag(ctx, groupID, rest, verb, "Media blocking", c.service.SetBlockMedia)
	case "welcome":
		return c.flag(ctx, groupID, rest, verb, "Welcome notices", c.service.SetWelcome)
	case "farewell":
		return c.flag(ctx, groupID, rest, verb, "Farewell notices", c.service.SetFarewell)
	case "rules":
		if rest == "clear" {
			rest = ""
		}
		if err := c.service.SetRules(ctx, groupID, rest); err != nil {
			return errorReply(err)
		}
		if rest == "" {
			return "Rules cleared."
		}
		return "Rules updated."
	case "maxwarn":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return "Usage: !warden maxwarn <number>"
		}
		if err := c.service.SetMaxWarnings(ctx, groupID, n); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("Members are now removed at %d warnings.", n)
	case "ban":
		if err := c.service.AddBannedWord(ctx, groupID, rest); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("Banned word added: %s", strings.ToLower(rest))
	case "unban":
		if err := c.service.RemoveBannedWord(ctx, groupID, rest); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("Banned word removed: %s", strings.ToLower(rest))
	case "allow":
		if err := c.service.AddWhitelist(ctx, groupID, rest); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("%s is now exempt from moderation.", rest)
	case "disallow":
		if err := c.service.RemoveWhitelist(ctx, groupID, rest); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("%s is no longer exempt.", rest)
	case "warnings":
		if rest == "" {
			return "Usage: !warden warnings <user>"
		}
		count, err := c.service.Warning(ctx, groupID, rest)
		if err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("%s has %d warning(s).", rest, count)
	case "pardon":
		if rest == "" {
			return "Usage: !warden pardon <user>"
		}
		if err := c.service.ResetWarning(ctx, groupID, rest); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("Warnings cleared for %s.", rest)
	}
	return "Unknown command. Send !warden help for usage."
}

// flag handles the on/off subcommands.
func (c *Commands) flag(ctx context.Context, groupID, arg, verb, label string, set func(context.Context, string, bool) error) string {
	switch arg {
	case "on":
		return c.toggleReply(set(ctx, groupID, true), label+" enabled.")
	case "off":
		return c.toggleReply(set(ctx, groupID, false), label+" disabled.")
	}
	return fmt.Sprintf("Usage: !warden %s on|off", verb)
}

func (c *Commands) toggleReply(err error, ok string) string {
	if err != nil {
		return errorReply(err)
	}
	return ok
}

// status renders the group's settings as a reply.
func (c *Commands) status(ctx context.Context, groupID string) string {
	settings, err := c.service.Status(ctx, groupID)
	if err != nil {
		return errorReply(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Moderation: %s\n", onOff(settings.Enabled))
	fmt.Fprintf(&b, "Block links: %s\n", onOff(settings.BlockLinks))
	fmt.Fprintf(&b, "Block media: %s\n", onOff(settings.BlockMedia))
	fmt.Fprintf(&b, "Welcome: %s, Farewell: %s\n", onOff(settings.Welcome), onOff(settings.Farewell))
	fmt.Fprintf(&b, "Removal at: %d warnings\n", settings.Threshold())
	fmt.Fprintf(&b, "Banned words: %d\n", len(settings.BannedWords))
	fmt.Fprintf(&b, "Whitelisted users: %d", len(settings.Whitelist))
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func errorReply(err error) string {
	return "Error: " + err.Error()
}
