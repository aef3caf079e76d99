// Package admin exposes the administrative surface of the bot: the
// service that mutates per-group moderation settings and the chat
// command front end group admins use to reach it.
//
// Settings mutations follow load-or-default, so the first command in a
// fresh group creates its settings row implicitly. Command replies go
// back to the group; commands from non-admin members are ignored
// without a reply so the bot does not leak its command surface.
package admin
