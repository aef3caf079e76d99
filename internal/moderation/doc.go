// Package moderation implements the group moderation engine.
//
// The engine subscribes to transport events and applies each group's
// configured rules in a fixed order: whitelist bypass, link blocking,
// media blocking, banned words. A violation deletes the offending
// message, increments the sender's warning ledger, and removes the
// sender once the group's threshold is reached. All transport and
// storage failures are logged and contained; a moderation failure never
// takes down the event loop.
package moderation
