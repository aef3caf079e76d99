// Package matrix adapts the transport contract to a Matrix homeserver
// using mautrix. The client pumps sync events into the dispatcher,
// persists sync tokens through the key store, and exposes the send,
// redact, and kick operations the moderation engine consumes. Encrypted
// events that cannot be decrypted surface as receipt events carrying
// the configured undecryptable status.
package matrix
