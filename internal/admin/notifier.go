// ABOUTME: Owner notification contract for out-of-band bot events
// ABOUTME: Implemented by the transport adapter, consumed at startup and on credential rotation

package admin

import "context"

// Notifier delivers out-of-band notices to the bot owner's direct chat.
// Implementations are best-effort; callers log and continue on error.
type Notifier interface {
	// Notify sends a plain text notice to the owner.
	Notify(ctx context.Context, text string) error
	// SendPairingArtifact delivers login material (such as a rendered
	// pairing code image) to the owner.
	SendPairingArtifact(ctx context.Context, filename string, data []byte) error
}
