// Package transport defines the boundary between groupwarden and the
// external messaging network client.
//
// # Events
//
// The transport collaborator emits four typed events: MessageEvent,
// ParticipantEvent, ReceiptEvent and CredentialsEvent. Consumers register
// typed handlers on a Dispatcher; each delivery runs in its own goroutine
// so no handler can block the transport's event loop, and handler panics
// are recovered at the dispatch boundary.
//
// # Capabilities
//
// Client is the command surface consumed from the transport: send text or
// mention messages, delete-for-everyone, remove participants, fetch group
// metadata and resolve display names. KeyStore is the contract the
// transport calls into to persist cryptographic session state.
//
// Concrete adapters live in subpackages (see transport/matrix).
package transport
