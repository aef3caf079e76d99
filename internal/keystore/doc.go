// Package keystore adapts groupwarden's persistence layer to the
// key-store contract required by the messaging transport collaborator.
//
// # Contract
//
// The transport collaborator calls into the store during protocol
// operation:
//
//   - Get(type, ids): values for the ids that exist; missing ids are
//     simply absent, never an error
//   - Set(update): a batched upsert where a nil value means delete,
//     applied all-or-nothing
//   - Clear(): full wipe, used only for re-pairing
//   - SaveCreds(): persist the singleton device credentials, called on
//     every credential rotation
//
// # Serialization
//
// Key material values are opaque JSON-shaped structures that may carry
// raw byte buffers at any nesting depth. The codec tags buffers and
// base64-encodes them on write, restoring them byte-exactly on read, so
// a value read back after Set is identical to what the transport layer
// handed over.
//
// # Composite ids
//
// Sender-key ids pack the group and participant identifiers into one
// opaque string (<group>::<user>[::<suffix>]). The store preserves that
// contract but also denormalizes the two identifiers into indexed
// columns, which is what lets the self-heal purge locate records by
// partial match.
package keystore
