// Package selfheal recovers corrupted encryption sessions automatically.
//
// When the transport layer reports a delivery status meaning
// "recipient could not decrypt", the healer deletes the key records
// involved: session records for direct chats, sender-key records for
// groups. The transport then renegotiates keys on the next exchange.
//
// Purges are best-effort and idempotent; a second purge for the same
// chat simply deletes nothing. Decryption failures are the expected
// trigger here, not an error to surface to an operator.
package selfheal
