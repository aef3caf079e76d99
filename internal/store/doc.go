// Package store provides persistent storage for groupwarden using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with one
// interface per entity:
//
//   - KeyRecordStore: transport credentials and cryptographic key material
//   - SettingsStore: per-group moderation policy
//   - WarningStore: per-(group, user) infraction counters
//
// SQLiteStore implements all three in a single struct sharing one database
// connection, allowing easy composition while maintaining clear interface
// boundaries. Components depend on the interface they need, never on
// SQLiteStore directly.
//
// # Data Models
//
//   - Credentials: singleton record with the device's identity material
//   - KeyRecord: (type, id) -> value key material, unique per pair; the id
//     is an opaque composite string owned by the transport collaborator,
//     with group/user denormalized alongside for direct lookups
//   - GroupSettings: per-group policy (feature flags, banned words,
//     warning threshold, rules text, whitelist); absence of a record means
//     moderation is disabled
//   - UserWarning: monotonically increasing infraction counter, deleted on
//     removal at the threshold so the ledger resets to absent
//
// # Concurrency
//
// The warning increment is a single upsert-returning statement, so
// concurrent infractions for the same (group, user) pair never race to the
// same pre-increment value. Key batches apply inside one transaction,
// all-or-nothing.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// ErrNotFound is returned when a requested entity does not exist. Absent
// ids in a key lookup and absent matches in a purge are not errors.
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore with a t.TempDir() path for tests with real SQLite.
package store
