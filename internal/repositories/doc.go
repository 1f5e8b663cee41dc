// Package repositories implements SQLite persistence for local accounts and their linked identities.
//
// Key Implementations:
//   - [AccountRepository] : local account persistence with username/email lookups and identity linking
//
// Accounts are soft deleted via deleted_at and excluded from queries by default.
// A linked identity is stored one-to-one with its account and is replaced on re-link, never removed implicitly.
//
// Sequence numbers provide stable, human-readable ordering (e.g., account #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
