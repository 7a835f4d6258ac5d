// Package store persists everything dialgate remembers across restarts.
//
// # Overview
//
// A single SQLiteStore (modernc.org/sqlite, pure Go, no cgo) backs four
// concerns:
//
//   - Principals: the identity directory the authenticator resolves against,
//     including bcrypt hashes for API tokens.
//   - Credit ledger: an append-only entry table; balances are sums over
//     entries, and debits check-and-insert in one transaction.
//   - Calls: records of outbound calls placed through the voice dialer.
//   - Mirror outbox: append-only rows written by the mirror worker.
//
// # Conventions
//
// Timestamps are stored as RFC3339 strings in UTC. All queries go through
// context-aware database/sql methods. The schema is created on open and is
// idempotent; there is no separate migration step yet.
package store
