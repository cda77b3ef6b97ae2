// Package store persists the identities the gateway authenticates.
//
// # Backends
//
//   - SQLiteStore: modernc.org/sqlite, schema created on open. Used for
//     development, tests and single-node deployments.
//   - PostgresStore: pgx pool, schema managed by goose migrations embedded
//     from internal/store/migrations.
//   - MockStore: in-memory maps with optional error injection, for tests of
//     packages built on Store.
//
// Both implement Store. The login flow only depends on IdentityReader.
//
// # Data Model
//
// An Identity is a row of utilisateur with at most one association (shelter
// operator) and at most one famille (foster family). Emails are normalized
// with NormalizeEmail before every read and write.
//
// # Error Handling
//
//   - ErrNotFound: identity does not exist
//   - ErrEmailExists: email already registered
//   - ErrAlreadyAttached: the identity already has that association
package store
