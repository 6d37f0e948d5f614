// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - SyncTokenStore: Per-calendar sync cursor persistence
//   - ConnectionStore: Per-user sync status persistence
//   - ChannelStore: Push channel persistence
//   - CredentialsStore: OAuth credentials persistence
//   - SchedulerStore: Background task state and history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.calsync/data/calsync.db
//
// # Thread Safety
//
// All operations are thread-safe. The store runs SQLite in WAL mode over a
// single connection, so writes are serialised.
package sqlite
