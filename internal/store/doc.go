// Package store provides the SQLite-backed local record store.
//
// The store is the sole owner of the persisted record set. It provides:
//   - Create, update and delete of records, each in one transaction
//   - Live query views (All, Search) that re-read on every access
//   - Change subscriptions delivering batched insert/delete/modify indices
//   - Versioned schema migrations applied at open time
//
// # Ordering
//
// Insertion order is tracked by the seq INTEGER PRIMARY KEY column.
// Every query MUST include ORDER BY seq ASC. Search never re-ranks.
//
// # Identity
//
// Record IDs come from a record.IDGenerator and are UNIQUE. They are never
// reused, so a deleted ID stays invalid for update and delete.
//
// # Single Writer
//
// A store-wide mutex serializes each write transaction together with the
// re-evaluation of subscribed views. All subscribers therefore observe the
// same linear sequence of snapshots, one batch per committed write.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks (default 5 seconds)
//   - foreign_keys=ON
//   - user_version: schema version marker
package store
