// Package store provides durable conversation persistence using SQLite.
//
// # Data Models
//
//   - User: registered profile with a string-valued preference map
//   - Conversation: an ordered thread of messages owned by one user
//   - Message: append-only entry with role (user/assistant) and content
//
// Users are created once and mutated only through SetPreference.
// Conversations are immutable after creation except through their messages.
// Messages are never mutated or deleted.
//
// # Ordering
//
// Message timestamps within a conversation are monotonically non-decreasing:
// AppendMessage assigns the timestamp inside its transaction and clamps it to
// the conversation's previous maximum, so two concurrent appends cannot race
// to an inverted order. Equal timestamps are tie-broken by insertion order.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: referenced user or conversation does not exist
//   - ErrConflict: duplicate unique key (user id, email)
//   - ErrValidation: unknown role, empty content, missing required field
//
// All methods accept context.Context for cancellation support.
//
// # SQLite Configuration
//
// The store opens SQLite with WAL mode, foreign keys, and a busy timeout,
// all carried in the DSN so every pooled connection is configured the same
// way. Transactions start as immediate writers (_txlock=immediate), so a
// read-then-write transaction never fails a lock upgrade under contention.
//
// Use NewSQLiteStore(":memory:") for tests with a real in-memory database.
package store
