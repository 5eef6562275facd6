// Package store is the contest's remote persistence: solve records, stage
// availability, accounts and password reset tokens, in one SQLite database.
//
// # Idempotency
//
// A user solves a stage at most once. UNIQUE(user_id, stage) together with
// INSERT ... ON CONFLICT DO NOTHING makes repeated writes of the same solve
// harmless; WriteSolve reports whether a row was actually inserted.
//
// # Winners
//
// The stage_winners view picks, per stage, the solve with the earliest
// solved_at, breaking ties by seq (insertion order). Winners are derived,
// never written.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
