// Package store provides SQLite-backed durable state for weft runs.
//
// Two things persist:
//   - Input log: every accepted external input event, append-only,
//     ordered by logical seq. Replaying the log through a fresh engine
//     reproduces the run byte for byte.
//   - Snapshots: hold states and collection contents (with their item
//     key counters) at a tick boundary. Restoring a snapshot and
//     replaying the log tail is equivalent to replaying from scratch.
//
// # Critical Patterns
//
// CP-1: Logical Time Only
//   - All ordering uses seq/tick integers, never timestamps.
//
// CP-2: Canonical Serialization
//   - Values are stored as canonical JSON so snapshot rows are
//     byte-comparable across runs.
//
// CP-3: Key Counters Persist
//   - Collection snapshots carry the next item key so a restored run
//     never reuses an item key that existed before the snapshot.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: snapshot rows cascade with their tick
package store
