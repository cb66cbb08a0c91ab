// Package store indexes comparison runs and persisted traces in SQLite.
//
// Trace data itself lives on disk (see trace.Serialize); the store keeps one
// row per run and one row per trace directory with its digests, so runs can
// be listed and bit-identical traces found without reading the artifacts.
//
// # Ordering
//
// Runs carry a logical sequence number assigned on insert. Listings order by
// seq, never by wall-clock time, so results are reproducible in tests that
// use a fixed clock.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
