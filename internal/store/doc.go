// Package store provides SQLite-backed storage for run artifacts.
//
// Three tables make up the store:
//   - Runs: one record per run, keyed by a uuid token
//   - Programs: the compiled per-cell sequencer programs of a run
//   - Results: the processed result boxes of a run
//
// Writes are idempotent. Re-saving a program or result for the same
// run replaces the previous row, so reprocessing a run never leaves
// stale artifacts behind.
//
// Box names are user-chosen strings and may arrive in different
// Unicode normal forms; the store normalizes them to NFC before they
// become keys, so the same visible name always lands in the same row.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
