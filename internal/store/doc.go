// Package store provides SQLite-backed durable storage for recorded
// emissions.
//
// The store is an append-only log with two tables:
//   - runs: one row per recording session
//   - emissions: one row per value an observable published during a run
//
// # Invariants
//
// Idempotency
//   - Emission IDs are content addresses (see ir.EmissionID)
//   - Writes use ON CONFLICT(id) DO NOTHING, so replaying a run is harmless
//
// Logical time
//   - All ordering uses seq INTEGER, never timestamps
//
// Deterministic reads
//   - All queries include ORDER BY seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Emissions must reference an existing run
package store
