// Package repositories implements SQLite persistence for sync history and auto-sync schedules.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [SyncJobRepository] : sync job history with status and source lookups
//   - [ScheduledJobRepository] : auto-sync job definitions and their run bookkeeping
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
