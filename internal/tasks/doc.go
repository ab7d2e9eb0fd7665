// Package tasks orchestrates playlist operations between music services with real-time progress reporting.
//
// # Sync
//
// [Orchestrator] drives one source → destination transfer at a time:
//
//  1. Fetch every source track (paginated, ISRCs filled in)
//  2. Build the fingerprint index of the destination playlist
//  3. Match source tracks in parallel batches, strictly in source order
//  4. Drop candidates the destination already holds (skipped duplicates)
//  5. Hand the rest to the batch transfer engine
//
// A second sync requested while one is running is rejected with [shared.ErrSyncInProgress].
// Every step is reported on the broadcast hub; finished jobs are persisted through a [JobStore].
//
// # Playlist utilities
//
// [Orchestrator.DedupePlaylist] writes a duplicate-free copy of a playlist, [Orchestrator.ExportPlaylist]
// serializes one playlist and [Orchestrator.BulkExport] exports many with a rate-limited worker pool.
// Bulk export reports through a non-blocking [ProgressUpdate] channel and, when a publisher is set,
// as progress events on the hub under the export's id.
package tasks
