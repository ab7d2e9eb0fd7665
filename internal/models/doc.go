// Package models defines domain entities and persistence interfaces for the playlist sync service.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing external service data
//   - [Playlist] : Basic playlist metadata from music services
//   - [PlaylistExport] : Playlist with complete track listing
//   - [Track] : Song metadata with ISRC for cross-service matching
//   - [SourceTrack], [Candidate], [MatchResult] : The matcher's input, output and verdict
//
// 2. Persistent Entities: Database-backed models
//   - [SyncJob] : One transfer run with progress and statistics, guarded by a mutex
//   - [ScheduledJob] : A recurring auto-sync definition (time of day, sources, destination, mode)
//
// All persistent entities implement the Model interface providing IDs, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
