// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for playlist syncs:
//  1. [PlaylistListView] : Browse and select source playlists
//  2. [TrackListView] : Preview tracks before the sync
//  3. [ConfirmView] : Confirm the sync (and whether it is a dry run)
//  4. [TransferView] : Follow progress and log events of the running job
//  5. [ResultView] : Display the job statistics
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress comes from a broadcast subscription opened before the sync starts, filtered to the job's id.
// [NewWatchModel] skips straight to the transfer view for `tracksync sync --watch`.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
