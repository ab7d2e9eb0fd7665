// package services defines the Source and Destination interfaces for music service HTTP APIs
//
// Spotify (source), Apple Music (destination)
package services

import (
	"context"

	"github.com/desertthunder/tracksync/internal/models"
)

// LikedSongsRef is the source reference that selects the user's saved tracks instead of a playlist.
const LikedSongsRef = "liked"

// Service defines the operations common to every music provider.
type Service interface {
	// Name returns the name of the service (e.g., "Spotify", "Apple Music")
	Name() string

	// Playlists retrieves all playlists for the authenticated user.
	Playlists(ctx context.Context) ([]models.Playlist, error)

	// Playlist retrieves a specific playlist by ID.
	Playlist(ctx context.Context, playlistID string) (*models.Playlist, error)

	// ExportPlaylist reads a playlist with all of its tracks.
	ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error)

	// CreatePlaylist creates an empty playlist owned by the user.
	CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error)

	// AddToPlaylist appends ids to a playlist, in order.
	AddToPlaylist(ctx context.Context, playlistID string, ids []string) error
}

// Source is a service tracks are read from.
type Source interface {
	Service

	// SourceTracks reads every track of ref (a playlist id or [LikedSongsRef]) in order,
	// with ISRCs filled in where the service knows them.
	SourceTracks(ctx context.Context, ref string) ([]models.SourceTrack, error)
}

// Destination is a catalog tracks are matched against and written into.
type Destination interface {
	Service

	SearchByISRC(ctx context.Context, isrc string) ([]models.Candidate, error)
	Search(ctx context.Context, term string, limit int) ([]models.Candidate, error)
	PlaylistTracksPage(ctx context.Context, playlistID string, offset int) (models.TrackPage, error)
	AddToLibrary(ctx context.Context, catalogID string) error
	SearchLibrary(ctx context.Context, term string, limit int) ([]models.Candidate, error)
	RecentLibrarySongs(ctx context.Context, offset, limit int) ([]models.Candidate, bool, error)
}
