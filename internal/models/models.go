// package models defines the data model for the playlist sync service
package models

import (
	"time"

	"github.com/desertthunder/tracksync/internal/shared"
)

// Model defines the base interface for all persistent models.
// Implementations include SyncJob and ScheduledJob.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Playlist represents a music playlist from any service
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
}

// PlaylistExport represents a playlist with all its tracks
type PlaylistExport struct {
	Playlist Playlist `json:"playlist"`
	Tracks   []Track  `json:"tracks"`
}

// Track represents a music track from any service.
//
// On the destination, ID is the catalog identifier and LibraryID the library-scoped one
// (either may be empty). On the source, ID is the service's track id.
type Track struct {
	ID         string   `json:"id,omitempty"`
	LibraryID  string   `json:"library_id,omitempty"`
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	Artists    []string `json:"artists,omitempty"`
	Album      string   `json:"album,omitempty"`
	DurationMS int      `json:"duration_ms"`
	ISRC       string   `json:"isrc,omitempty"`
}

// Key returns the composite fingerprint of the track.
func (t Track) Key() string {
	return shared.CompositeKey(t.Title, t.Artist, t.Album, t.DurationMS)
}

// SourceTrack converts t into the matcher's input at the given playlist position.
func (t Track) SourceTrack(position int) SourceTrack {
	artists := t.Artists
	if len(artists) == 0 && t.Artist != "" {
		artists = []string{t.Artist}
	}
	primary := t.Artist
	if len(artists) > 0 {
		primary = artists[0]
	}
	return SourceTrack{
		ID:            t.ID,
		Name:          t.Title,
		PrimaryArtist: shared.PrimaryArtist(primary),
		Artists:       artists,
		Album:         t.Album,
		DurationMS:    t.DurationMS,
		ISRC:          t.ISRC,
		Position:      position,
	}
}

// Candidate converts a destination track into a [Candidate].
func (t Track) Candidate() Candidate {
	return Candidate{
		CatalogID:  t.ID,
		LibraryID:  t.LibraryID,
		Name:       t.Title,
		ArtistName: t.Artist,
		AlbumName:  t.Album,
		DurationMS: t.DurationMS,
	}
}

// TrackPage is one page of a paginated playlist read.
type TrackPage struct {
	Tracks []Track
	// Next is the offset of the following page, or -1 when this is the last page.
	Next int
	// Total is the item count reported by the service, or 0 when unknown.
	Total int
}

// Last reports whether no page follows.
func (p TrackPage) Last() bool { return p.Next < 0 }
