package models

import "github.com/desertthunder/tracksync/internal/shared"

// SourceTrack is one item of the source playlist. Identity is Position plus content.
type SourceTrack struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name"`
	PrimaryArtist string   `json:"primary_artist"`
	Artists       []string `json:"artists,omitempty"`
	Album         string   `json:"album"`
	DurationMS    int      `json:"duration_ms"`
	ISRC          string   `json:"isrc,omitempty"`
	Position      int      `json:"position"`
}

// Label renders "Artist - Name" for logs.
func (s SourceTrack) Label() string {
	return s.PrimaryArtist + " - " + s.Name
}

// Candidate is a destination-catalog track chosen or considered by the matcher.
type Candidate struct {
	CatalogID  string `json:"catalog_id"`
	LibraryID  string `json:"library_id,omitempty"`
	Name       string `json:"name"`
	ArtistName string `json:"artist_name"`
	AlbumName  string `json:"album_name"`
	DurationMS int    `json:"duration_ms"`
}

// Key returns the composite fingerprint of the candidate.
func (c Candidate) Key() string {
	return shared.CompositeKey(c.Name, c.ArtistName, c.AlbumName, c.DurationMS)
}

// InsertID returns the identifier to use when inserting into a playlist, preferring the library id.
func (c Candidate) InsertID() string {
	if c.LibraryID != "" {
		return c.LibraryID
	}
	return c.CatalogID
}

// Label renders "Artist - Name" for logs.
func (c Candidate) Label() string {
	return c.ArtistName + " - " + c.Name
}

// Tier identifies which matcher strategy produced a result.
type Tier string

const (
	TierISRC     Tier = "isrc"
	TierPrecise  Tier = "precise_metadata"
	TierFlexible Tier = "flexible_search"
	TierNone     Tier = "none"
)

// Confidence grades an accepted match.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MatchResult is the matcher's verdict for one source track.
type MatchResult struct {
	Source     SourceTrack `json:"source"`
	Candidate  *Candidate  `json:"candidate,omitempty"`
	Tier       Tier        `json:"tier"`
	Score      int         `json:"score"`
	Confidence Confidence  `json:"confidence,omitempty"`
}

// Matched reports whether a candidate was accepted.
func (r MatchResult) Matched() bool {
	return r.Candidate != nil && r.Tier != TierNone
}
