// Package dedup builds the fingerprint index of a destination playlist and removes
// duplicates from a single track list.
//
// Every track registers its catalog id, its library id and its composite key
// (normalized name|primary artist|album|5s duration bucket). A candidate is present
// when any of its variants is.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

// Prefixes that keep identifier spaces apart inside the index.
const (
	prefixCatalog = "cat:"
	prefixLibrary = "lib:"
	prefixKey     = "key:"
)

// libraryIDPrefix marks library-scoped identifiers on the destination service.
const libraryIDPrefix = "i."

// PageReader reads one page of a playlist.
type PageReader interface {
	PlaylistTracksPage(ctx context.Context, playlistID string, offset int) (models.TrackPage, error)
}

// Index is the set of fingerprints of a playlist snapshot.
type Index struct {
	mu   sync.RWMutex
	keys map[string]struct{}
	size int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{keys: make(map[string]struct{})}
}

// Build reads every page of playlistID and indexes its tracks.
//
// Any failed page, or a read shorter than the reported total, returns [shared.ErrIncompleteRead]
// and no index.
func Build(ctx context.Context, reader PageReader, playlistID string) (*Index, error) {
	idx := NewIndex()
	offset, total := 0, 0

	for {
		page, err := reader.PlaylistTracksPage(ctx, playlistID, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: playlist %s at offset %d: %w", shared.ErrIncompleteRead, playlistID, offset, err)
		}
		for _, t := range page.Tracks {
			idx.AddTrack(t)
		}
		if page.Total > total {
			total = page.Total
		}
		if page.Last() {
			break
		}
		if page.Next <= offset {
			return nil, fmt.Errorf("%w: playlist %s: pagination did not advance past offset %d", shared.ErrIncompleteRead, playlistID, offset)
		}
		offset = page.Next
	}

	if total > 0 && idx.Len() < total {
		return nil, fmt.Errorf("%w: playlist %s: read %d of %d items", shared.ErrIncompleteRead, playlistID, idx.Len(), total)
	}
	return idx, nil
}

// FromTracks indexes an in-memory track list.
func FromTracks(tracks []models.Track) *Index {
	idx := NewIndex()
	for _, t := range tracks {
		idx.AddTrack(t)
	}
	return idx
}

// Len returns the number of tracks registered.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.size
}

// AddTrack registers every key variant of t.
func (i *Index) AddTrack(t models.Track) {
	i.add(trackKeys(t))
}

// Add registers a candidate inserted during the current run.
func (i *Index) Add(c models.Candidate) {
	i.add(candidateKeys(c))
}

// Contains reports whether any key variant of c is already present.
func (i *Index) Contains(c models.Candidate) bool {
	_, ok := i.Lookup(c)
	return ok
}

// Lookup returns the first key variant of c that is present.
func (i *Index) Lookup(c models.Candidate) (string, bool) {
	return i.lookup(candidateKeys(c))
}

// ContainsTrack reports whether any key variant of t is already present.
func (i *Index) ContainsTrack(t models.Track) bool {
	_, ok := i.lookup(trackKeys(t))
	return ok
}

func (i *Index) add(keys []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, k := range keys {
		i.keys[k] = struct{}{}
	}
	i.size++
}

func (i *Index) lookup(keys []string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, k := range keys {
		if _, ok := i.keys[k]; ok {
			return k, true
		}
	}
	return "", false
}

// Dedupe keeps the first occurrence of every track in a single left-to-right pass.
//
// Running Dedupe on its own output removes nothing.
func Dedupe(tracks []models.Track) (kept, removed []models.Track) {
	idx := NewIndex()
	for _, t := range tracks {
		if idx.ContainsTrack(t) {
			removed = append(removed, t)
			continue
		}
		idx.AddTrack(t)
		kept = append(kept, t)
	}
	return kept, removed
}

func trackKeys(t models.Track) []string {
	return keys(t.ID, t.LibraryID, t.Title, t.Artist, t.Album, t.DurationMS)
}

func candidateKeys(c models.Candidate) []string {
	return keys(c.CatalogID, c.LibraryID, c.Name, c.ArtistName, c.AlbumName, c.DurationMS)
}

// keys lists the identifier and content variants of one item. A library id
// presented in the catalog slot is filed as a library id.
func keys(catalogID, libraryID, name, artist, album string, durationMS int) []string {
	out := make([]string, 0, 3)
	for _, id := range []string{catalogID, libraryID} {
		switch {
		case id == "":
		case strings.HasPrefix(id, libraryIDPrefix):
			out = append(out, prefixLibrary+id)
		default:
			out = append(out, prefixCatalog+id)
		}
	}
	if strings.TrimSpace(name) != "" {
		out = append(out, prefixKey+shared.CompositeKey(name, artist, album, durationMS))
	}
	return out
}
