// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

// MockPageSize is the page size of [MockService.PlaylistTracksPage].
const MockPageSize = 100

// MockService is an in-memory music service usable as both a sync source and destination.
//
// Catalog holds the searchable destination catalog. PlaylistStore is keyed by playlist ID.
// Every call is recorded so tests can assert on what the pipeline did.
type MockService struct {
	mu sync.Mutex

	ServiceName   string
	Catalog       []models.Track
	PlaylistStore map[string]*models.PlaylistExport
	Library       []models.Track

	// SourceErr, when set, fails SourceTracks and ExportPlaylist.
	SourceErr error
	// AddErr, when set, is consulted before every AddToPlaylist call.
	AddErr func(playlistID string, ids []string) error

	Added        map[string][][]string
	LibraryAdds  []string
	ISRCSearches []string
	Searches     []string
	created      int
}

// NewMockService creates an empty MockService named name.
func NewMockService(name string) *MockService {
	return &MockService{
		ServiceName:   name,
		PlaylistStore: make(map[string]*models.PlaylistExport),
		Added:         make(map[string][][]string),
	}
}

// WithPlaylist stores a playlist with the given tracks and returns m.
func (m *MockService) WithPlaylist(id, name string, tracks ...models.Track) *MockService {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlaylistStore[id] = &models.PlaylistExport{
		Playlist: models.Playlist{ID: id, Name: name, TrackCount: len(tracks)},
		Tracks:   append([]models.Track(nil), tracks...),
	}
	return m
}

// Tracks returns a copy of a playlist's tracks.
func (m *MockService) Tracks(id string) []models.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pl, ok := m.PlaylistStore[id]; ok {
		return append([]models.Track(nil), pl.Tracks...)
	}
	return nil
}

// AddCalls returns how many AddToPlaylist calls targeted id.
func (m *MockService) AddCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Added[id])
}

func (m *MockService) Name() string { return m.ServiceName }

func (m *MockService) Playlists(ctx context.Context) ([]models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Playlist, 0, len(m.PlaylistStore))
	for _, pl := range m.PlaylistStore {
		out = append(out, pl.Playlist)
	}
	return out, nil
}

func (m *MockService) Playlist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.PlaylistStore[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	p := pl.Playlist
	p.TrackCount = len(pl.Tracks)
	return &p, nil
}

func (m *MockService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	if m.SourceErr != nil {
		return nil, m.SourceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.PlaylistStore[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	out := &models.PlaylistExport{Playlist: pl.Playlist, Tracks: append([]models.Track(nil), pl.Tracks...)}
	out.Playlist.TrackCount = len(out.Tracks)
	return out, nil
}

func (m *MockService) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	id := fmt.Sprintf("created-%d", m.created)
	m.PlaylistStore[id] = &models.PlaylistExport{Playlist: models.Playlist{ID: id, Name: name, Description: description}}
	return &models.Playlist{ID: id, Name: name, Description: description}, nil
}

// AddToPlaylist appends the catalog or library tracks with the given ids. Unknown ids are stored as bare tracks.
func (m *MockService) AddToPlaylist(ctx context.Context, playlistID string, ids []string) error {
	if m.AddErr != nil {
		if err := m.AddErr(playlistID, ids); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.PlaylistStore[playlistID]
	if !ok {
		return shared.NewAPIError(m.ServiceName, http.MethodPost, "/playlists/"+playlistID+"/tracks", http.StatusNotFound, nil)
	}
	m.Added[playlistID] = append(m.Added[playlistID], append([]string(nil), ids...))
	for _, id := range ids {
		pl.Tracks = append(pl.Tracks, m.lookup(id))
	}
	return nil
}

func (m *MockService) lookup(id string) models.Track {
	for _, set := range [][]models.Track{m.Catalog, m.Library} {
		for _, t := range set {
			if t.ID == id || (t.LibraryID != "" && t.LibraryID == id) {
				return t
			}
		}
	}
	return models.Track{ID: id}
}

// SourceTracks reads a stored playlist in order.
func (m *MockService) SourceTracks(ctx context.Context, ref string) ([]models.SourceTrack, error) {
	export, err := m.ExportPlaylist(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make([]models.SourceTrack, 0, len(export.Tracks))
	for i, t := range export.Tracks {
		out = append(out, t.SourceTrack(i))
	}
	return out, nil
}

func (m *MockService) SearchByISRC(ctx context.Context, isrc string) ([]models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ISRCSearches = append(m.ISRCSearches, isrc)
	var out []models.Candidate
	for _, t := range m.Catalog {
		if t.ISRC != "" && strings.EqualFold(t.ISRC, isrc) {
			out = append(out, t.Candidate())
		}
	}
	return out, nil
}

// Search returns catalog tracks whose normalized title appears in the term.
func (m *MockService) Search(ctx context.Context, term string, limit int) ([]models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Searches = append(m.Searches, term)
	return search(m.Catalog, term, limit), nil
}

func (m *MockService) PlaylistTracksPage(ctx context.Context, playlistID string, offset int) (models.TrackPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.PlaylistStore[playlistID]
	if !ok {
		return models.TrackPage{}, shared.NewAPIError(m.ServiceName, http.MethodGet, "/playlists/"+playlistID+"/tracks", http.StatusNotFound, nil)
	}
	end := min(offset+MockPageSize, len(pl.Tracks))
	if offset > end {
		offset = end
	}
	page := models.TrackPage{
		Tracks: append([]models.Track(nil), pl.Tracks[offset:end]...),
		Next:   -1,
		Total:  len(pl.Tracks),
	}
	if end < len(pl.Tracks) {
		page.Next = end
	}
	return page, nil
}

// AddToLibrary copies a catalog track into the library under the id "i.<catalogID>".
func (m *MockService) AddToLibrary(ctx context.Context, catalogID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LibraryAdds = append(m.LibraryAdds, catalogID)
	for _, t := range m.Catalog {
		if t.ID == catalogID {
			t.LibraryID = "i." + catalogID
			m.Library = append(m.Library, t)
			return nil
		}
	}
	return shared.NewAPIError(m.ServiceName, http.MethodPost, "/library", http.StatusNotFound, nil)
}

func (m *MockService) SearchLibrary(ctx context.Context, term string, limit int) ([]models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return search(m.Library, term, limit), nil
}

func (m *MockService) RecentLibrarySongs(ctx context.Context, offset, limit int) ([]models.Candidate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := min(offset+limit, len(m.Library))
	if offset > end {
		return nil, false, nil
	}
	out := make([]models.Candidate, 0, end-offset)
	for _, t := range m.Library[offset:end] {
		out = append(out, t.Candidate())
	}
	return out, end < len(m.Library), nil
}

func search(tracks []models.Track, term string, limit int) []models.Candidate {
	needle := shared.NormalizeText(term)
	var out []models.Candidate
	for _, t := range tracks {
		if title := shared.NormalizeText(t.Title); title != "" && strings.Contains(needle, title) {
			out = append(out, t.Candidate())
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
