// Apple Music API implementation of [Destination]
//
// Response types based on https://developer.apple.com/documentation/applemusicapi
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/ratelimit"
	"github.com/desertthunder/tracksync/internal/shared"
)

const (
	appleMusicBaseURL = "https://api.music.apple.com"
	appleMusicService = "applemusic"

	appleMusicPageLimit   = 100
	appleMusicSearchLimit = 25
	libraryIDPrefix       = "i."
)

// AppleMusicPlayParams links a library resource back to the catalog.
type AppleMusicPlayParams struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	CatalogID string `json:"catalogId,omitempty"`
	IsLibrary bool   `json:"isLibrary,omitempty"`
}

// AppleMusicSongAttributes holds the fields of a catalog or library song used for matching.
type AppleMusicSongAttributes struct {
	Name             string                `json:"name"`
	ArtistName       string                `json:"artistName"`
	AlbumName        string                `json:"albumName"`
	DurationInMillis int                   `json:"durationInMillis"`
	ISRC             string                `json:"isrc,omitempty"`
	PlayParams       *AppleMusicPlayParams `json:"playParams,omitempty"`
}

// AppleMusicSong is a songs or library-songs resource.
type AppleMusicSong struct {
	ID         string                   `json:"id"`
	Type       string                   `json:"type"`
	Attributes AppleMusicSongAttributes `json:"attributes"`
}

type appleMusicDescription struct {
	Standard string `json:"standard"`
}

// AppleMusicPlaylist is a library-playlists resource.
type AppleMusicPlaylist struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name        string                `json:"name"`
		Description appleMusicDescription `json:"description"`
		CanEdit     bool                  `json:"canEdit"`
		IsPublic    bool                  `json:"isPublic"`
	} `json:"attributes"`
}

type appleMusicMeta struct {
	Total int `json:"total"`
}

// AppleMusicPage is the envelope of a paginated resource collection.
type AppleMusicPage[T any] struct {
	Data []T            `json:"data"`
	Next string         `json:"next,omitempty"`
	Meta appleMusicMeta `json:"meta"`
}

// AppleMusicOption configures an [AppleMusicService].
type AppleMusicOption func(*AppleMusicService)

// WithAppleMusicHTTPClient replaces the HTTP client.
func WithAppleMusicHTTPClient(c *http.Client) AppleMusicOption {
	return func(s *AppleMusicService) { s.httpClient = c }
}

// WithAppleMusicExecutor routes every call through exec.
func WithAppleMusicExecutor(exec *ratelimit.Executor) AppleMusicOption {
	return func(s *AppleMusicService) { s.exec = exec }
}

// WithAppleMusicLogger sets the logger.
func WithAppleMusicLogger(l *log.Logger) AppleMusicOption {
	return func(s *AppleMusicService) { s.logger = l }
}

// AppleMusicService implements [Destination] against the Apple Music API.
//
// Catalog calls are scoped to a storefront, detected from the user's account on first use and
// falling back to the configured one. Library calls need the Music-User-Token.
type AppleMusicService struct {
	cfg        shared.AppleMusicConfig
	httpClient *http.Client
	exec       *ratelimit.Executor
	logger     *log.Logger
	api        *client

	sfOnce     sync.Once
	storefront string
}

// NewAppleMusicService creates the destination client from its config section.
func NewAppleMusicService(cfg shared.AppleMusicConfig, opts ...AppleMusicOption) (*AppleMusicService, error) {
	if cfg.DeveloperToken == "" {
		return nil, fmt.Errorf("%w: missing applemusic developer_token", shared.ErrMissingCredentials)
	}
	if cfg.UserToken == "" {
		return nil, fmt.Errorf("%w: missing applemusic user_token", shared.ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = appleMusicBaseURL
	}

	s := &AppleMusicService{cfg: cfg, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.logger = s.logger.WithPrefix(appleMusicService)
	if s.exec == nil {
		s.exec = ratelimit.NewExecutor(appleMusicService, shared.ServiceLimit{}, ratelimit.WithLogger(s.logger))
	}

	s.api = &client{
		service:    appleMusicService,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: s.httpClient,
		exec:       s.exec,
		logger:     s.logger,
		headers: func(h http.Header) error {
			h.Set("Authorization", "Bearer "+cfg.DeveloperToken)
			h.Set("Music-User-Token", cfg.UserToken)
			h.Set("Origin", "https://music.apple.com")
			return nil
		},
	}
	return s, nil
}

func (s *AppleMusicService) Name() string {
	return "Apple Music"
}

// Storefront returns the user's storefront, detected once and cached.
func (s *AppleMusicService) Storefront(ctx context.Context) string {
	s.sfOnce.Do(func() {
		var resp AppleMusicPage[struct {
			ID string `json:"id"`
		}]
		if err := s.api.do(ctx, http.MethodGet, "/v1/me/storefront", nil, &resp); err == nil && len(resp.Data) > 0 {
			s.storefront = resp.Data[0].ID
			s.logger.Debug("detected storefront", "storefront", s.storefront)
			return
		} else if err != nil {
			s.logger.Warn("storefront detection failed, using configured storefront", "storefront", s.cfg.Storefront, "err", err)
		}
		s.storefront = s.cfg.Storefront
		if s.storefront == "" {
			s.storefront = "us"
		}
	})
	return s.storefront
}

// SearchByISRC returns the catalog songs carrying isrc.
func (s *AppleMusicService) SearchByISRC(ctx context.Context, isrc string) ([]models.Candidate, error) {
	q := url.Values{"filter[isrc]": {isrc}}
	endpoint := fmt.Sprintf("/v1/catalog/%s/songs?%s", s.Storefront(ctx), q.Encode())

	var resp AppleMusicPage[AppleMusicSong]
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return candidates(resp.Data), nil
}

// Search runs a catalog song search.
func (s *AppleMusicService) Search(ctx context.Context, term string, limit int) ([]models.Candidate, error) {
	q := url.Values{
		"term":  {term},
		"types": {"songs"},
		"limit": {strconv.Itoa(clampLimit(limit, appleMusicSearchLimit))},
	}
	endpoint := fmt.Sprintf("/v1/catalog/%s/search?%s", s.Storefront(ctx), q.Encode())

	var resp struct {
		Results struct {
			Songs AppleMusicPage[AppleMusicSong] `json:"songs"`
		} `json:"results"`
	}
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return candidates(resp.Results.Songs.Data), nil
}

// SearchLibrary searches the user's library songs.
func (s *AppleMusicService) SearchLibrary(ctx context.Context, term string, limit int) ([]models.Candidate, error) {
	q := url.Values{
		"term":  {term},
		"types": {"library-songs"},
		"limit": {strconv.Itoa(clampLimit(limit, appleMusicSearchLimit))},
	}

	var resp struct {
		Results struct {
			Songs AppleMusicPage[AppleMusicSong] `json:"library-songs"`
		} `json:"results"`
	}
	if err := s.api.do(ctx, http.MethodGet, "/v1/me/library/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return candidates(resp.Results.Songs.Data), nil
}

// RecentLibrarySongs reads one page of library songs and reports whether more follow.
func (s *AppleMusicService) RecentLibrarySongs(ctx context.Context, offset, limit int) ([]models.Candidate, bool, error) {
	endpoint := fmt.Sprintf("/v1/me/library/songs?limit=%d&offset=%d", clampLimit(limit, appleMusicPageLimit), offset)

	var resp AppleMusicPage[AppleMusicSong]
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, false, err
	}
	return candidates(resp.Data), resp.Next != "", nil
}

// AddToLibrary adds one catalog song to the user's library.
func (s *AppleMusicService) AddToLibrary(ctx context.Context, catalogID string) error {
	q := url.Values{"ids[songs]": {catalogID}}
	return s.api.do(ctx, http.MethodPost, "/v1/me/library?"+q.Encode(), nil, nil)
}

// PlaylistTracksPage reads one page of a library playlist.
//
// The service answers 404 for the tracks of an empty playlist; that is reported as an empty last page.
func (s *AppleMusicService) PlaylistTracksPage(ctx context.Context, playlistID string, offset int) (models.TrackPage, error) {
	endpoint := fmt.Sprintf("/v1/me/library/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), appleMusicPageLimit, offset)

	var resp AppleMusicPage[AppleMusicSong]
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		if offset == 0 && shared.IsNotFound(err) {
			return models.TrackPage{Next: -1}, nil
		}
		return models.TrackPage{}, playlistErr(err, playlistID)
	}

	page := models.TrackPage{Next: -1, Total: resp.Meta.Total}
	for _, song := range resp.Data {
		page.Tracks = append(page.Tracks, song.toTrack())
	}
	if resp.Next != "" {
		page.Next = nextOffset(resp.Next, offset+len(resp.Data))
	}
	return page, nil
}

// AddToPlaylist appends songs to a library playlist in chunks of 100.
// Ids with the library prefix are sent as library songs.
func (s *AppleMusicService) AddToPlaylist(ctx context.Context, playlistID string, ids []string) error {
	type resource struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	data := make([]resource, len(ids))
	for i, id := range ids {
		kind := "songs"
		if strings.HasPrefix(id, libraryIDPrefix) {
			kind = "library-songs"
		}
		data[i] = resource{ID: id, Type: kind}
	}

	endpoint := fmt.Sprintf("/v1/me/library/playlists/%s/tracks", url.PathEscape(playlistID))
	for start := 0; start < len(data); start += appleMusicPageLimit {
		end := min(start+appleMusicPageLimit, len(data))
		if err := s.api.do(ctx, http.MethodPost, endpoint, map[string]any{"data": data[start:end]}, nil); err != nil {
			return err
		}
	}
	return nil
}

// Playlists retrieves every library playlist.
func (s *AppleMusicService) Playlists(ctx context.Context) ([]models.Playlist, error) {
	var (
		all    []models.Playlist
		offset int
	)
	for {
		endpoint := fmt.Sprintf("/v1/me/library/playlists?limit=%d&offset=%d", appleMusicPageLimit, offset)
		var resp AppleMusicPage[AppleMusicPlaylist]
		if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Data {
			all = append(all, p.toModel())
		}
		if resp.Next == "" || len(resp.Data) == 0 {
			break
		}
		offset = nextOffset(resp.Next, offset+len(resp.Data))
	}
	return all, nil
}

// Playlist retrieves a library playlist by ID.
func (s *AppleMusicService) Playlist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	var resp AppleMusicPage[AppleMusicPlaylist]
	endpoint := "/v1/me/library/playlists/" + url.PathEscape(playlistID)
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, playlistErr(err, playlistID)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	p := resp.Data[0].toModel()
	return &p, nil
}

// ExportPlaylist reads a library playlist with all of its tracks.
func (s *AppleMusicService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	playlist, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	var tracks []models.Track
	for offset := 0; ; {
		page, err := s.PlaylistTracksPage(ctx, playlistID, offset)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, page.Tracks...)
		if page.Last() || page.Next <= offset {
			break
		}
		offset = page.Next
	}
	playlist.TrackCount = len(tracks)

	return &models.PlaylistExport{Playlist: *playlist, Tracks: tracks}, nil
}

// CreatePlaylist creates a library playlist.
func (s *AppleMusicService) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	body := map[string]any{
		"attributes": map[string]string{"name": name, "description": description},
	}

	var resp AppleMusicPage[AppleMusicPlaylist]
	if err := s.api.do(ctx, http.MethodPost, "/v1/me/library/playlists", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: create playlist returned no data", shared.ErrAPIRequest)
	}
	p := resp.Data[0].toModel()
	return &p, nil
}

// toTrack maps a song onto a track, splitting library and catalog identifiers.
func (song AppleMusicSong) toTrack() models.Track {
	a := song.Attributes
	t := models.Track{
		Title:      a.Name,
		Artist:     a.ArtistName,
		Album:      a.AlbumName,
		DurationMS: a.DurationInMillis,
		ISRC:       a.ISRC,
	}
	if strings.HasPrefix(song.ID, libraryIDPrefix) || song.Type == "library-songs" {
		t.LibraryID = song.ID
		if a.PlayParams != nil {
			t.ID = a.PlayParams.CatalogID
		}
	} else {
		t.ID = song.ID
	}
	if a.ArtistName != "" {
		t.Artists = []string{a.ArtistName}
	}
	return t
}

func (p AppleMusicPlaylist) toModel() models.Playlist {
	return models.Playlist{
		ID:          p.ID,
		Name:        p.Attributes.Name,
		Description: p.Attributes.Description.Standard,
		Public:      p.Attributes.IsPublic,
	}
}

func candidates(songs []AppleMusicSong) []models.Candidate {
	out := make([]models.Candidate, 0, len(songs))
	for _, song := range songs {
		out = append(out, song.toTrack().Candidate())
	}
	return out
}

// nextOffset extracts the offset query parameter of a next link, or returns fallback.
func nextOffset(next string, fallback int) int {
	u, err := url.Parse(next)
	if err != nil {
		return fallback
	}
	if v, err := strconv.Atoi(u.Query().Get("offset")); err == nil && v > 0 {
		return v
	}
	return fallback
}
