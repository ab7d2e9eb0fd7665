// Spotify API implementation of [Source]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/ratelimit"
	"github.com/desertthunder/tracksync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyService   = "spotify"
	spotifyPageLimit = 100
	spotifyIDsLimit  = 50
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	IsLocal     bool            `json:"is_local"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	AlbumType   string          `json:"album_type"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type playlistTracks struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a playlist object; track items are read separately.
type SpotifyPlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Owner       Owner          `json:"owner"`
	Public      bool           `json:"public"`
	Tracks      playlistTracks `json:"tracks"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist or the saved tracks library.
// Track is nil for items that were removed from the catalog.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPage is the paging envelope shared by the list endpoints.
type SpotifyPage[T any] struct {
	Items    []T     `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// TokenSaver persists a refreshed OAuth token.
type TokenSaver func(token *oauth2.Token) error

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithSpotifyBaseURL points the service at another API root (tests).
func WithSpotifyBaseURL(u string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = strings.TrimSuffix(u, "/") }
}

// WithSpotifyTokenURL replaces the OAuth token endpoint (tests).
func WithSpotifyTokenURL(u string) SpotifyOption {
	return func(s *SpotifyService) { s.config.Endpoint.TokenURL = u }
}

// WithSpotifyHTTPClient replaces the HTTP client.
func WithSpotifyHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifyService) { s.httpClient = c }
}

// WithSpotifyExecutor routes every call through exec.
func WithSpotifyExecutor(exec *ratelimit.Executor) SpotifyOption {
	return func(s *SpotifyService) { s.exec = exec }
}

// WithSpotifyLogger sets the logger.
func WithSpotifyLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) { s.logger = l }
}

// WithTokenSaver is called with every token obtained by exchange or refresh.
func WithTokenSaver(fn TokenSaver) SpotifyOption {
	return func(s *SpotifyService) { s.saveToken = fn }
}

// SpotifyService implements [Source] for the Spotify Web API.
//
// Requests carry the access token directly; an expired token surfaces as a 401 which the
// executor answers with exactly one refresh through the [oauth2.Config] token source.
type SpotifyService struct {
	config     *oauth2.Config
	baseURL    string
	httpClient *http.Client
	exec       *ratelimit.Executor
	logger     *log.Logger
	saveToken  TokenSaver

	mu    sync.RWMutex
	token *oauth2.Token
	api   *client
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
//
// A stored access or refresh token in credentials authenticates the service immediately.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes: []string{
				"user-read-private",
				"user-read-email",
				"playlist-read-private",
				"playlist-read-collaborative",
				"playlist-modify-private",
				"playlist-modify-public",
				"user-library-read",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: spotifyTokenURL,
			},
		},
		baseURL:    spotifyBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.logger = s.logger.WithPrefix(spotifyService)
	if s.exec == nil {
		s.exec = ratelimit.NewExecutor(spotifyService, shared.ServiceLimit{}, ratelimit.WithLogger(s.logger))
	}
	s.exec.SetRefresher(s.refresh)

	s.api = &client{
		service:    spotifyService,
		baseURL:    s.baseURL,
		httpClient: s.httpClient,
		exec:       s.exec,
		logger:     s.logger,
		headers:    s.authorize,
	}

	if credentials["access_token"] != "" || credentials["refresh_token"] != "" {
		if err := s.Authenticate(context.Background(), credentials); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Authenticate sets the OAuth2 token. Expects an "access_token" and/or "refresh_token", or an "auth_code" to exchange.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if authCode := credentials["auth_code"]; authCode != "" {
		token, err := s.config.Exchange(s.oauthContext(ctx), authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		return s.setToken(token)
	}

	access, refresh := credentials["access_token"], credentials["refresh_token"]
	if access == "" && refresh == "" {
		return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
	}

	token := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if exp := credentials["token_expiry"]; exp != "" {
		if t, err := time.Parse(time.RFC3339, exp); err == nil {
			token.Expiry = t
		}
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// OAuthConfig exposes the client configuration for the interactive authorization flow.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// Token returns the current token, or nil before authentication.
func (s *SpotifyService) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *SpotifyService) setToken(token *oauth2.Token) error {
	s.mu.Lock()
	if token.RefreshToken == "" && s.token != nil {
		token.RefreshToken = s.token.RefreshToken
	}
	s.token = token
	s.mu.Unlock()

	if s.saveToken != nil {
		if err := s.saveToken(token); err != nil {
			s.logger.Warn("failed to persist token", "err", err)
		}
	}
	return nil
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// refresh trades the refresh token for a new access token.
func (s *SpotifyService) refresh(ctx context.Context) error {
	current := s.Token()
	if current == nil || current.RefreshToken == "" {
		return shared.ErrNoRefreshToken
	}

	expired := &oauth2.Token{RefreshToken: current.RefreshToken, Expiry: time.Unix(1, 0)}
	token, err := s.config.TokenSource(s.oauthContext(ctx), expired).Token()
	if err != nil {
		return err
	}
	s.logger.Info("access token refreshed", "expiry", token.Expiry)
	return s.setToken(token)
}

func (s *SpotifyService) authorize(h http.Header) error {
	token := s.Token()
	if token == nil || token.AccessToken == "" {
		if token != nil && token.RefreshToken != "" {
			return shared.NewAPIError(spotifyService, "", "", http.StatusUnauthorized, []byte("no access token"))
		}
		return shared.ErrNotAuthenticated
	}
	h.Set("Authorization", "Bearer "+token.AccessToken)
	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.api.do(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	var track SpotifyTrack
	endpoint := fmt.Sprintf("/tracks/%s", url.PathEscape(trackID))
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// SeveralTracks retrieves multiple tracks by their IDs (up to 50).
func (s *SpotifyService) SeveralTracks(ctx context.Context, trackIDs []string) ([]SpotifyTrack, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrInvalidArgument)
	}
	if len(trackIDs) > spotifyIDsLimit {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed", shared.ErrInvalidArgument, spotifyIDsLimit)
	}

	endpoint := "/tracks?ids=" + url.QueryEscape(strings.Join(trackIDs, ","))

	var response struct {
		Tracks []*SpotifyTrack `json:"tracks"`
	}
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]SpotifyTrack, 0, len(response.Tracks))
	for _, t := range response.Tracks {
		if t != nil {
			tracks = append(tracks, *t)
		}
	}
	return tracks, nil
}

// SavedTracks retrieves one page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPage[SpotifyPlaylistTrack], error) {
	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", clampLimit(limit, 50), offset)

	var response SpotifyPage[SpotifyPlaylistTrack]
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// PlaylistItems retrieves one page of a playlist's tracks.
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID string, limit, offset int) (*SpotifyPage[SpotifyPlaylistTrack], error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), clampLimit(limit, spotifyPageLimit), offset)

	var response SpotifyPage[SpotifyPlaylistTrack]
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, playlistErr(err, playlistID)
	}
	return &response, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPage[SpotifyPlaylist], error) {
	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", clampLimit(limit, 50), offset)

	var response SpotifyPage[SpotifyPlaylist]
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Service interface implementation

// Playlists retrieves all playlists for the authenticated user.
func (s *SpotifyService) Playlists(ctx context.Context) ([]models.Playlist, error) {
	var all []models.Playlist
	offset := 0

	for {
		response, err := s.UserPlaylists(ctx, 50, offset)
		if err != nil {
			return nil, err
		}
		for _, sp := range response.Items {
			all = append(all, sp.toModel())
		}
		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += len(response.Items)
	}
	return all, nil
}

// Playlist retrieves a specific playlist by ID.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	if playlistID == LikedSongsRef {
		page, err := s.SavedTracks(ctx, 1, 0)
		if err != nil {
			return nil, err
		}
		return &models.Playlist{ID: LikedSongsRef, Name: "Liked Songs", TrackCount: page.Total}, nil
	}

	endpoint := fmt.Sprintf("/playlists/%s?fields=id,name,description,public,owner,tracks.total,uri", url.PathEscape(playlistID))
	var sp SpotifyPlaylist
	if err := s.api.do(ctx, http.MethodGet, endpoint, nil, &sp); err != nil {
		return nil, playlistErr(err, playlistID)
	}
	p := sp.toModel()
	return &p, nil
}

// ExportPlaylist reads a playlist (or the liked songs) with all of its tracks.
func (s *SpotifyService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	playlist, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	tracks, err := s.tracks(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	playlist.TrackCount = len(tracks)

	return &models.PlaylistExport{Playlist: *playlist, Tracks: tracks}, nil
}

// SourceTracks reads every track of ref in playlist order and fills in missing ISRCs.
func (s *SpotifyService) SourceTracks(ctx context.Context, ref string) ([]models.SourceTrack, error) {
	tracks, err := s.tracks(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.enrichISRC(ctx, tracks); err != nil {
		return nil, err
	}

	out := make([]models.SourceTrack, len(tracks))
	for i, t := range tracks {
		out[i] = t.SourceTrack(i)
	}
	return out, nil
}

// tracks pages through a playlist or the saved tracks until the service reports no next page.
func (s *SpotifyService) tracks(ctx context.Context, ref string) ([]models.Track, error) {
	var (
		tracks []models.Track
		offset int
	)

	for {
		var (
			page *SpotifyPage[SpotifyPlaylistTrack]
			err  error
		)
		if ref == LikedSongsRef {
			page, err = s.SavedTracks(ctx, 50, offset)
		} else {
			page, err = s.PlaylistItems(ctx, ref, spotifyPageLimit, offset)
		}
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.Name == "" {
				continue
			}
			tracks = append(tracks, item.Track.toModel())
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	s.logger.Debug("read source tracks", "ref", ref, "count", len(tracks))
	return tracks, nil
}

// enrichISRC looks up tracks whose items came back without external ids, 50 at a time.
func (s *SpotifyService) enrichISRC(ctx context.Context, tracks []models.Track) error {
	var missing []string
	for _, t := range tracks {
		if t.ISRC == "" && t.ID != "" {
			missing = append(missing, t.ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	isrcs := make(map[string]string, len(missing))
	for start := 0; start < len(missing); start += spotifyIDsLimit {
		end := min(start+spotifyIDsLimit, len(missing))
		full, err := s.SeveralTracks(ctx, missing[start:end])
		if err != nil {
			return err
		}
		for _, t := range full {
			if t.ExternalIDs.ISRC != "" {
				isrcs[t.ID] = t.ExternalIDs.ISRC
			}
		}
	}

	for i := range tracks {
		if isrc, ok := isrcs[tracks[i].ID]; ok && tracks[i].ISRC == "" {
			tracks[i].ISRC = isrc
		}
	}
	s.logger.Debug("enriched isrc", "requested", len(missing), "found", len(isrcs))
	return nil
}

// CreatePlaylist creates a private playlist for the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	user, err := s.UserProfile(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"name": name, "description": description, "public": false}
	var sp SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))
	if err := s.api.do(ctx, http.MethodPost, endpoint, body, &sp); err != nil {
		return nil, err
	}
	p := sp.toModel()
	return &p, nil
}

// AddToPlaylist appends tracks (ids or spotify:track: URIs) in chunks of 100.
func (s *SpotifyService) AddToPlaylist(ctx context.Context, playlistID string, ids []string) error {
	uris := make([]string, len(ids))
	for i, id := range ids {
		if strings.HasPrefix(id, "spotify:") {
			uris[i] = id
		} else {
			uris[i] = "spotify:track:" + id
		}
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	for start := 0; start < len(uris); start += spotifyPageLimit {
		end := min(start+spotifyPageLimit, len(uris))
		body := map[string]any{"uris": uris[start:end]}
		if err := s.api.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
			return playlistErr(err, playlistID)
		}
	}
	return nil
}

func (sp SpotifyPlaylist) toModel() models.Playlist {
	return models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
	}
}

func (t SpotifyTrack) toModel() models.Track {
	track := models.Track{
		ID:         t.ID,
		Title:      t.Name,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
		ISRC:       t.ExternalIDs.ISRC,
	}
	for _, a := range t.Artists {
		if a.Name != "" {
			track.Artists = append(track.Artists, a.Name)
		}
	}
	if len(track.Artists) > 0 {
		track.Artist = track.Artists[0]
	}
	return track
}

func playlistErr(err error, playlistID string) error {
	if shared.IsNotFound(err) {
		return fmt.Errorf("%w: %s: %w", shared.ErrPlaylistNotFound, playlistID, err)
	}
	return err
}

func clampLimit(limit, ceiling int) int {
	if limit <= 0 || limit > ceiling {
		return ceiling
	}
	return limit
}
