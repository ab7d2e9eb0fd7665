package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log         LogConfig         `toml:"log" envPrefix:"LOG_"`
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database" envPrefix:"DATABASE_"`
	Server      ServerConfig      `toml:"server" envPrefix:"SERVER_"`
	Sync        SyncConfig        `toml:"sync" envPrefix:"SYNC_"`
	Matcher     MatcherConfig     `toml:"matcher"`
	RateLimit   RateLimitConfig   `toml:"ratelimit"`
	Scheduler   SchedulerConfig   `toml:"scheduler" envPrefix:"SCHEDULER_"`
	Export      ExportConfig      `toml:"export"`
}

// LogConfig controls the process-wide log level.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify    SpotifyConfig    `toml:"spotify" envPrefix:"SPOTIFY_"`
	AppleMusic AppleMusicConfig `toml:"applemusic" envPrefix:"APPLEMUSIC_"`
}

// SpotifyConfig contains Spotify API credentials and the persisted OAuth token.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURI  string `toml:"redirect_uri" env:"REDIRECT_URI"`
	AccessToken  string `toml:"access_token" env:"ACCESS_TOKEN"`
	RefreshToken string `toml:"refresh_token" env:"REFRESH_TOKEN"`
	TokenExpiry  string `toml:"token_expiry"`
}

// Map returns the credentials in the shape expected by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
		"token_expiry":  s.TokenExpiry,
	}
}

// Update stores a freshly issued OAuth token.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		s.TokenExpiry = token.Expiry.Format(time.RFC3339)
	}
	return nil
}

// HasToken reports whether an access or refresh token has been stored.
func (s SpotifyConfig) HasToken() bool {
	return s.AccessToken != "" || s.RefreshToken != ""
}

// AppleMusicConfig contains the destination catalog credentials.
type AppleMusicConfig struct {
	BaseURL        string `toml:"base_url" env:"BASE_URL"`
	DeveloperToken string `toml:"developer_token" env:"DEVELOPER_TOKEN"`
	UserToken      string `toml:"user_token" env:"USER_TOKEN"`
	Storefront     string `toml:"storefront" env:"STOREFRONT"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PATH"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" env:"HOST"`
	Port int    `toml:"port" env:"PORT"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SyncConfig tunes the orchestrator and the batch transfer engine.
type SyncConfig struct {
	MatchBatchSize          int           `toml:"match_batch_size" env:"MATCH_BATCH_SIZE"`
	InsertBatchSize         int           `toml:"insert_batch_size" env:"INSERT_BATCH_SIZE"`
	LibraryIndexWait        time.Duration `toml:"library_index_wait"`
	LibraryResolveAttempts  int           `toml:"library_resolve_attempts"`
	LibraryResolveBaseDelay time.Duration `toml:"library_resolve_base_delay"`
	LibraryScanPages        int           `toml:"library_scan_pages"`
	HTTPTimeout             time.Duration `toml:"http_timeout" env:"HTTP_TIMEOUT"`
}

// MatcherConfig holds the tunable thresholds and veto patterns of the track matcher.
type MatcherConfig struct {
	ISRCDurationToleranceMS     int     `toml:"isrc_duration_tolerance_ms"`
	PreciseNameThreshold        float64 `toml:"precise_name_threshold"`
	PreciseArtistThreshold      float64 `toml:"precise_artist_threshold"`
	PreciseDurationToleranceMS  int     `toml:"precise_duration_tolerance_ms"`
	PrecisePageSize             int     `toml:"precise_page_size"`
	FlexiblePageSize            int     `toml:"flexible_page_size"`
	FlexibleDurationToleranceMS int     `toml:"flexible_duration_tolerance_ms"`
	FlexibleExactAlbumScore     int     `toml:"flexible_exact_album_score"`
	FlexiblePartialAlbumScore   int     `toml:"flexible_partial_album_score"`
	FlexibleDurationScore       int     `toml:"flexible_duration_score"`
	FlexibleShortCircuitScore   int     `toml:"flexible_short_circuit_score"`
	LivePattern                 string  `toml:"live_pattern"`
	RemixPattern                string  `toml:"remix_pattern"`
	CompilationPattern          string  `toml:"compilation_pattern"`
}

// RateLimitConfig holds one [ServiceLimit] per downstream service.
type RateLimitConfig struct {
	Spotify    ServiceLimit `toml:"spotify"`
	AppleMusic ServiceLimit `toml:"applemusic"`
}

// ServiceLimit is a rolling-window ceiling plus the retry backoff schedule.
//
// MaxRetryAfter caps a server-requested Retry-After; zero means the window length.
type ServiceLimit struct {
	Ceiling       int             `toml:"ceiling"`
	Window        time.Duration   `toml:"window"`
	Backoff       []time.Duration `toml:"backoff"`
	MaxRetryAfter time.Duration   `toml:"max_retry_after"`
}

// SchedulerConfig contains the auto-sync polling interval.
type SchedulerConfig struct {
	Interval time.Duration `toml:"interval" env:"INTERVAL"`
}

// ExportConfig controls bulk exports.
type ExportConfig struct {
	Workers int     `toml:"workers"`
	Rate    float64 `toml:"rate"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if _, err := toml.Decode(string(data), config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path, replacing the existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects configurations that cannot drive a sync.
func (c *Config) Validate() error {
	if c.Sync.MatchBatchSize <= 0 || c.Sync.InsertBatchSize <= 0 {
		return fmt.Errorf("%w: batch sizes must be positive", ErrInvalidConfig)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("%w: scheduler interval must be positive", ErrInvalidConfig)
	}
	for name, l := range map[string]ServiceLimit{"spotify": c.RateLimit.Spotify, "applemusic": c.RateLimit.AppleMusic} {
		if l.Ceiling <= 0 || l.Window <= 0 {
			return fmt.Errorf("%w: ratelimit.%s needs a positive ceiling and window", ErrInvalidConfig, name)
		}
	}
	return nil
}
