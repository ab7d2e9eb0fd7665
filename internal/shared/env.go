package shared

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment override, e.g. TRACKSYNC_SERVER_PORT.
const EnvPrefix = "TRACKSYNC_"

// LoadDotEnv loads variables from the given .env files into the process environment.
//
// Missing files are ignored; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, p, err)
		}
	}
	return nil
}

// ApplyEnv overlays TRACKSYNC_* environment variables onto config.
func ApplyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfigWithEnv loads the TOML file at path (or the defaults when path does not exist),
// then applies .env and environment overrides.
func LoadConfigWithEnv(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	config, err := LoadConfig(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		config = DefaultConfig()
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}
