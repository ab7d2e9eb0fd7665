package matcher

import (
	"fmt"
	"regexp"

	"github.com/desertthunder/tracksync/internal/shared"
)

// Config holds the matcher's thresholds, weights and veto patterns.
type Config struct {
	ISRCDurationToleranceMS int

	PreciseNameThreshold       float64
	PreciseArtistThreshold     float64
	PreciseDurationToleranceMS int
	PrecisePageSize            int

	FlexiblePageSize            int
	FlexibleDurationToleranceMS int

	ExactAlbumScore   int
	PartialAlbumScore int
	DurationScore     int
	// ShortCircuitScore ends the flexible tier as soon as a candidate scores strictly above it.
	ShortCircuitScore int

	Live        *regexp.Regexp
	Remix       *regexp.Regexp
	Compilation *regexp.Regexp
}

// DefaultConfig returns the matcher defaults from the embedded example config.
func DefaultConfig() Config {
	cfg, err := FromConfig(shared.DefaultConfig().Matcher)
	if err != nil {
		panic(fmt.Sprintf("invalid default matcher config: %v", err))
	}
	return cfg
}

// FromConfig compiles a [shared.MatcherConfig].
func FromConfig(mc shared.MatcherConfig) (Config, error) {
	cfg := Config{
		ISRCDurationToleranceMS:     mc.ISRCDurationToleranceMS,
		PreciseNameThreshold:        mc.PreciseNameThreshold,
		PreciseArtistThreshold:      mc.PreciseArtistThreshold,
		PreciseDurationToleranceMS:  mc.PreciseDurationToleranceMS,
		PrecisePageSize:             mc.PrecisePageSize,
		FlexiblePageSize:            mc.FlexiblePageSize,
		FlexibleDurationToleranceMS: mc.FlexibleDurationToleranceMS,
		ExactAlbumScore:             mc.FlexibleExactAlbumScore,
		PartialAlbumScore:           mc.FlexiblePartialAlbumScore,
		DurationScore:               mc.FlexibleDurationScore,
		ShortCircuitScore:           mc.FlexibleShortCircuitScore,
	}

	var err error
	if cfg.Live, err = compile("live_pattern", mc.LivePattern); err != nil {
		return Config{}, err
	}
	if cfg.Remix, err = compile("remix_pattern", mc.RemixPattern); err != nil {
		return Config{}, err
	}
	if cfg.Compilation, err = compile("compilation_pattern", mc.CompilationPattern); err != nil {
		return Config{}, err
	}

	if cfg.PrecisePageSize <= 0 {
		cfg.PrecisePageSize = 10
	}
	if cfg.FlexiblePageSize <= 0 {
		cfg.FlexiblePageSize = 25
	}
	return cfg, nil
}

// compile returns nil for an empty pattern, which disables that veto.
func compile(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: matcher.%s: %v", shared.ErrInvalidConfig, name, err)
	}
	return re, nil
}
