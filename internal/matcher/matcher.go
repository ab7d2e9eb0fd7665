// Package matcher resolves a source track to at most one destination catalog candidate.
//
// # Tiers
//
// Three strategies run in order and the first to accept a candidate wins:
//
//  1. ISRC: catalog lookup by identifier, vetoed and scored by album and duration.
//  2. Precise metadata: a normalized name + artist + album search accepted only on near-exact agreement.
//  3. Flexible search: a broader name + artist search, scored, with an early exit on a confident hit.
//
// A track no tier accepts is reported as [models.TierNone] and counted as unavailable.
//
// # Observability
//
// Every veto, rejection and acceptance is passed to the [Reporter].
package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

// Catalog is the destination-catalog search surface the matcher needs.
type Catalog interface {
	SearchByISRC(ctx context.Context, isrc string) ([]models.Candidate, error)
	Search(ctx context.Context, term string, limit int) ([]models.Candidate, error)
}

// Decision is one observable matcher step.
type Decision struct {
	Source    models.SourceTrack
	Tier      models.Tier
	Candidate *models.Candidate
	Score     int
	Accepted  bool
	Reason    string
}

// Reporter receives every [Decision]. It must be safe for concurrent use.
type Reporter func(Decision)

// Matcher runs the tiered match.
type Matcher struct {
	catalog  Catalog
	cfg      Config
	reporter Reporter
}

// New creates a Matcher. A nil reporter discards decisions.
func New(catalog Catalog, cfg Config, reporter Reporter) *Matcher {
	if reporter == nil {
		reporter = func(Decision) {}
	}
	return &Matcher{catalog: catalog, cfg: cfg, reporter: reporter}
}

// Match resolves src. Search failures are reported and fall through to the next tier;
// only cancellation, auth and configuration failures are returned as errors.
func (m *Matcher) Match(ctx context.Context, src models.SourceTrack) (models.MatchResult, error) {
	tiers := []struct {
		tier models.Tier
		run  func(context.Context, models.SourceTrack) (*models.MatchResult, error)
	}{
		{models.TierISRC, m.matchISRC},
		{models.TierPrecise, m.matchPrecise},
		{models.TierFlexible, m.matchFlexible},
	}

	for _, t := range tiers {
		res, err := t.run(ctx, src)
		if err != nil {
			if abort(ctx, err) {
				return models.MatchResult{Source: src, Tier: models.TierNone}, err
			}
			m.report(src, t.tier, nil, 0, false, "search failed: "+err.Error())
			continue
		}
		if res != nil {
			return *res, nil
		}
	}

	m.report(src, models.TierNone, nil, 0, false, "no tier accepted a candidate")
	return models.MatchResult{Source: src, Tier: models.TierNone}, nil
}

func abort(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	switch shared.Classify(err) {
	case shared.KindAuthExpired, shared.KindFatal:
		return true
	}
	return false
}

func (m *Matcher) matchISRC(ctx context.Context, src models.SourceTrack) (*models.MatchResult, error) {
	if src.ISRC == "" {
		return nil, nil
	}

	cands, err := m.catalog.SearchByISRC(ctx, src.ISRC)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		m.report(src, models.TierISRC, nil, 0, false, "no catalog entry for isrc "+src.ISRC)
		return nil, nil
	}

	best, score := m.best(src, models.TierISRC, cands, m.cfg.ISRCDurationToleranceMS, false)
	if best == nil {
		return nil, nil
	}

	conf := models.ConfidenceHigh
	if score <= 0 {
		conf = models.ConfidenceMedium
	}
	m.report(src, models.TierISRC, best, score, true, "best identifier match")
	return &models.MatchResult{Source: src, Candidate: best, Tier: models.TierISRC, Score: score, Confidence: conf}, nil
}

func (m *Matcher) matchPrecise(ctx context.Context, src models.SourceTrack) (*models.MatchResult, error) {
	term := joinTerm(shared.NormalizeText(src.Name), shared.NormalizeText(src.PrimaryArtist), shared.NormalizeText(src.Album))
	cands, err := m.catalog.Search(ctx, term, m.cfg.PrecisePageSize)
	if err != nil {
		return nil, err
	}

	for i := range cands {
		c := cands[i]
		if reason := m.preciseReject(src, c); reason != "" {
			m.report(src, models.TierPrecise, &c, 0, false, reason)
			continue
		}
		score := m.cfg.ExactAlbumScore + m.cfg.DurationScore
		m.report(src, models.TierPrecise, &c, score, true, "name, artist, album and duration agree")
		return &models.MatchResult{Source: src, Candidate: &c, Tier: models.TierPrecise, Score: score, Confidence: models.ConfidenceHigh}, nil
	}

	if len(cands) == 0 {
		m.report(src, models.TierPrecise, nil, 0, false, "no search results")
	}
	return nil, nil
}

func (m *Matcher) preciseReject(src models.SourceTrack, c models.Candidate) string {
	if sim := shared.Jaccard(src.Name, c.Name); sim < m.cfg.PreciseNameThreshold {
		return fmt.Sprintf("name similarity %.2f below %.2f", sim, m.cfg.PreciseNameThreshold)
	}
	if sim := shared.Jaccard(src.PrimaryArtist, shared.PrimaryArtist(c.ArtistName)); sim < m.cfg.PreciseArtistThreshold {
		return fmt.Sprintf("artist similarity %.2f below %.2f", sim, m.cfg.PreciseArtistThreshold)
	}
	if !shared.AlbumsEqual(src.Album, c.AlbumName) {
		return "album differs"
	}
	if !shared.WithinMS(src.DurationMS, c.DurationMS, m.cfg.PreciseDurationToleranceMS) {
		return fmt.Sprintf("duration differs by more than %dms", m.cfg.PreciseDurationToleranceMS)
	}
	return ""
}

func (m *Matcher) matchFlexible(ctx context.Context, src models.SourceTrack) (*models.MatchResult, error) {
	term := joinTerm(shared.NormalizeText(src.Name), shared.NormalizeText(src.PrimaryArtist))
	cands, err := m.catalog.Search(ctx, term, m.cfg.FlexiblePageSize)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		m.report(src, models.TierFlexible, nil, 0, false, "no search results")
		return nil, nil
	}

	best, score := m.best(src, models.TierFlexible, cands, m.cfg.FlexibleDurationToleranceMS, true)
	if best == nil {
		return nil, nil
	}

	conf := models.ConfidenceMedium
	switch {
	case score > m.cfg.ShortCircuitScore:
		conf = models.ConfidenceHigh
	case score <= 0:
		conf = models.ConfidenceLow
	}
	m.report(src, models.TierFlexible, best, score, true, "best flexible match ("+string(conf)+" confidence)")
	return &models.MatchResult{Source: src, Candidate: best, Tier: models.TierFlexible, Score: score, Confidence: conf}, nil
}

// best applies the veto, scores the survivors and returns the highest scorer.
// Ties keep the earlier candidate. With shortCircuit set, a score above the
// configured threshold is accepted immediately.
func (m *Matcher) best(src models.SourceTrack, tier models.Tier, cands []models.Candidate, toleranceMS int, shortCircuit bool) (*models.Candidate, int) {
	var (
		best      *models.Candidate
		bestScore int
	)

	for i := range cands {
		c := cands[i]
		if sig := m.cfg.veto(src, c); sig != "" {
			m.report(src, tier, &c, 0, false, "veto: "+string(sig))
			continue
		}

		score := m.score(src, c, toleranceMS)
		m.report(src, tier, &c, score, false, "scored")

		if best == nil || score > bestScore {
			best, bestScore = &c, score
		}
		if shortCircuit && score > m.cfg.ShortCircuitScore {
			break
		}
	}
	return best, bestScore
}

func (m *Matcher) score(src models.SourceTrack, c models.Candidate, toleranceMS int) int {
	score := 0
	switch {
	case shared.AlbumsEqual(src.Album, c.AlbumName):
		score += m.cfg.ExactAlbumScore
	case shared.AlbumsOverlap(src.Album, c.AlbumName):
		score += m.cfg.PartialAlbumScore
	}
	if shared.WithinMS(src.DurationMS, c.DurationMS, toleranceMS) {
		score += m.cfg.DurationScore
	}
	return score
}

func (m *Matcher) report(src models.SourceTrack, tier models.Tier, c *models.Candidate, score int, accepted bool, reason string) {
	m.reporter(Decision{Source: src, Tier: tier, Candidate: c, Score: score, Accepted: accepted, Reason: reason})
}

func joinTerm(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
