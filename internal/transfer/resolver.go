package transfer

import (
	"context"

	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/ratelimit"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/hbollon/go-edlib"
)

// resolver maps freshly added catalog tracks onto their library ids.
type resolver struct {
	dest    Destination
	cfg     Config
	clock   ratelimit.Clock
	emitter *broadcast.Emitter
}

// resolveAll searches the library for each candidate with exponential backoff, then scans the
// most recently added library songs once for whatever is left.
func (r *resolver) resolveAll(ctx context.Context, cands []models.Candidate) (resolved, unresolved []models.Candidate, err error) {
	for _, c := range cands {
		if c.LibraryID != "" {
			resolved = append(resolved, c)
			continue
		}

		libID, err := r.search(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		if libID == "" {
			unresolved = append(unresolved, c)
			continue
		}
		c.LibraryID = libID
		resolved = append(resolved, c)
	}

	if len(unresolved) == 0 {
		return resolved, nil, nil
	}

	found, err := r.deepScan(ctx, unresolved)
	if err != nil {
		return nil, nil, err
	}

	var left []models.Candidate
	for _, c := range unresolved {
		if id, ok := found[c.CatalogID]; ok {
			c.LibraryID = id
			resolved = append(resolved, c)
			continue
		}
		left = append(left, c)
	}
	return resolved, left, nil
}

// search runs the fuzzy library search up to ResolveAttempts times, doubling the delay each time.
func (r *resolver) search(ctx context.Context, c models.Candidate) (string, error) {
	term := c.Name + " " + shared.PrimaryArtist(c.ArtistName)
	delay := r.cfg.ResolveBaseDelay

	for attempt := 1; attempt <= r.cfg.ResolveAttempts; attempt++ {
		results, err := r.dest.SearchLibrary(ctx, term, r.cfg.SearchLimit)
		if err != nil {
			if ctx.Err() != nil || shared.Classify(err) == shared.KindFatal {
				return "", err
			}
			r.emitter.Debug("library search failed", "track", c.Label(), "attempt", attempt, "err", err)
		} else if id := r.best(c, results); id != "" {
			r.emitter.Debug("library id resolved", "track", c.Label(), "library_id", id, "attempt", attempt)
			return id, nil
		}

		if attempt == r.cfg.ResolveAttempts {
			break
		}
		if delay > 0 {
			if err := r.clock.Sleep(ctx, delay); err != nil {
				return "", err
			}
		}
		delay *= 2
	}
	return "", nil
}

// deepScan pages through recently added library songs and returns catalog id -> library id
// for each wanted candidate it recognises.
func (r *resolver) deepScan(ctx context.Context, wanted []models.Candidate) (map[string]string, error) {
	found := make(map[string]string)
	if r.cfg.ScanPages <= 0 {
		return found, nil
	}
	r.emitter.Info("scanning recently added library songs", "pages", r.cfg.ScanPages, "unresolved", len(wanted))

	offset := 0
	for page := 0; page < r.cfg.ScanPages && len(found) < len(wanted); page++ {
		songs, more, err := r.dest.RecentLibrarySongs(ctx, offset, r.cfg.ScanPageSize)
		if err != nil {
			if ctx.Err() != nil || shared.Classify(err) == shared.KindFatal {
				return nil, err
			}
			r.emitter.Warn("library scan failed", "offset", offset, "err", err)
			break
		}

		for _, c := range wanted {
			if _, done := found[c.CatalogID]; done {
				continue
			}
			if id := r.best(c, songs); id != "" {
				found[c.CatalogID] = id
			}
		}

		if !more || len(songs) == 0 {
			break
		}
		offset += len(songs)
	}
	return found, nil
}

// best picks the library song most similar to c, or "" if none clears MinSimilarity.
// An exact catalog id or composite key match wins outright.
func (r *resolver) best(c models.Candidate, songs []models.Candidate) string {
	key := c.Key()
	var (
		bestID    string
		bestScore float64
	)
	for _, s := range songs {
		if s.LibraryID == "" {
			continue
		}
		if s.CatalogID != "" && s.CatalogID == c.CatalogID {
			return s.LibraryID
		}
		if s.Key() == key {
			return s.LibraryID
		}
		if score := r.similarity(c, s); score > bestScore {
			bestID, bestScore = s.LibraryID, score
		}
	}
	if bestScore >= r.cfg.MinSimilarity {
		return bestID
	}
	return ""
}

// similarity weighs title and primary artist. Known durations that disagree rule a song out.
func (r *resolver) similarity(want, got models.Candidate) float64 {
	within := shared.WithinMS(want.DurationMS, got.DurationMS, r.cfg.DurationToleranceMS)
	if want.DurationMS > 0 && got.DurationMS > 0 && !within {
		return 0
	}
	score := 0.6*textSimilarity(want.Name, got.Name) +
		0.3*textSimilarity(shared.PrimaryArtist(want.ArtistName), shared.PrimaryArtist(got.ArtistName))
	if within {
		score += 0.1
	}
	return score
}

func textSimilarity(a, b string) float64 {
	na, nb := shared.NormalizeText(a), shared.NormalizeText(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	s, err := edlib.StringsSimilarity(na, nb, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(s)
}

