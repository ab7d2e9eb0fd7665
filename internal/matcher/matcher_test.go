package matcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

// fakeCatalog serves ISRC lookups from a map and searches by page size,
// so tests can give the precise and flexible tiers different results.
type fakeCatalog struct {
	mu        sync.Mutex
	byISRC    map[string][]models.Candidate
	byLimit   map[int][]models.Candidate
	searchErr error
	isrcCalls int
	searches  []string
}

func (f *fakeCatalog) SearchByISRC(_ context.Context, isrc string) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isrcCalls++
	return f.byISRC[isrc], nil
}

func (f *fakeCatalog) Search(_ context.Context, term string, limit int) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, term)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.byLimit[limit], nil
}

type recorder struct {
	mu        sync.Mutex
	decisions []Decision
}

func (r *recorder) report(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func (r *recorder) count(tier models.Tier, reasonPrefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.decisions {
		if d.Tier == tier && strings.HasPrefix(d.Reason, reasonPrefix) {
			n++
		}
	}
	return n
}

func source() models.SourceTrack {
	return models.SourceTrack{
		Name:          "Song",
		PrimaryArtist: "Artist",
		Artists:       []string{"Artist"},
		Album:         "Album",
		DurationMS:    200_000,
		Position:      0,
	}
}

func cand(id, name, album string, durationMS int) models.Candidate {
	return models.Candidate{CatalogID: id, Name: name, ArtistName: "Artist", AlbumName: album, DurationMS: durationMS}
}

func newTestMatcher(cat Catalog, rec *recorder) *Matcher {
	return New(cat, DefaultConfig(), rec.report)
}

func TestMatchISRC(t *testing.T) {
	t.Run("accepted without consulting later tiers", func(t *testing.T) {
		cat := &fakeCatalog{
			byISRC:  map[string][]models.Candidate{"USX": {cand("1", "Song", "Album", 200_500)}},
			byLimit: map[int][]models.Candidate{10: {cand("2", "Song", "Album", 200_000)}},
		}
		rec := &recorder{}
		src := source()
		src.ISRC = "USX"

		res, err := newTestMatcher(cat, rec).Match(context.Background(), src)
		if err != nil {
			t.Fatal(err)
		}
		if res.Tier != models.TierISRC || res.Candidate.CatalogID != "1" || res.Confidence != models.ConfidenceHigh {
			t.Errorf("unexpected result %+v", res)
		}
		if len(cat.searches) != 0 {
			t.Errorf("later tiers were consulted: %v", cat.searches)
		}
	})

	t.Run("vetoes live and compilation versions", func(t *testing.T) {
		cat := &fakeCatalog{byISRC: map[string][]models.Candidate{"USX": {
			cand("live", "Song - Live at Wembley", "Live at Wembley", 200_000),
			cand("comp", "Song", "Greatest Hits", 200_000),
			cand("studio", "Song", "Album", 200_000),
		}}}
		rec := &recorder{}
		src := source()
		src.ISRC = "USX"

		res, _ := newTestMatcher(cat, rec).Match(context.Background(), src)
		if res.Candidate == nil || res.Candidate.CatalogID != "studio" {
			t.Fatalf("expected studio version, got %+v", res.Candidate)
		}
		if n := rec.count(models.TierISRC, "veto"); n != 2 {
			t.Errorf("expected 2 vetoes reported, got %d", n)
		}
	})

	t.Run("source with same signal keeps it", func(t *testing.T) {
		cat := &fakeCatalog{byISRC: map[string][]models.Candidate{"USX": {
			cand("live", "Song (Live)", "Live in Paris", 250_000),
		}}}
		src := source()
		src.ISRC = "USX"
		src.Name = "Song - Live"
		src.Album = "Live in Paris"

		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), src)
		if res.Tier != models.TierISRC || res.Candidate.CatalogID != "live" {
			t.Errorf("expected live version to be kept, got %+v", res)
		}
	})

	t.Run("word boundary avoids false veto", func(t *testing.T) {
		cat := &fakeCatalog{byISRC: map[string][]models.Candidate{"USX": {
			cand("1", "Alive", "Album", 200_000),
		}}}
		src := source()
		src.ISRC = "USX"
		src.Name = "Alive"

		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), src)
		if res.Tier != models.TierISRC {
			t.Errorf("expected isrc match, got %+v", res)
		}
	})

	t.Run("album equality outranks duration", func(t *testing.T) {
		cat := &fakeCatalog{byISRC: map[string][]models.Candidate{"USX": {
			cand("other-album", "Song", "Something Else", 200_000),
			cand("same-album", "Song", "Album", 230_000),
		}}}
		src := source()
		src.ISRC = "USX"

		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), src)
		if res.Candidate.CatalogID != "same-album" {
			t.Errorf("expected album match to win, got %s", res.Candidate.CatalogID)
		}
		if res.Score != 10 {
			t.Errorf("expected score 10, got %d", res.Score)
		}
	})

	t.Run("ties keep earlier candidate", func(t *testing.T) {
		cat := &fakeCatalog{byISRC: map[string][]models.Candidate{"USX": {
			cand("first", "Song", "Album", 200_000),
			cand("second", "Song", "Album", 200_000),
		}}}
		src := source()
		src.ISRC = "USX"

		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), src)
		if res.Candidate.CatalogID != "first" {
			t.Errorf("expected first, got %s", res.Candidate.CatalogID)
		}
	})

	t.Run("all vetoed falls through", func(t *testing.T) {
		cat := &fakeCatalog{
			byISRC:  map[string][]models.Candidate{"USX": {cand("rmx", "Song (Club Remix)", "Album", 200_000)}},
			byLimit: map[int][]models.Candidate{10: {cand("p", "Song", "Album", 200_000)}},
		}
		src := source()
		src.ISRC = "USX"

		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), src)
		if res.Tier != models.TierPrecise || res.Candidate.CatalogID != "p" {
			t.Errorf("expected precise fallback, got %+v", res)
		}
	})
}

func TestMatchPrecise(t *testing.T) {
	t.Run("exact metadata", func(t *testing.T) {
		cat := &fakeCatalog{byLimit: map[int][]models.Candidate{10: {
			cand("wrong-album", "Song", "Other", 200_000),
			cand("exact", "Song (Remastered 2011)", "Album (Deluxe Edition)", 201_500),
		}}}
		rec := &recorder{}

		res, _ := newTestMatcher(cat, rec).Match(context.Background(), source())
		if res.Tier != models.TierPrecise || res.Candidate.CatalogID != "exact" {
			t.Fatalf("expected precise match, got %+v", res)
		}
		if cat.isrcCalls != 0 {
			t.Error("isrc lookup should be skipped without an identifier")
		}
		if cat.searches[0] != "song artist album" {
			t.Errorf("unexpected precise term %q", cat.searches[0])
		}
		if rec.count(models.TierPrecise, "album differs") != 1 {
			t.Error("expected album rejection to be reported")
		}
	})

	t.Run("duration outside tolerance falls through", func(t *testing.T) {
		cat := &fakeCatalog{byLimit: map[int][]models.Candidate{
			10: {cand("p", "Song", "Album", 202_500)},
			25: {cand("f", "Song", "Album", 202_500)},
		}}
		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), source())
		if res.Tier != models.TierFlexible {
			t.Errorf("expected flexible tier, got %s", res.Tier)
		}
		if res.Score != 13 {
			t.Errorf("expected exact album + duration within 3000ms, got %d", res.Score)
		}
	})

	t.Run("featured artist credit", func(t *testing.T) {
		c := cand("p", "Song", "Album", 200_000)
		c.ArtistName = "Artist & Guest"
		cat := &fakeCatalog{byLimit: map[int][]models.Candidate{10: {c}}}
		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), source())
		if res.Tier != models.TierPrecise {
			t.Errorf("expected primary artist comparison, got %+v", res)
		}
	})
}

func TestMatchFlexible(t *testing.T) {
	t.Run("short circuits above threshold", func(t *testing.T) {
		cat := &fakeCatalog{byLimit: map[int][]models.Candidate{25: {
			cand("first", "Song", "Album (Deluxe)", 201_000),
			cand("second", "Song", "Album", 200_000),
		}}}
		rec := &recorder{}
		src := source()
		src.Name = "Song!"

		res, _ := newTestMatcher(cat, rec).Match(context.Background(), src)
		if res.Candidate == nil || res.Candidate.CatalogID != "first" {
			t.Fatalf("expected first candidate, got %+v", res)
		}
		if res.Confidence != models.ConfidenceHigh {
			t.Errorf("expected high confidence, got %s", res.Confidence)
		}
		if n := rec.count(models.TierFlexible, "scored"); n != 1 {
			t.Errorf("expected to stop after one scored candidate, scored %d", n)
		}
	})

	t.Run("best across full set", func(t *testing.T) {
		cat := &fakeCatalog{byLimit: map[int][]models.Candidate{25: {
			cand("partial", "Song", "Album Sessions", 100_000),
			cand("exact-a", "Song", "Album", 260_000),
			cand("exact-b", "Song", "Album", 270_000),
		}}}
		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), source())
		if res.Candidate.CatalogID != "exact-a" || res.Score != 10 {
			t.Errorf("expected exact-a with 10, got %s with %d", res.Candidate.CatalogID, res.Score)
		}
		if res.Confidence != models.ConfidenceMedium {
			t.Errorf("expected medium confidence, got %s", res.Confidence)
		}
	})

	t.Run("zero score is low confidence", func(t *testing.T) {
		cat := &fakeCatalog{byLimit: map[int][]models.Candidate{25: {
			cand("x", "Song", "Unrelated", 100_000),
		}}}
		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), source())
		if res.Tier != models.TierFlexible || res.Confidence != models.ConfidenceLow || res.Score != 0 {
			t.Errorf("expected low confidence flexible match, got %+v", res)
		}
	})

	t.Run("veto applies", func(t *testing.T) {
		cat := &fakeCatalog{byLimit: map[int][]models.Candidate{25: {
			cand("live", "Song (Live)", "Album", 200_000),
		}}}
		res, _ := newTestMatcher(cat, &recorder{}).Match(context.Background(), source())
		if res.Tier != models.TierNone || res.Candidate != nil {
			t.Errorf("expected vetoed candidate to leave no match, got %+v", res)
		}
	})

	t.Run("configurable threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ShortCircuitScore = 20
		cat := &fakeCatalog{byLimit: map[int][]models.Candidate{25: {
			cand("a", "Song", "Album", 200_000),
			cand("b", "Song", "Album", 200_000),
		}}}
		rec := &recorder{}
		res, _ := New(cat, cfg, rec.report).Match(context.Background(), source())
		if res.Candidate.CatalogID != "a" {
			t.Errorf("expected tie to keep a, got %s", res.Candidate.CatalogID)
		}
		if n := rec.count(models.TierFlexible, "scored"); n != 2 {
			t.Errorf("expected both candidates scored, got %d", n)
		}
	})
}

func TestMatchNone(t *testing.T) {
	rec := &recorder{}
	res, err := newTestMatcher(&fakeCatalog{}, rec).Match(context.Background(), source())
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != models.TierNone || res.Matched() {
		t.Errorf("expected no match, got %+v", res)
	}
	if rec.count(models.TierNone, "no tier") != 1 {
		t.Error("expected final rejection to be reported")
	}
}

func TestMatchErrors(t *testing.T) {
	t.Run("transient search failure falls through", func(t *testing.T) {
		cat := &fakeCatalog{searchErr: shared.NewAPIError("applemusic", "GET", "/search", http.StatusServiceUnavailable, nil)}
		rec := &recorder{}
		res, err := newTestMatcher(cat, rec).Match(context.Background(), source())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Tier != models.TierNone {
			t.Errorf("expected none, got %s", res.Tier)
		}
		if rec.count(models.TierPrecise, "search failed") != 1 || rec.count(models.TierFlexible, "search failed") != 1 {
			t.Error("expected search failures to be reported per tier")
		}
	})

	t.Run("auth failure aborts", func(t *testing.T) {
		cat := &fakeCatalog{searchErr: shared.NewAPIError("applemusic", "GET", "/search", http.StatusUnauthorized, nil)}
		_, err := newTestMatcher(cat, &recorder{}).Match(context.Background(), source())
		if !shared.IsAuthExpired(err) {
			t.Errorf("expected auth error, got %v", err)
		}
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		cat := &fakeCatalog{searchErr: context.Canceled}
		_, err := newTestMatcher(cat, &recorder{}).Match(ctx, source())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected cancellation, got %v", err)
		}
	})
}

func TestConfig(t *testing.T) {
	t.Run("invalid pattern", func(t *testing.T) {
		mc := shared.DefaultConfig().Matcher
		mc.LivePattern = "("
		if _, err := FromConfig(mc); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("empty pattern disables veto", func(t *testing.T) {
		mc := shared.DefaultConfig().Matcher
		mc.LivePattern = ""
		cfg, err := FromConfig(mc)
		if err != nil {
			t.Fatal(err)
		}
		if sig := cfg.veto(source(), cand("x", "Song (Live)", "Album", 0)); sig != "" {
			t.Errorf("expected no veto, got %s", sig)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		if cfg.ShortCircuitScore != 12 || cfg.ExactAlbumScore != 10 || cfg.PartialAlbumScore != 5 || cfg.DurationScore != 3 {
			t.Errorf("unexpected defaults %+v", cfg)
		}
	})
}
