package transfer

import (
	"context"
	"fmt"

	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/ratelimit"
	"github.com/desertthunder/tracksync/internal/shared"
)

const (
	StrategyBatch   = "batch_insert"
	StrategyLibrary = "library_fallback"
	StrategySingle  = "single_insert"
)

func insertIDs(batch []models.Candidate) []string {
	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.InsertID()
	}
	return ids
}

type batchInsert struct {
	dest Destination
}

func (s *batchInsert) Name() string            { return StrategyBatch }
func (s *batchInsert) Handles(prev error) bool { return prev == nil }

func (s *batchInsert) Insert(ctx context.Context, playlistID string, batch []models.Candidate) (Outcome, error) {
	if err := s.dest.AddToPlaylist(ctx, playlistID, insertIDs(batch)); err != nil {
		return Outcome{}, err
	}
	return Outcome{Added: batch}, nil
}

// singleInsert sends one call per candidate so one bad id cannot sink its neighbours.
type singleInsert struct {
	dest    Destination
	emitter *broadcast.Emitter
}

func (s *singleInsert) Name() string { return StrategySingle }

func (s *singleInsert) Handles(prev error) bool {
	return prev != nil && !shared.IsNotFound(prev)
}

func (s *singleInsert) Insert(ctx context.Context, playlistID string, batch []models.Candidate) (Outcome, error) {
	var out Outcome
	for i, c := range batch {
		if err := ctx.Err(); err != nil {
			for _, rest := range batch[i:] {
				out.Failed = append(out.Failed, Failure{Candidate: rest, Reason: err.Error()})
			}
			return out, nil
		}

		if err := s.dest.AddToPlaylist(ctx, playlistID, []string{c.InsertID()}); err != nil {
			s.emitter.Warn("single insert failed", "track", c.Label(), "id", c.InsertID(), "err", err)
			out.Failed = append(out.Failed, Failure{Candidate: c, Reason: err.Error()})
			continue
		}
		s.emitter.Debug("single insert ok", "track", c.Label())
		out.Added = append(out.Added, c)
	}
	return out, nil
}

// libraryFallback handles playlists that refuse catalog ids: each candidate is added to the
// user's library first, its library id is resolved, and the library ids are inserted instead.
type libraryFallback struct {
	dest    Destination
	cfg     Config
	emitter *broadcast.Emitter
	clock   ratelimit.Clock
}

func (s *libraryFallback) Name() string            { return StrategyLibrary }
func (s *libraryFallback) Handles(prev error) bool { return shared.IsNotFound(prev) }

func (s *libraryFallback) Insert(ctx context.Context, playlistID string, batch []models.Candidate) (Outcome, error) {
	var out Outcome

	pending := make([]models.Candidate, 0, len(batch))
	for _, c := range batch {
		if c.LibraryID != "" {
			pending = append(pending, c)
			continue
		}
		if err := s.dest.AddToLibrary(ctx, c.CatalogID); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			s.emitter.Warn("library add failed", "track", c.Label(), "catalog_id", c.CatalogID, "err", err)
			out.Failed = append(out.Failed, Failure{Candidate: c, Reason: "library add failed: " + err.Error()})
			continue
		}
		s.emitter.Debug("added to library", "track", c.Label(), "catalog_id", c.CatalogID)
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		return out, nil
	}

	if s.cfg.LibraryIndexWait > 0 {
		s.emitter.Info("waiting for library to index", "wait", s.cfg.LibraryIndexWait, "tracks", len(pending))
		if err := s.clock.Sleep(ctx, s.cfg.LibraryIndexWait); err != nil {
			return out, err
		}
	}

	r := &resolver{dest: s.dest, cfg: s.cfg, clock: s.clock, emitter: s.emitter}
	resolved, unresolved, err := r.resolveAll(ctx, pending)
	if err != nil {
		return out, err
	}
	for _, c := range unresolved {
		s.emitter.Warn("library id not resolved", "track", c.Label())
		out.Failed = append(out.Failed, Failure{Candidate: c, Reason: "library id not resolved"})
	}
	if len(resolved) == 0 {
		return out, nil
	}

	err = s.dest.AddToPlaylist(ctx, playlistID, insertIDs(resolved))
	if err == nil {
		out.Added = append(out.Added, resolved...)
		return out, nil
	}
	s.emitter.Warn("library id batch insert failed, inserting one by one", "size", len(resolved), "err", err)

	single := &singleInsert{dest: s.dest, emitter: s.emitter}
	one, _ := single.Insert(ctx, playlistID, resolved)
	out.Added = append(out.Added, one.Added...)
	for _, f := range one.Failed {
		f.Reason = fmt.Sprintf("library id insert failed: %s", f.Reason)
		out.Failed = append(out.Failed, f)
	}
	return out, nil
}
