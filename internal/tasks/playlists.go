package tasks

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/desertthunder/tracksync/internal/dedup"
	"github.com/desertthunder/tracksync/internal/formatter"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/services"
	"github.com/desertthunder/tracksync/internal/shared"
)

// DedupeSuffix is appended to the name of a deduplicated playlist copy.
const DedupeSuffix = " (deduped)"

// DedupeResult reports a [Orchestrator.DedupePlaylist] run.
type DedupeResult struct {
	OriginalCount  int            `json:"original_count"`
	NewCount       int            `json:"new_count"`
	NewPlaylistRef string         `json:"new_playlist_ref"`
	Removed        []models.Track `json:"removed,omitempty"`
}

// Service resolves a service by name ("spotify", "applemusic", "Apple Music", ...).
func (o *Orchestrator) Service(name string) (services.Service, error) {
	key := serviceKey(name)
	if key == "" {
		return nil, fmt.Errorf("%w: service", shared.ErrMissingArgument)
	}
	for _, svc := range []services.Service{o.source, o.dest} {
		if svc != nil && serviceKey(svc.Name()) == key {
			return svc, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown service %q", shared.ErrInvalidArgument, name)
}

func serviceKey(name string) string {
	key := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			return -1
		}
		return unicode.ToLower(r)
	}, name)
	if key == "apple" {
		return "applemusic"
	}
	return key
}

// DedupePlaylist reads a playlist, removes duplicates and writes the kept tracks, in order,
// to a new playlist named "<name> (deduped)" on the same service. The original is not modified.
func (o *Orchestrator) DedupePlaylist(ctx context.Context, service, playlistRef string) (*DedupeResult, error) {
	if playlistRef == "" {
		return nil, fmt.Errorf("%w: playlist", shared.ErrMissingArgument)
	}
	svc, err := o.Service(service)
	if err != nil {
		return nil, err
	}

	export, err := svc.ExportPlaylist(ctx, playlistRef)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	kept, removed := dedup.Dedupe(export.Tracks)
	o.logger.Info("deduplicated playlist", "service", svc.Name(), "playlist", export.Playlist.Name,
		"original", len(export.Tracks), "kept", len(kept), "removed", len(removed))

	desc := fmt.Sprintf("Deduplicated copy of %s (%d duplicates removed)", export.Playlist.Name, len(removed))
	created, err := svc.CreatePlaylist(ctx, export.Playlist.Name+DedupeSuffix, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	ids := make([]string, 0, len(kept))
	for _, t := range kept {
		if id := t.Candidate().InsertID(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		if err := svc.AddToPlaylist(ctx, created.ID, ids); err != nil {
			return nil, fmt.Errorf("failed to fill playlist %s: %w", created.ID, err)
		}
	}

	return &DedupeResult{
		OriginalCount:  len(export.Tracks),
		NewCount:       len(kept),
		NewPlaylistRef: created.ID,
		Removed:        removed,
	}, nil
}

// ExportPlaylist reads a playlist from service and serializes it in format f.
func (o *Orchestrator) ExportPlaylist(ctx context.Context, service, playlistRef string, f formatter.Format) ([]byte, error) {
	if playlistRef == "" {
		return nil, fmt.Errorf("%w: playlist", shared.ErrMissingArgument)
	}
	svc, err := o.Service(service)
	if err != nil {
		return nil, err
	}

	export, err := svc.ExportPlaylist(ctx, playlistRef)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	return formatter.Export(export, f)
}
