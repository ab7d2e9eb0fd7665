package tasks

import (
	"fmt"

	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/models"
)

// ProgressUpdate is one step of a bulk export, for display by the CLI.
type ProgressUpdate struct {
	Phase   Phase
	Step    int
	Total   int
	Message string
}

// Phase of a bulk export.
type Phase int

const (
	PhaseFetch Phase = iota
	PhaseExport
	PhaseManifest
)

func (p Phase) String() string {
	switch p {
	case PhaseFetch:
		return "fetch"
	case PhaseExport:
		return "export"
	case PhaseManifest:
		return "manifest"
	default:
		return ""
	}
}

// exportProgress fans a bulk export's updates out to the caller's channel and the broadcast hub.
// Both are best effort: a full channel drops the update, a nil publisher is skipped.
type exportProgress struct {
	id  string
	ch  chan<- ProgressUpdate
	pub broadcast.Publisher
}

func (p exportProgress) send(u ProgressUpdate) {
	if p.pub != nil {
		status := models.SyncRunning
		if u.Phase == PhaseManifest {
			status = models.SyncCompleted
		}
		p.pub.Publish(broadcast.ProgressEvent(p.id, u.Step, u.Total, u.Message, status))
	}
	if p.ch == nil {
		return
	}
	select {
	case p.ch <- u:
	default:
	}
}

func fetchingSourceUpdate(total int, service string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseFetch,
		Total:   total,
		Message: fmt.Sprintf("Fetching %d playlists from %s...", total, service),
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseExport,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseExport,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseExport,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

func manifestWrittenUpdate(ok, total int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseManifest,
		Step:    ok,
		Total:   total,
		Message: fmt.Sprintf("Exported %d/%d playlists, manifest at %s", ok, total, path),
	}
}
