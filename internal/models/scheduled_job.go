package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tracksync/internal/shared"
)

// TimeOfDayLayout is the format of [ScheduledJob.TimeOfDay].
const TimeOfDayLayout = "15:04"

// ScheduleMode is how a scheduled job maps sources onto its destination.
type ScheduleMode string

const (
	// ModeSingle syncs exactly one source into the destination.
	ModeSingle ScheduleMode = "single"
	// ModeCombine syncs every source, in order, into one destination.
	ModeCombine ScheduleMode = "combine"
)

// ParseScheduleMode accepts "single" or "combine" (case-insensitive).
func ParseScheduleMode(s string) (ScheduleMode, error) {
	switch m := ScheduleMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSingle, ModeCombine:
		return m, nil
	case "":
		return ModeSingle, nil
	default:
		return "", fmt.Errorf("%w: mode must be single or combine, got %q", shared.ErrInvalidArgument, s)
	}
}

// ScheduledJob is a persisted recurring sync definition.
type ScheduledJob struct {
	id          string
	sequence    int
	name        string
	timeOfDay   string
	sources     []string
	destination string
	mode        ScheduleMode
	enabled     bool
	lastRunAt   *time.Time
	nextRunAt   *time.Time
	lastStatus  string
	lastError   string
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

// NewScheduledJob creates an enabled job; the ID is assigned by the repository.
func NewScheduledJob(sequence int, name, timeOfDay string, sources []string, destination string, mode ScheduleMode) *ScheduledJob {
	now := time.Now()
	return &ScheduledJob{
		sequence:    sequence,
		name:        name,
		timeOfDay:   timeOfDay,
		sources:     append([]string(nil), sources...),
		destination: destination,
		mode:        mode,
		enabled:     true,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (j *ScheduledJob) ID() string { return j.id }
func (j *ScheduledJob) Sequence() int { return j.sequence }
func (j *ScheduledJob) Name() string { return j.name }
func (j *ScheduledJob) TimeOfDay() string { return j.timeOfDay }
func (j *ScheduledJob) Sources() []string { return append([]string(nil), j.sources...) }
func (j *ScheduledJob) Destination() string { return j.destination }
func (j *ScheduledJob) Mode() ScheduleMode { return j.mode }
func (j *ScheduledJob) Enabled() bool { return j.enabled }
func (j *ScheduledJob) LastRunAt() *time.Time { return j.lastRunAt }
func (j *ScheduledJob) NextRunAt() *time.Time { return j.nextRunAt }
func (j *ScheduledJob) LastStatus() string { return j.lastStatus }
func (j *ScheduledJob) LastError() string { return j.lastError }
func (j *ScheduledJob) CreatedAt() time.Time { return j.createdAt }
func (j *ScheduledJob) UpdatedAt() time.Time { return j.updatedAt }
func (j *ScheduledJob) DeletedAt() *time.Time { return j.deletedAt }
func (j *ScheduledJob) SetID(id string) { j.id = id }
func (j *ScheduledJob) SetSequence(seq int) { j.sequence = seq }
func (j *ScheduledJob) SetName(name string) { j.name = name }
func (j *ScheduledJob) SetTimeOfDay(s string) { j.timeOfDay = s }
func (j *ScheduledJob) SetDestination(s string) { j.destination = s }
func (j *ScheduledJob) SetSources(sources []string) {
	j.sources = append([]string(nil), sources...)
}
func (j *ScheduledJob) SetMode(m ScheduleMode) { j.mode = m }
func (j *ScheduledJob) SetEnabled(enabled bool) { j.enabled = enabled }
func (j *ScheduledJob) SetLastRunAt(t *time.Time) { j.lastRunAt = t }
func (j *ScheduledJob) SetNextRunAt(t *time.Time) { j.nextRunAt = t }
func (j *ScheduledJob) SetLastStatus(s string) { j.lastStatus = s }
func (j *ScheduledJob) SetLastError(s string) { j.lastError = s }
func (j *ScheduledJob) SetCreatedAt(t time.Time) { j.createdAt = t }
func (j *ScheduledJob) SetUpdatedAt(t time.Time) { j.updatedAt = t }
func (j *ScheduledJob) SetDeletedAt(t *time.Time) { j.deletedAt = t }

// Due reports whether the job is enabled and its next run is at or before now.
func (j *ScheduledJob) Due(now time.Time) bool {
	return j.enabled && j.nextRunAt != nil && !j.nextRunAt.After(now)
}

// NextOccurrence returns the first instant strictly after now at the job's time of day, in now's location.
func (j *ScheduledJob) NextOccurrence(now time.Time) (time.Time, error) {
	tod, err := time.Parse(TimeOfDayLayout, j.timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time of day must be HH:MM, got %q", shared.ErrInvalidArgument, j.timeOfDay)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// Validate checks the job definition.
func (j *ScheduledJob) Validate() error {
	if strings.TrimSpace(j.name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrMissingArgument)
	}
	if _, err := time.Parse(TimeOfDayLayout, j.timeOfDay); err != nil {
		return fmt.Errorf("%w: time of day must be HH:MM, got %q", shared.ErrInvalidArgument, j.timeOfDay)
	}
	if j.destination == "" {
		return fmt.Errorf("%w: destination is required", shared.ErrMissingArgument)
	}
	if len(j.sources) == 0 {
		return fmt.Errorf("%w: at least one source is required", shared.ErrMissingArgument)
	}
	switch j.mode {
	case ModeSingle:
		if len(j.sources) != 1 {
			return fmt.Errorf("%w: single mode takes exactly one source, got %d", shared.ErrInvalidArgument, len(j.sources))
		}
	case ModeCombine:
	default:
		return fmt.Errorf("%w: unknown mode %q", shared.ErrInvalidArgument, j.mode)
	}
	return nil
}

// ScheduledJobView is the serializable form of a [ScheduledJob].
type ScheduledJobView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	TimeOfDay   string       `json:"time_of_day"`
	Sources     []string     `json:"sources"`
	Destination string       `json:"destination"`
	Mode        ScheduleMode `json:"mode"`
	Enabled     bool         `json:"enabled"`
	LastRunAt   *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time   `json:"next_run_at,omitempty"`
	LastStatus  string       `json:"last_status,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
}

// View returns the serializable form of j.
func (j *ScheduledJob) View() ScheduledJobView {
	return ScheduledJobView{
		ID:          j.id,
		Name:        j.name,
		TimeOfDay:   j.timeOfDay,
		Sources:     j.Sources(),
		Destination: j.destination,
		Mode:        j.mode,
		Enabled:     j.enabled,
		LastRunAt:   j.lastRunAt,
		NextRunAt:   j.nextRunAt,
		LastStatus:  j.lastStatus,
		LastError:   j.lastError,
	}
}
