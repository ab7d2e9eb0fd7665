package broadcast

import (
	"time"

	"github.com/desertthunder/tracksync/internal/models"
)

// Kind is the type of a broadcast [Event].
type Kind string

const (
	KindProgress Kind = "progress"
	KindLog      Kind = "log"
	KindFinish   Kind = "finish"
)

// Event is one message on the broadcast channel. Exactly one of Progress, Log or Finish is set.
type Event struct {
	Kind     Kind      `json:"kind"`
	JobID    string    `json:"job_id,omitempty"`
	Time     time.Time `json:"time"`
	Progress *Progress `json:"progress,omitempty"`
	Log      *Log      `json:"log,omitempty"`
	Finish   *Finish   `json:"finish,omitempty"`
}

// Progress is a progress tick.
type Progress struct {
	Current int               `json:"current"`
	Total   int               `json:"total"`
	Step    string            `json:"step"`
	Status  models.SyncStatus `json:"status"`
}

// Log is a human-readable log line with optional structured fields.
type Log struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Finish is the terminal event of a job.
type Finish struct {
	Status models.SyncStatus `json:"status"`
	Stats  models.SyncStats  `json:"stats"`
	Error  string            `json:"error,omitempty"`
}

// ProgressEvent builds a progress tick.
func ProgressEvent(jobID string, current, total int, step string, status models.SyncStatus) Event {
	return Event{
		Kind:     KindProgress,
		JobID:    jobID,
		Time:     time.Now(),
		Progress: &Progress{Current: current, Total: total, Step: step, Status: status},
	}
}

// LogEvent builds a log line. kv is a flat list of key/value pairs, as accepted by log.Logger.
func LogEvent(jobID, level, message string, kv ...any) Event {
	return Event{
		Kind:  KindLog,
		JobID: jobID,
		Time:  time.Now(),
		Log:   &Log{Level: level, Message: message, Fields: fields(kv)},
	}
}

// FinishEvent builds the terminal event for a job snapshot.
func FinishEvent(snap models.SyncJobSnapshot) Event {
	return Event{
		Kind:   KindFinish,
		JobID:  snap.ID,
		Time:   time.Now(),
		Finish: &Finish{Status: snap.Status, Stats: snap.Stats, Error: snap.Error},
	}
}

func fields(kv []any) map[string]any {
	if len(kv) < 2 {
		return nil
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, ok := kv[i+1].(error); ok {
			m[key] = err.Error()
			continue
		}
		m[key] = kv[i+1]
	}
	return m
}
