package broadcast

import (
	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/models"
)

// Emitter writes each message to a logger and publishes it as a job-scoped event.
//
// A nil Publisher is allowed; events are then only logged.
type Emitter struct {
	pub    Publisher
	logger *log.Logger
	jobID  string
}

// NewEmitter creates an Emitter for jobID.
func NewEmitter(pub Publisher, logger *log.Logger, jobID string) *Emitter {
	if logger == nil {
		logger = log.Default()
	}
	return &Emitter{pub: pub, logger: logger, jobID: jobID}
}

// JobID returns the job this emitter reports for.
func (e *Emitter) JobID() string { return e.jobID }

// Logger returns the emitter's logger.
func (e *Emitter) Logger() *log.Logger { return e.logger }

func (e *Emitter) Debug(msg string, kv ...any) { e.emit(log.DebugLevel, msg, kv...) }
func (e *Emitter) Info(msg string, kv ...any)  { e.emit(log.InfoLevel, msg, kv...) }
func (e *Emitter) Warn(msg string, kv ...any)  { e.emit(log.WarnLevel, msg, kv...) }
func (e *Emitter) Error(msg string, kv ...any) { e.emit(log.ErrorLevel, msg, kv...) }

// Progress publishes a progress tick.
func (e *Emitter) Progress(current, total int, step string, status models.SyncStatus) {
	if e.pub != nil {
		e.pub.Publish(ProgressEvent(e.jobID, current, total, step, status))
	}
}

// Finish publishes the terminal event for snap.
func (e *Emitter) Finish(snap models.SyncJobSnapshot) {
	if e.pub != nil {
		e.pub.Publish(FinishEvent(snap))
	}
}

func (e *Emitter) emit(level log.Level, msg string, kv ...any) {
	e.logger.Log(level, msg, kv...)
	if e.pub != nil {
		e.pub.Publish(LogEvent(e.jobID, level.String(), msg, kv...))
	}
}
