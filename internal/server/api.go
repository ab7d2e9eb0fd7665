package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/formatter"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/scheduler"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/desertthunder/tracksync/internal/tasks"
)

const defaultJobsLimit = 20

// keepAlive is the interval between SSE comment lines on an idle stream.
const keepAlive = 15 * time.Second

// Syncer runs syncs and playlist utilities. Satisfied by [tasks.Orchestrator].
type Syncer interface {
	StartSync(ctx context.Context, req tasks.SyncRequest) (string, error)
	JobStatus(id string) (models.SyncJobSnapshot, error)
	Jobs(limit int) ([]models.SyncJobSnapshot, error)
	DedupePlaylist(ctx context.Context, service, playlistRef string) (*tasks.DedupeResult, error)
	ExportPlaylist(ctx context.Context, service, playlistRef string, f formatter.Format) ([]byte, error)
}

// Schedules manages scheduled jobs. Satisfied by [scheduler.Scheduler].
type Schedules interface {
	Create(name, timeOfDay string, sources []string, destination string, mode models.ScheduleMode) (*models.ScheduledJob, error)
	Get(id string) (*models.ScheduledJob, error)
	List() ([]*models.ScheduledJob, error)
	Update(id string, spec scheduler.JobSpec) (*models.ScheduledJob, error)
	Delete(id string) error
	RunNow(ctx context.Context, id string) (scheduler.RunResult, error)
}

// Subscriber hands out broadcast subscriptions. Satisfied by [broadcast.Hub].
type Subscriber interface {
	Subscribe() *broadcast.Subscription
}

// API serves the JSON endpoints, the SSE event streams and the metrics endpoint.
type API struct {
	syncer    Syncer
	schedules Schedules
	events    Subscriber
	metrics   http.Handler
	logger    *log.Logger

	// wg tracks background scheduled runs started over HTTP.
	wg sync.WaitGroup
}

// APIOption configures an [API].
type APIOption func(*API)

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) APIOption { return func(a *API) { a.metrics = h } }

// WithAPILogger sets the logger.
func WithAPILogger(l *log.Logger) APIOption { return func(a *API) { a.logger = l } }

// NewAPI creates an API. schedules and events may be nil, which disables their routes.
func NewAPI(syncer Syncer, schedules Schedules, events Subscriber, opts ...APIOption) *API {
	a := &API{syncer: syncer, schedules: schedules, events: events, logger: shared.DiscardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds every API route to r.
func (a *API) Register(r *BasicRouter) {
	r.HandleFunc(http.MethodGet, "/healthz", a.health)

	r.HandleFunc(http.MethodPost, "/api/sync", a.startSync)
	r.HandleFunc(http.MethodGet, "/api/jobs", a.listJobs)
	r.HandleFunc(http.MethodGet, "/api/jobs/{id}", a.getJob)

	r.HandleFunc(http.MethodPost, "/api/playlists/{service}/{id}/dedupe", a.dedupe)
	r.HandleFunc(http.MethodGet, "/api/playlists/{service}/{id}/export", a.export)

	if a.events != nil {
		r.HandleFunc(http.MethodGet, "/api/events", a.streamAll)
		r.HandleFunc(http.MethodGet, "/api/jobs/{id}/events", a.streamJob)
	}

	if a.schedules != nil {
		r.HandleFunc(http.MethodGet, "/api/schedules", a.listSchedules)
		r.HandleFunc(http.MethodPost, "/api/schedules", a.createSchedule)
		r.HandleFunc(http.MethodGet, "/api/schedules/{id}", a.getSchedule)
		r.HandleFunc(http.MethodPatch, "/api/schedules/{id}", a.updateSchedule)
		r.HandleFunc(http.MethodDelete, "/api/schedules/{id}", a.deleteSchedule)
		r.HandleFunc(http.MethodPost, "/api/schedules/{id}/run", a.runSchedule)
	}

	if a.metrics != nil {
		r.Handle(http.MethodGet, "/metrics", a.metrics)
	}
}

// Wait blocks until scheduled runs started over HTTP have finished.
func (a *API) Wait() {
	a.wg.Wait()
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) startSync(w http.ResponseWriter, r *http.Request) {
	var req tasks.SyncRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	id, err := a.syncer.StartSync(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			a.writeError(w, fmt.Errorf("%w: limit must be a positive integer", shared.ErrInvalidArgument))
			return
		}
		limit = n
	}

	jobs, err := a.syncer.Jobs(limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.SyncJobSnapshot{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	snap, err := a.syncer.JobStatus(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) dedupe(w http.ResponseWriter, r *http.Request) {
	res, err := a.syncer.DedupePlaylist(r.Context(), r.PathValue("service"), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) export(w http.ResponseWriter, r *http.Request) {
	f, err := formatter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	data, err := a.syncer.ExportPlaylist(r.Context(), r.PathValue("service"), r.PathValue("id"), f)
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, r.PathValue("id"), f.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type createScheduleRequest struct {
	Name        string   `json:"name"`
	TimeOfDay   string   `json:"time_of_day"`
	Sources     []string `json:"sources"`
	Destination string   `json:"destination"`
	Mode        string   `json:"mode"`
}

func (a *API) listSchedules(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.schedules.List()
	if err != nil {
		a.writeError(w, err)
		return
	}
	views := make([]models.ScheduledJobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	mode, err := models.ParseScheduleMode(req.Mode)
	if err != nil {
		a.writeError(w, err)
		return
	}

	job, err := a.schedules.Create(req.Name, req.TimeOfDay, req.Sources, req.Destination, mode)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/schedules/"+job.ID())
	writeJSON(w, http.StatusCreated, job.View())
}

func (a *API) getSchedule(w http.ResponseWriter, r *http.Request) {
	job, err := a.schedules.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job.View())
}

func (a *API) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var spec scheduler.JobSpec
	if err := decode(w, r, &spec); err != nil {
		a.writeError(w, err)
		return
	}

	job, err := a.schedules.Update(r.PathValue("id"), spec)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job.View())
}

func (a *API) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := a.schedules.Delete(r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runSchedule starts a scheduled job immediately. With ?wait=true the response carries the
// finished runs; otherwise the job runs in the background and the call returns 202.
func (a *API) runSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.schedules.Get(id); err != nil {
		a.writeError(w, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		res, err := a.schedules.RunNow(r.Context(), id)
		if err != nil {
			a.writeError(w, err)
			return
		}
		body := map[string]any{"job_id": res.JobID, "runs": res.Runs}
		if res.Err != nil {
			body["error"] = res.Err.Error()
		}
		writeJSON(w, http.StatusOK, body)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if _, err := a.schedules.RunNow(ctx, id); err != nil {
			a.logger.Error("scheduled run failed", "id", id, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (a *API) streamAll(w http.ResponseWriter, r *http.Request) {
	sub := a.events.Subscribe()
	defer sub.Close()
	a.stream(w, r, sub, "")
}

// streamJob follows one sync job and ends after its finish event. A job that has already
// finished gets its finish event immediately.
func (a *API) streamJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sub := a.events.Subscribe()
	defer sub.Close()

	snap, err := a.syncer.JobStatus(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if snap.Status.Terminal() {
		if !startStream(w) {
			a.writeError(w, fmt.Errorf("streaming unsupported"))
			return
		}
		_ = writeEvent(w, broadcast.FinishEvent(snap))
		flush(w)
		return
	}
	a.stream(w, r, sub, id)
}

func (a *API) stream(w http.ResponseWriter, r *http.Request, sub *broadcast.Subscription, jobID string) {
	if !startStream(w) {
		a.writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}
	flush(w)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flush(w)
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if jobID != "" && e.JobID != jobID {
				continue
			}
			if err := writeEvent(w, e); err != nil {
				a.logger.Debug("event stream closed", "error", err)
				return
			}
			flush(w)
			if jobID != "" && e.Kind == broadcast.KindFinish {
				return
			}
		}
	}
}

func startStream(w http.ResponseWriter) bool {
	if _, ok := w.(http.Flusher); !ok {
		return false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return true
}

// writeEvent writes e in the text/event-stream framing, named after its kind.
func writeEvent(w http.ResponseWriter, e broadcast.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
	return err
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// StatusFor maps an error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrJobNotFound),
		errors.Is(err, shared.ErrPlaylistNotFound),
		errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrUnsupportedKind):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrMissingCredentials),
		errors.Is(err, shared.ErrNotAuthenticated):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
