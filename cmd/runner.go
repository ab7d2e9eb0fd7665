package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/metrics"
	"github.com/desertthunder/tracksync/internal/ratelimit"
	"github.com/desertthunder/tracksync/internal/repositories"
	"github.com/desertthunder/tracksync/internal/scheduler"
	"github.com/desertthunder/tracksync/internal/services"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/desertthunder/tracksync/internal/tasks"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Services, the database and the orchestrator are built on first use so commands that
// never touch them (setup, auth) work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	metrics    *metrics.Metrics
	hub        *broadcast.Hub

	source       services.Source
	dest         services.Destination
	db           *sql.DB
	orchestrator *tasks.Orchestrator
	scheduler    *scheduler.Scheduler
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Source      services.Source
	Destination services.Destination
	DB          *sql.DB
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Sync.HTTPTimeout}
	}

	m := metrics.New()
	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		metrics:    m,
		hub:        broadcast.NewHub(broadcast.DefaultBufferSize, opts.Logger, m),
		source:     opts.Source,
		dest:       opts.Destination,
		db:         opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, statusCommand, jobsCommand, playlistsCommand,
		dedupeCommand, exportCommand, scheduleCommand, serveCommand, tuiCommand, dbCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database, if one was opened.
func (r *Runner) Close() error {
	r.hub.Close()
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// services builds the Spotify source and Apple Music destination from config when they were not injected.
// A service without credentials stays nil; operations that need it fail with [shared.ErrMissingCredentials].
func (r *Runner) services() {
	if r.source == nil {
		exec := ratelimit.NewExecutor("spotify", r.config.RateLimit.Spotify,
			ratelimit.WithLogger(r.logger), ratelimit.WithMetrics(r.metrics))
		svc, err := services.NewSpotifyService(r.config.Credentials.Spotify.Map(),
			services.WithSpotifyHTTPClient(r.httpClient),
			services.WithSpotifyExecutor(exec),
			services.WithSpotifyLogger(r.logger),
			services.WithTokenSaver(r.saveTokens),
		)
		if err != nil {
			r.logger.Debug("spotify unavailable", "err", err)
		} else {
			r.source = svc
		}
	}

	if r.dest == nil {
		exec := ratelimit.NewExecutor("applemusic", r.config.RateLimit.AppleMusic,
			ratelimit.WithLogger(r.logger), ratelimit.WithMetrics(r.metrics))
		svc, err := services.NewAppleMusicService(r.config.Credentials.AppleMusic,
			services.WithAppleMusicHTTPClient(r.httpClient),
			services.WithAppleMusicExecutor(exec),
			services.WithAppleMusicLogger(r.logger),
		)
		if err != nil {
			r.logger.Debug("apple music unavailable", "err", err)
		} else {
			r.dest = svc
		}
	}
}

// database opens the configured database and marks jobs left running by a previous process as interrupted.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}

	n, err := repositories.NewSyncJobRepository(db).MarkInterrupted()
	if err != nil {
		db.Close()
		return nil, err
	}
	if n > 0 {
		r.logger.Warn("marked interrupted sync jobs", "count", n)
	}
	r.db = db
	return db, nil
}

// Orchestrator returns the sync orchestrator, building it on first use.
func (r *Runner) Orchestrator() (*tasks.Orchestrator, error) {
	if r.orchestrator != nil {
		return r.orchestrator, nil
	}

	cfg, err := tasks.ConfigFrom(r.config)
	if err != nil {
		return nil, err
	}
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	r.services()

	r.orchestrator = tasks.NewOrchestrator(r.source, r.dest, cfg,
		tasks.WithJobStore(repositories.NewSyncJobRepository(db)),
		tasks.WithPublisher(r.hub),
		tasks.WithLogger(r.logger),
		tasks.WithMetrics(r.metrics),
	)
	return r.orchestrator, nil
}

// Scheduler returns the auto-sync scheduler backed by the orchestrator.
func (r *Runner) Scheduler() (*scheduler.Scheduler, error) {
	if r.scheduler != nil {
		return r.scheduler, nil
	}
	orch, err := r.Orchestrator()
	if err != nil {
		return nil, err
	}
	r.scheduler = scheduler.New(repositories.NewScheduledJobRepository(r.db), orch,
		scheduler.WithInterval(r.config.Scheduler.Interval),
		scheduler.WithLogger(r.logger),
		scheduler.WithMetrics(r.metrics),
	)
	return r.scheduler, nil
}

// saveTokens persists a refreshed or newly issued Spotify token to the config file.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return errors.New("config is nil")
	}
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// writeTable renders rows under header as an aligned text table.
func (r *Runner) writeTable(header []string, rows [][]string) {
	table := tablewriter.NewWriter(r.output)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetRowLine(false)
	table.AppendBulk(rows)
	table.Render()
}
