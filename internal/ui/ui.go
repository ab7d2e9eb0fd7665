package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/services"
	"github.com/desertthunder/tracksync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	TrackListView
	ConfirmView
	TransferView
	ResultView
)

// maxLogLines is how many job log lines the transfer view keeps.
const maxLogLines = 8

// Syncer starts syncs and reports their state.
type Syncer interface {
	StartSync(ctx context.Context, req tasks.SyncRequest) (string, error)
	JobStatus(id string) (models.SyncJobSnapshot, error)
}

// Subscriber is the read side of the broadcast hub.
type Subscriber interface {
	Subscribe() *broadcast.Subscription
}

// Options configure where a selected playlist is synced to.
type Options struct {
	Destination string
	DryRun      bool
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	view   ViewState
	source services.Source
	syncer Syncer
	events Subscriber
	opts   Options

	// watching is set when the model only follows an existing job.
	watching bool

	width        int
	height       int
	playlistList list.Model
	trackList    list.Model
	selected     models.Playlist
	tracks       []models.SourceTrack
	sub          *broadcast.Subscription
	jobID        string
	progress     broadcast.Progress
	bar          progress.Model
	logs         []broadcast.Log
	result       *models.SyncJobSnapshot
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates the interactive playlist browser.
func NewModel(ctx context.Context, source services.Source, syncer Syncer, events Subscriber, opts Options) *Model {
	return &Model{
		ctx:    ctx,
		view:   PlaylistListView,
		source: source,
		syncer: syncer,
		events: events,
		opts:   opts,
		bar:    progress.New(progress.WithDefaultGradient()),
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// NewWatchModel follows a job that has already been started, using a subscription opened before the start.
// The program quits once the job finishes.
func NewWatchModel(ctx context.Context, syncer Syncer, sub *broadcast.Subscription, jobID string) *Model {
	return &Model{
		ctx:      ctx,
		view:     TransferView,
		syncer:   syncer,
		sub:      sub,
		jobID:    jobID,
		watching: true,
		bar:      progress.New(progress.WithDefaultGradient()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Result returns the final job state once the transfer finished.
func (m *Model) Result() (*models.SyncJobSnapshot, error) {
	return m.result, m.err
}

// Init fetches playlists, or starts listening when following a job.
func (m *Model) Init() tea.Cmd {
	if m.watching {
		return m.waitForEvent()
	}
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.playlistList.Items() != nil {
			m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		}
		if m.trackList.Items() != nil {
			m.trackList.SetSize(msg.Width-4, msg.Height-8)
		}
		m.bar.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case TransferView:
			if key.Matches(msg, m.keys.quit) {
				m.closeSub()
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsData)
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList = list.New(items, list.NewDefaultDelegate(), m.width-4, m.height-8)
		m.playlistList.Title = fmt.Sprintf("%s Playlists", m.source.Name())
		return m, nil

	case MsgTracksFetched:
		data := msg.data.(tracksData)
		if data.err != nil {
			m.err = data.err
			m.view = PlaylistListView
			return m, nil
		}
		m.selected = data.playlist
		m.tracks = data.tracks
		items := make([]list.Item, len(data.tracks))
		for i, t := range data.tracks {
			items[i] = trackItem{track: t}
		}
		m.trackList = list.New(items, list.NewDefaultDelegate(), m.width-4, m.height-8)
		m.trackList.Title = fmt.Sprintf("Tracks in '%s'", data.playlist.Name)
		m.view = TrackListView
		return m, nil

	case MsgSyncStarted:
		data := msg.data.(startedData)
		if data.err != nil {
			m.closeSub()
			m.err = data.err
			m.view = ResultView
			return m, nil
		}
		m.jobID = data.jobID
		return m, m.waitForEvent()

	case MsgEvent:
		e := msg.data.(broadcast.Event)
		if e.JobID != m.jobID {
			return m, m.waitForEvent()
		}
		switch e.Kind {
		case broadcast.KindProgress:
			m.progress = *e.Progress
		case broadcast.KindLog:
			m.logs = append(m.logs, *e.Log)
			if len(m.logs) > maxLogLines {
				m.logs = m.logs[len(m.logs)-maxLogLines:]
			}
		case broadcast.KindFinish:
			m.closeSub()
			return m, m.fetchResult()
		}
		return m, m.waitForEvent()

	case MsgSyncFinished:
		data := msg.data.(finishedData)
		m.result = &data.snap
		m.err = data.err
		if m.err == nil && data.snap.Status == models.SyncError {
			m.err = fmt.Errorf("%s", data.snap.Error)
		}
		m.view = ResultView
		if m.watching {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case TransferView:
		return m.renderTransfer()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlistList.Items() == nil {
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.playlistList.FilterState() != list.Filtering {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.open):
			if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok {
				return m, m.fetchTracks(pl.playlist)
			}
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		return m, nil
	case key.Matches(msg, m.keys.sync):
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.cancel), key.Matches(msg, m.keys.back):
		m.view = TrackListView
		return m, nil
	case key.Matches(msg, m.keys.confirm):
		m.view = TransferView
		return m, m.startSync()
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.again) && !m.watching:
		m.view = PlaylistListView
		m.jobID = ""
		m.progress = broadcast.Progress{}
		m.logs = nil
		m.result = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		if m.playlistList.Items() == nil {
			return m, nil
		}
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.source.Playlists(m.ctx)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) fetchTracks(pl models.Playlist) tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.source.SourceTracks(m.ctx, pl.ID)
		return tracksFetchedMsg(pl, tracks, err)
	}
}

// startSync subscribes before starting so no event of the new job is missed.
func (m *Model) startSync() tea.Cmd {
	m.closeSub()
	m.sub = m.events.Subscribe()
	req := tasks.SyncRequest{SourceRef: m.selected.ID, DestinationRef: m.opts.Destination, DryRun: m.opts.DryRun}
	return func() tea.Msg {
		id, err := m.syncer.StartSync(m.ctx, req)
		return syncStartedMsg(id, err)
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		select {
		case e, ok := <-sub.C():
			if !ok {
				snap, err := m.syncer.JobStatus(m.jobID)
				return syncFinishedMsg(snap, err)
			}
			return eventMsg(e)
		case <-m.ctx.Done():
			return syncFinishedMsg(models.SyncJobSnapshot{ID: m.jobID}, m.ctx.Err())
		}
	}
}

func (m *Model) fetchResult() tea.Cmd {
	id := m.jobID
	return func() tea.Msg {
		snap, err := m.syncer.JobStatus(id)
		return syncFinishedMsg(snap, err)
	}
}

func (m *Model) closeSub() {
	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
}

func (m *Model) renderPlaylistList() string {
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), m.help.ShortHelpView(m.keys.playlistHelp()))
}

func (m *Model) renderTrackList() string {
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), m.help.ShortHelpView(m.keys.trackHelp()))
}

func (m *Model) renderConfirm() string {
	verb := "Sync"
	if m.opts.DryRun {
		verb = "Dry-run sync"
	}
	title := styles.title.Render(fmt.Sprintf("%s '%s' into %s?", verb, m.selected.Name, m.opts.Destination))
	info := fmt.Sprintf("Playlist: %s\nTracks: %d\n", m.selected.Name, len(m.tracks))

	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(m.keys.confirmHelp()))
}

func (m *Model) renderTransfer() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Syncing"))
	b.WriteString("\n")
	if m.jobID != "" {
		fmt.Fprintf(&b, "Job %s\n\n", m.jobID)
	}

	step := m.progress.Step
	if step == "" {
		step = "starting"
	}
	fmt.Fprintf(&b, "%s (%d/%d)\n", step, m.progress.Current, m.progress.Total)

	var pct float64
	if m.progress.Total > 0 {
		pct = float64(m.progress.Current) / float64(m.progress.Total)
	}
	b.WriteString(m.bar.ViewAs(pct))
	b.WriteString("\n\n")

	for _, l := range m.logs {
		fmt.Fprintf(&b, "%s %s\n", styles.Level(l.Level), l.Message)
	}
	return b.String()
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView(m.keys.resultHelp(m.watching))

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Sync failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.result == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	r := m.result
	title := styles.ok.Render("✓ Sync Complete!")
	if r.DryRun {
		title = styles.ok.Render("✓ Dry Run Complete!")
	}
	info := fmt.Sprintf(
		"\nStatus: %s\nTotal: %d\nMatched: %d\nSkipped (already present): %d\nUnavailable: %d\nAdded: %d\nFailed to add: %d",
		styles.Status(r.Status),
		r.Stats.Total,
		r.Stats.Matched,
		r.Stats.SkippedDuplicate,
		r.Stats.Unavailable,
		r.Stats.Added,
		r.Stats.FailedToAdd,
	)
	if r.Stats.FailedToAdd > 0 {
		info += "\n\n" + styles.warn.Render(fmt.Sprintf("%d tracks could not be added", r.Stats.FailedToAdd))
	}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
