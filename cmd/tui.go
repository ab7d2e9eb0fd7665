package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/desertthunder/tracksync/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/tracksync-tui.log"

// TUI launches the interactive terminal UI for browsing Spotify playlists and syncing one.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.useFileLogger(); err != nil {
		return err
	}

	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}
	if r.source == nil {
		return fmt.Errorf("%w: spotify is not authenticated, run 'tracksync auth'", shared.ErrMissingCredentials)
	}

	model := ui.NewModel(ctx, r.source, orch, r.hub, ui.Options{
		Destination: cmd.String("dest"),
		DryRun:      cmd.Bool("dry-run"),
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	// A sync started from the view keeps running after it closes.
	orch.Wait()
	return nil
}

// useFileLogger redirects logs to a file so they do not interfere with terminal rendering.
// Call it before the orchestrator is built so every component picks up the file logger.
func (r *Runner) useFileLogger() error {
	logger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	logger.SetLevel(r.logger.GetLevel())
	r.SetLogger(logger)
	return nil
}
