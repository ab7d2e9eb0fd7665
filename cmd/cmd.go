// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/tracksync/internal/formatter"
	"github.com/urfave/cli/v3"
)

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

func serviceFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:    "service",
		Aliases: []string{"s"},
		Usage:   "Service to read from (spotify or applemusic)",
		Value:   value,
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Export format (csv, json, xml, xspf, txt, markdown)",
		Value:   string(formatter.FormatJSON),
	}
}

// setupCommand writes the config file and prepares the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// authCommand runs the Spotify OAuth flow.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Authenticate with Spotify using OAuth2 (PKCE) and store the tokens in the config file",
		Action: r.Auth,
	}
}

// syncCommand runs one source → destination sync.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync a Spotify playlist (or \"liked\") into an Apple Music playlist",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "source"},
			&cli.StringArg{Name: "destination"},
		},
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Match and report without writing to the destination",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Follow progress in a terminal view",
			},
		}, jsonFlags()...),
		Action: r.Sync,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a sync job",
		Arguments: []cli.Argument{&cli.StringArg{Name: "job-id"}},
		Flags:     jsonFlags(),
		Action:    r.Status,
	}
}

func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List recent sync jobs, newest first",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of jobs to show",
				Value: 20,
			},
		}, jsonFlags()...),
		Action: r.Jobs,
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "playlists",
		Usage:  "List playlists of a service",
		Flags:  append([]cli.Flag{serviceFlag("spotify")}, jsonFlags()...),
		Action: r.Playlists,
	}
}

func dedupeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "dedupe",
		Usage:     "Write a \"<name> (deduped)\" copy of a playlist without duplicate tracks",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
		Flags:     append([]cli.Flag{serviceFlag("applemusic")}, jsonFlags()...),
		Action:    r.Dedupe,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export playlists to files",
		Commands: []*cli.Command{
			{
				Name:      "playlist",
				Usage:     "Export one playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Flags: []cli.Flag{
					serviceFlag("spotify"),
					formatFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (stdout when empty)",
					},
				},
				Action: r.Export,
			},
			{
				Name:      "bulk",
				Usage:     "Export several playlists concurrently (all playlists when no IDs are given)",
				ArgsUsage: "[playlist-id...]",
				Flags: []cli.Flag{
					serviceFlag("spotify"),
					formatFlag(),
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Output directory (default <service>_export_<timestamp>)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent exports (max 10)",
					},
					&cli.Float64Flag{
						Name:  "rate",
						Usage: "Playlist fetches per second",
					},
				},
				Action: r.BulkExport,
			},
		},
	}
}

func scheduleCommand(r *Runner) *cli.Command {
	idArg := func() []cli.Argument { return []cli.Argument{&cli.StringArg{Name: "id"}} }
	return &cli.Command{
		Name:    "schedule",
		Aliases: []string{"sched"},
		Usage:   "Manage daily auto-sync jobs",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a scheduled job",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Job name", Required: true},
					&cli.StringFlag{Name: "at", Usage: "Time of day (HH:MM, local time)", Required: true},
					&cli.StringSliceFlag{Name: "source", Usage: "Source playlist (repeat for combine mode)", Required: true},
					&cli.StringFlag{Name: "dest", Usage: "Destination playlist", Required: true},
					&cli.StringFlag{Name: "mode", Usage: "single or combine", Value: "single"},
				}, jsonFlags()...),
				Action: r.ScheduleCreate,
			},
			{
				Name:   "list",
				Usage:  "List scheduled jobs",
				Flags:  jsonFlags(),
				Action: r.ScheduleList,
			},
			{
				Name:      "get",
				Usage:     "Show a scheduled job",
				Arguments: idArg(),
				Flags:     jsonFlags(),
				Action:    r.ScheduleGet,
			},
			{
				Name:      "update",
				Usage:     "Change a scheduled job; only the given flags are applied",
				Arguments: idArg(),
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Job name"},
					&cli.StringFlag{Name: "at", Usage: "Time of day (HH:MM)"},
					&cli.StringSliceFlag{Name: "source", Usage: "Replace the source playlists"},
					&cli.StringFlag{Name: "dest", Usage: "Destination playlist"},
					&cli.StringFlag{Name: "mode", Usage: "single or combine"},
					&cli.BoolFlag{Name: "enabled", Usage: "Enable or disable the job (--enabled=false)"},
				}, jsonFlags()...),
				Action: r.ScheduleUpdate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a scheduled job",
				Arguments: idArg(),
				Action:    r.ScheduleDelete,
			},
			{
				Name:      "run",
				Usage:     "Run a scheduled job now and wait for it",
				Arguments: idArg(),
				Flags:     jsonFlags(),
				Action:    r.ScheduleRun,
			},
		},
	}
}

// serveCommand starts the HTTP API with the scheduler loop.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API, event streams and metrics, and run scheduled jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from [server] config)",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Do not run scheduled jobs",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive playlist syncs.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse Spotify playlists and sync one interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dest", Usage: "Destination playlist", Required: true},
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Match and report without writing"},
		},
		Action: r.TUI,
	}
}

func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database maintenance",
		Commands: []*cli.Command{
			{Name: "status", Usage: "Show applied and pending migrations", Action: r.DBStatus},
			{Name: "migrate", Usage: "Apply pending migrations", Action: r.DBMigrate},
			{Name: "rollback", Usage: "Roll back the latest migration", Action: r.DBRollback},
		},
	}
}
