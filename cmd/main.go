package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var runner *Runner
	app := &cli.Command{
		Name:    "tracksync",
		Usage:   "Sync playlists from Spotify into Apple Music",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars(shared.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			configPath := cmd.String("config")
			config, err := shared.LoadConfigWithEnv(configPath)
			if err != nil {
				return ctx, err
			}

			level := config.Log.Level
			if l := cmd.String("log-level"); l != "" {
				level = l
			}
			logger.SetLevel(shared.ParseLogLevel(level))

			runner.config = config
			runner.configPath = configPath
			runner.httpClient.Timeout = config.Sync.HTTPTimeout
			return ctx, nil
		},
	}
	runner = NewRunner(RunnerOpts{Logger: logger})
	app.Commands = runner.register()

	err := app.Run(ctx, os.Args)
	if cerr := runner.Close(); cerr != nil {
		logger.Warn("failed to close runner", "err", cerr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted")
			os.Exit(130)
		}
		logger.Fatalf("application error: %v", err)
	}
}
