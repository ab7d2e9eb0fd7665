package main

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/tracksync/internal/server"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP API and, unless disabled, the scheduler loop until ctx is cancelled.
//
// Shutdown stops accepting requests, waits for handlers, then for background scheduled runs
// and syncs started over HTTP.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}
	sched, err := r.Scheduler()
	if err != nil {
		return err
	}

	api := server.NewAPI(orch, sched, r.hub,
		server.WithMetricsHandler(r.metrics.Handler()),
		server.WithAPILogger(r.logger),
	)
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	api.Register(router)

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	srv, err := server.Listen(ctx, addr, router, r.logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("shutting down server")
		return srv.Shutdown(shutdownTimeout)
	})
	if !cmd.Bool("no-scheduler") {
		g.Go(func() error {
			err := sched.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	api.Wait()
	orch.Wait()
	r.logger.Info("server stopped")
	return err
}
