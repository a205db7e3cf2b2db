package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/musicgen-worker/internal/batch"
	"github.com/hochfrequenz/musicgen-worker/internal/config"
	"github.com/hochfrequenz/musicgen-worker/internal/observer"
	"github.com/hochfrequenz/musicgen-worker/internal/runner"
)

// ErrNothingToDo is returned by Daemon when neither schedules nor watching
// are configured
var ErrNothingToDo = errors.New("no schedules configured and file watching disabled")

// Daemon runs the configured cron schedules and, with watch set, re-runs
// the job file whenever it changes. It returns when ctx is cancelled.
func (a *App) Daemon(ctx context.Context, watch bool) error {
	if len(a.cfg.Schedules) == 0 && !watch {
		return ErrNothingToDo
	}

	g, ctx := errgroup.WithContext(ctx)

	if len(a.cfg.Schedules) > 0 {
		sched, err := batch.NewScheduler(a.cfg.Schedules, a.cfg.General.JobsFile, a.logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			sched.Start(ctx, func(ctx context.Context, s config.ScheduleConfig) error {
				return a.backgroundRun(ctx, s.JobsFile)
			})
			return nil
		})
	}

	if watch {
		triggers := make(chan string, 1)
		fw, err := observer.NewFileWatcher(a.cfg.General.JobsFile, func(path string) {
			select {
			case triggers <- path:
			default: // a run is already queued
			}
		}, a.logger)
		if err != nil {
			return fmt.Errorf("watching %s: %w", a.cfg.General.JobsFile, err)
		}
		fw.Start(ctx)
		defer fw.Stop()

		a.logger.Info().Str("path", fw.Path()).Msg("Watching job file")
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case path := <-triggers:
					if err := a.backgroundRun(ctx, path); err != nil {
						a.logger.Error().Err(err).Str("file", path).Msg("Triggered run failed")
					}
				}
			}
		})
	}

	a.logger.Info().Int("schedules", len(a.cfg.Schedules)).Bool("watch", watch).Msg("Daemon started")
	err := g.Wait()

	m := a.observer.GetMetrics()
	a.logger.Info().
		Int("completed", m.TotalCompleted).
		Int("skipped", m.TotalSkipped).
		Int("failed", m.TotalFailed).
		Str("cost", fmt.Sprintf("$%.3f", m.TotalCostUSD)).
		Msg("Daemon stopped")
	return err
}

// backgroundRun runs a job file on behalf of the daemon. Failed jobs and
// empty job files are logged by RunFile and do not stop the daemon.
func (a *App) backgroundRun(ctx context.Context, path string) error {
	_, err := a.RunFile(ctx, path, RunOptions{})
	switch {
	case err == nil, errors.Is(err, runner.ErrJobsFailed), errors.Is(err, ErrNoJobs):
		return nil
	case ctx.Err() != nil:
		return nil
	}
	return err
}
