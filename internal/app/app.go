// Package app wires configuration, storage, the generator and the run ledger
// into the operations the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/hochfrequenz/musicgen-worker/internal/config"
	"github.com/hochfrequenz/musicgen-worker/internal/domain"
	"github.com/hochfrequenz/musicgen-worker/internal/generate"
	"github.com/hochfrequenz/musicgen-worker/internal/notify"
	"github.com/hochfrequenz/musicgen-worker/internal/objectstore"
	"github.com/hochfrequenz/musicgen-worker/internal/observer"
	"github.com/hochfrequenz/musicgen-worker/internal/parser"
	"github.com/hochfrequenz/musicgen-worker/internal/report"
	"github.com/hochfrequenz/musicgen-worker/internal/runner"
	"github.com/hochfrequenz/musicgen-worker/internal/runstore"
)

var (
	// ErrNoJobs is returned when a job file holds no valid job
	ErrNoJobs = errors.New("no valid jobs found")
	// ErrBucketNotFound is returned when the configured bucket is not reachable
	ErrBucketNotFound = errors.New("bucket not found or not accessible")
)

const slowGenerationThreshold = 30 * time.Minute

// App holds the long-lived dependencies of the worker
type App struct {
	cfg      *config.Config
	logger   arbor.ILogger
	store    objectstore.Store
	gen      generate.Generator
	ledger   *runstore.Store
	notifier notify.Notifier
	observer *observer.Observer
	now      func() time.Time
	newID    func() string

	runMu sync.Mutex
}

// Option overrides a dependency, mostly for tests
type Option func(*App)

// WithStore uses store instead of the configured backend
func WithStore(store objectstore.Store) Option {
	return func(a *App) { a.store = store }
}

// WithGenerator uses gen instead of the configured generator
func WithGenerator(gen generate.Generator) Option {
	return func(a *App) { a.gen = gen }
}

// WithNotifier uses n instead of the configured notifiers
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New validates cfg and connects to storage and the ledger. Every error it
// returns is a configuration error: nothing has been processed yet.
func New(ctx context.Context, cfg *config.Config, logger arbor.ILogger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		notifier: notify.FromConfig(cfg.Notifications),
		observer: observer.New(slowGenerationThreshold, logger),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		store, err := OpenStore(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	if err := CheckStorage(ctx, a.store); err != nil {
		return nil, err
	}

	if a.gen == nil {
		a.gen = NewGenerator(cfg.Generator, logger)
	}

	ledger, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening run ledger: %w", err)
	}
	a.ledger = ledger

	return a, nil
}

// Close releases the ledger and any notifier connections
func (a *App) Close() error {
	var errs []error
	if c, ok := a.notifier.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing notifier: %w", err))
		}
	}
	if err := a.ledger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Config returns the configuration the app was built with
func (a *App) Config() *config.Config { return a.cfg }

// Store returns the object store in use
func (a *App) Store() objectstore.Store { return a.store }

// Ledger returns the run ledger
func (a *App) Ledger() *runstore.Store { return a.ledger }

// Observer returns the job metrics collected since startup
func (a *App) Observer() *observer.Observer { return a.observer }

// OpenStore builds the configured storage backend, with the key prefix applied
func OpenStore(ctx context.Context, cfg config.StorageConfig) (objectstore.Store, error) {
	var store objectstore.Store
	switch cfg.Backend {
	case "local":
		local, err := objectstore.NewLocal(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("opening local store: %w", err)
		}
		store = local
	default:
		s3, err := objectstore.NewS3(ctx, objectstore.S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		store = s3
	}
	return objectstore.WithPrefix(store, cfg.Prefix), nil
}

// CheckStorage fails unless the bucket can be reached
func CheckStorage(ctx context.Context, store objectstore.Store) error {
	ok, err := store.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("checking bucket access: %w", err)
	}
	if !ok {
		return ErrBucketNotFound
	}
	return nil
}

// NewGenerator builds the configured generator
func NewGenerator(cfg config.GeneratorConfig, logger arbor.ILogger) generate.Generator {
	if cfg.Backend == "tone" {
		logger.Warn().Msg("Using synthetic tone generator, output is not model audio")
		return generate.NewTone(cfg.SampleRate)
	}
	return generate.NewCommand(generate.CommandConfig{
		Path:            cfg.Command,
		Args:            cfg.Args,
		Model:           cfg.Model,
		SampleRate:      cfg.SampleRate,
		TokensPerSecond: cfg.TokensPerSecond,
	})
}

// RunOptions tunes a single run
type RunOptions struct {
	NoReport bool
}

// RunResult is everything a finished run produced
type RunResult struct {
	Run     *domain.Run
	Results []domain.JobResult
	Summary report.Summary
}

// RunFile processes every job in path. Runs never overlap. The error is
// runner.ErrJobsFailed when at least one job failed; the result is still
// returned in that case.
func (a *App) RunFile(ctx context.Context, path string, opts RunOptions) (*RunResult, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("job file: %w", err)
	}

	runID := a.newID()
	logger := a.logger.WithCorrelationId(runID)

	jobs, err := parser.ParseJobFile(path, logger)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		logger.Error().Str("file", path).Msg("No valid jobs found")
		return nil, fmt.Errorf("%s: %w", path, ErrNoJobs)
	}

	run := &domain.Run{
		ID:        runID,
		JobsFile:  path,
		Status:    domain.RunRunning,
		StartedAt: a.now(),
	}
	if err := a.ledger.CreateRun(run); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run start")
	}

	rate := a.cfg.HourlyRate()
	logger.Info().
		Int("jobs", len(jobs)).
		Str("file", path).
		Str("rate", fmt.Sprintf("$%.3f/h", rate)).
		Msg("Processing jobs")

	r := runner.New(runner.Options{
		ChunkSeconds:  a.cfg.Generator.ChunkSeconds,
		SampleRate:    a.cfg.Generator.SampleRate,
		HourlyRateUSD: rate,
		TempDir:       a.cfg.General.TempDir,
	}, a.gen, a.store, logger)

	ledgerRecorder := runner.RecorderFunc(func(ctx context.Context, index int, res domain.JobResult) error {
		return a.ledger.RecordResult(runID, index, res)
	})
	results := r.Run(ctx, jobs, ledgerRecorder, a.observer)

	summary := report.Summarize(results)
	if !opts.NoReport {
		logger.Info().Msg("Generating cost report")
		key, err := report.Publish(ctx, a.store, report.Build(results), a.now())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to upload cost report")
		} else {
			logger.Info().Str("key", key).Msg("Cost report uploaded")
			summary.ReportUploaded = true
			summary.ReportKey = key
			run.ReportKey = key
		}
	}

	finished := a.now()
	run.FinishedAt = &finished
	run.Tally(results)
	run.Status = domain.RunCompleted
	if runner.AnyFailed(results) || ctx.Err() != nil {
		run.Status = domain.RunFailed
	}
	if err := a.ledger.FinishRun(run); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run completion")
	}

	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("total", summary.Total).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Str("time", fmt.Sprintf("%.1fs", summary.TotalTimeS)).
		Str("cost", fmt.Sprintf("$%.3f", summary.TotalCostUSD)).
		Bool("report_uploaded", summary.ReportUploaded).
		Msg("Run completed")

	if err := a.notifier.Send(context.WithoutCancel(ctx), notify.ForRun(run)); err != nil {
		logger.Warn().Err(err).Msg("Failed to send notification")
	}

	res := &RunResult{Run: run, Results: results, Summary: summary}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if runner.AnyFailed(results) {
		return res, runner.ErrJobsFailed
	}
	return res, nil
}

// RebuildReport renders the cost report of a recorded run. An empty runID
// selects the most recent run. With upload set the report is published like
// at the end of a run.
func (a *App) RebuildReport(ctx context.Context, runID string, upload bool) (content, key string, err error) {
	if runID == "" {
		runs, err := a.ledger.ListRuns(runstore.ListOptions{Limit: 1})
		if err != nil {
			return "", "", err
		}
		if len(runs) == 0 {
			return "", "", fmt.Errorf("no runs recorded: %w", runstore.ErrRunNotFound)
		}
		runID = runs[0].ID
	}

	run, err := a.ledger.GetRun(runID)
	if err != nil {
		return "", "", err
	}
	results, err := a.ledger.ListResults(run.ID)
	if err != nil {
		return "", "", err
	}

	content = report.Build(results)
	if !upload {
		return content, "", nil
	}

	key, err = report.Publish(ctx, a.store, content, a.now())
	if err != nil {
		return content, "", err
	}
	run.ReportKey = key
	if err := a.ledger.FinishRun(run); err != nil {
		a.logger.Warn().Err(err).Str("run", run.ID).Msg("Failed to record report key")
	}
	return content, key, nil
}
