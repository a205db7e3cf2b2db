// Package runner drives the per-job pipeline: existence check, chunked
// generation, WAV encoding and upload. Jobs run one at a time and a failing
// job never stops the batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ternarybob/arbor"

	"github.com/hochfrequenz/musicgen-worker/internal/audio"
	"github.com/hochfrequenz/musicgen-worker/internal/domain"
	"github.com/hochfrequenz/musicgen-worker/internal/generate"
	"github.com/hochfrequenz/musicgen-worker/internal/jobkey"
	"github.com/hochfrequenz/musicgen-worker/internal/objectstore"
)

// ErrJobsFailed is returned by callers when at least one job failed
var ErrJobsFailed = errors.New("one or more jobs failed")

// Options tunes a Runner
type Options struct {
	ChunkSeconds  int     // per-call generation ceiling
	SampleRate    int     // 0 uses the generator's rate
	HourlyRateUSD float64 // compute price used for cost estimates
	TempDir       string  // "" uses the OS temp dir

	now func() time.Time
}

// DefaultChunkSeconds is the longest request a single generation call gets
const DefaultChunkSeconds = 30

// ResultRecorder receives every result as soon as its job finishes
type ResultRecorder interface {
	RecordResult(ctx context.Context, index int, result domain.JobResult) error
}

// RecorderFunc adapts a function to ResultRecorder
type RecorderFunc func(ctx context.Context, index int, result domain.JobResult) error

func (f RecorderFunc) RecordResult(ctx context.Context, index int, result domain.JobResult) error {
	return f(ctx, index, result)
}

// Runner processes jobs against a generator and a store
type Runner struct {
	opts   Options
	gen    generate.Generator
	store  objectstore.Store
	logger arbor.ILogger
}

// New creates a Runner. The generator is wrapped with the chunking policy.
func New(opts Options, gen generate.Generator, store objectstore.Store, logger arbor.ILogger) *Runner {
	if opts.ChunkSeconds <= 0 {
		opts.ChunkSeconds = DefaultChunkSeconds
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = gen.SampleRate()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Runner{
		opts:   opts,
		gen:    generate.NewChunked(gen, opts.ChunkSeconds, logger),
		store:  store,
		logger: logger,
	}
}

// Run processes jobs in order and returns one result per processed job.
// Cancellation is checked between jobs; a job in flight is not interrupted
// by the runner itself.
func (r *Runner) Run(ctx context.Context, jobs []domain.Job, recorders ...ResultRecorder) []domain.JobResult {
	results := make([]domain.JobResult, 0, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			r.logger.Warn().Int("remaining", len(jobs)-i).Msg("Run cancelled, remaining jobs not processed")
			break
		}

		r.logger.Info().Msgf("[%d/%d] %s", i+1, len(jobs), job.BaseName)
		res := r.Process(ctx, job).Result()
		results = append(results, res)

		for _, rec := range recorders {
			if err := rec.RecordResult(ctx, i, res); err != nil {
				r.logger.Warn().Err(err).Str("key", res.DestinationKey).Msg("Failed to record result")
			}
		}
	}
	return results
}

// Process runs a single job through the pipeline. A panic in the generator
// or the store fails the job at the stage it was in.
func (r *Runner) Process(ctx context.Context, job domain.Job) (out Outcome) {
	key := jobkey.ForJob(job)
	m := Metrics{Job: job, Key: key}

	var start time.Time
	stage := domain.StateExistsCheck
	fail := func(stage domain.JobState, err error) Outcome {
		if !start.IsZero() {
			m = r.measure(m, start)
		}
		r.logger.Error().Err(err).Str("key", key).Str("stage", string(stage)).Msg("Job failed")
		return Failure{Metrics: m, Stage: stage, Err: &StageError{Stage: stage, Err: err}}
	}
	defer func() {
		if p := recover(); p != nil {
			out = fail(stage, fmt.Errorf("panic: %v", p))
		}
	}()

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Existence check failed, treating object as absent")
	}
	if exists {
		r.logger.Info().Str("key", key).Msg("Already exists, skipping")
		return Success{Metrics: m, Skipped: true}
	}

	start = r.opts.now()
	stage = domain.StateGenerating
	r.logger.Info().
		Str("key", key).
		Int("duration", job.DurationSeconds).
		Msgf("Generating: %s", truncate(job.Prompt, 60))

	samples, err := r.gen.Generate(ctx, job.Prompt, job.DurationSeconds)
	if err != nil {
		return fail(stage, err)
	}
	if len(samples) == 0 {
		return fail(stage, fmt.Errorf("generator returned no audio"))
	}

	stage = domain.StateEncoding
	var uploadErr error
	err = audio.WithTempWAV(r.opts.TempDir, samples, r.opts.SampleRate, func(path string, size int64) error {
		stage = domain.StateUploading
		r.logger.Info().Str("key", key).Str("size", humanize.Bytes(uint64(size))).Msg("Uploading")
		uploadErr = r.store.Upload(ctx, key, path, domain.AudioContentType)
		return uploadErr
	})
	if uploadErr != nil {
		return fail(domain.StateUploading, uploadErr)
	}
	if err != nil {
		return fail(domain.StateEncoding, err)
	}

	m = r.measure(m, start)
	r.logger.Info().
		Str("key", key).
		Str("time", fmt.Sprintf("%.1fs", m.Elapsed.Seconds())).
		Str("cost", fmt.Sprintf("$%.4f", m.CostUSD)).
		Msg("Uploaded")
	return Success{Metrics: m}
}

func (r *Runner) measure(m Metrics, start time.Time) Metrics {
	m.Elapsed = r.opts.now().Sub(start)
	m.CostUSD = EstimateCost(m.Elapsed, r.opts.HourlyRateUSD)
	return m
}

// EstimateCost prices elapsed wall time at an hourly rate
func EstimateCost(elapsed time.Duration, hourlyRateUSD float64) float64 {
	return elapsed.Seconds() / 3600 * hourlyRateUSD
}

// AnyFailed reports whether any result is a failure
func AnyFailed(results []domain.JobResult) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
