// Package observer watches the worker from the outside: job metrics across
// runs and changes to the job file.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
)

// Observer collects job results and flags slow generations
type Observer struct {
	slowThreshold time.Duration
	logger        arbor.ILogger
	now           func() time.Time

	completions []completion
	mu          sync.RWMutex
}

type completion struct {
	Key         string
	Duration    time.Duration
	CostUSD     float64
	Success     bool
	Skipped     bool
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	TotalCompleted int
	TotalSkipped   int
	TotalFailed    int
	TotalCostUSD   float64
	AvgDuration    time.Duration // over generated jobs only
}

// New creates a new Observer. A zero threshold disables slow-job warnings.
func New(slowThreshold time.Duration, logger arbor.ILogger) *Observer {
	return &Observer{
		slowThreshold: slowThreshold,
		logger:        logger,
		now:           time.Now,
	}
}

// IsSlow returns true if a job's generation took longer than the threshold
func (o *Observer) IsSlow(res domain.JobResult) bool {
	if o.slowThreshold <= 0 || res.Skipped {
		return false
	}
	return secondsToDuration(res.GenerationTimeS) > o.slowThreshold
}

// RecordResult records a finished job
func (o *Observer) RecordResult(ctx context.Context, index int, res domain.JobResult) error {
	if o.IsSlow(res) {
		o.logger.Warn().
			Str("key", res.DestinationKey).
			Str("took", secondsToDuration(res.GenerationTimeS).Round(time.Second).String()).
			Msg("Slow generation")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.completions = append(o.completions, completion{
		Key:         res.DestinationKey,
		Duration:    secondsToDuration(res.GenerationTimeS),
		CostUSD:     res.EstimatedCostUSD,
		Success:     res.Success,
		Skipped:     res.Skipped,
		CompletedAt: o.now(),
	})
	return nil
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration
	var generated int

	for _, c := range o.completions {
		switch {
		case !c.Success:
			metrics.TotalFailed++
		case c.Skipped:
			metrics.TotalSkipped++
		default:
			metrics.TotalCompleted++
			metrics.TotalCostUSD += c.CostUSD
			totalDuration += c.Duration
			generated++
		}
	}

	if generated > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(generated)
	}

	return metrics
}

// GetRecentCompletions returns keys of jobs finished within the last duration
func (o *Observer) GetRecentCompletions(since time.Duration) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := o.now().Add(-since)
	var result []string

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.Key)
		}
	}

	return result
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
