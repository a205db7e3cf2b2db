package runner

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
)

// uploadFailedMessage is the error message recorded for any upload failure
const uploadFailedMessage = "upload failed"

// Metrics is what the runner measured for one job, whatever its outcome
type Metrics struct {
	Job     domain.Job
	Key     string
	Elapsed time.Duration
	CostUSD float64
}

// Outcome is either Success or Failure
type Outcome interface {
	Result() domain.JobResult
	outcome()
}

// Success means the object is in storage, either freshly uploaded or found
// there already (Skipped)
type Success struct {
	Metrics
	Skipped bool
}

// Failure means the job stopped at Stage
type Failure struct {
	Metrics
	Stage domain.JobState
	Err   error
}

func (Success) outcome() {}
func (Failure) outcome() {}

// Result converts the outcome into a report row
func (s Success) Result() domain.JobResult {
	r := s.base()
	r.Success = true
	r.Skipped = s.Skipped
	r.State = domain.StateDone
	if s.Skipped {
		r.State = domain.StateSkipped
	}
	return r
}

// Result converts the outcome into a report row. Upload errors are reported
// with a fixed message; everything else carries the underlying error text.
func (f Failure) Result() domain.JobResult {
	r := f.base()
	r.State = domain.StateFailed
	switch {
	case f.Stage == domain.StateUploading:
		r.ErrorMessage = uploadFailedMessage
	case f.Err != nil:
		r.ErrorMessage = unwrapStage(f.Err).Error()
	default:
		r.ErrorMessage = "unknown error"
	}
	return r
}

func (m Metrics) base() domain.JobResult {
	return domain.JobResult{
		DestinationKey:     m.Key,
		Prompt:             m.Job.Prompt,
		RequestedDurationS: m.Job.DurationSeconds,
		GenerationTimeS:    m.Elapsed.Seconds(),
		EstimatedCostUSD:   m.CostUSD,
	}
}

// StageError ties an error to the pipeline stage it happened in
type StageError struct {
	Stage domain.JobState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func unwrapStage(err error) error {
	if se, ok := err.(*StageError); ok && se.Err != nil {
		return se.Err
	}
	return err
}
