package domain

import "time"

// Run represents a single invocation of the worker over a job file
type Run struct {
	ID           string
	JobsFile     string
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	Total        int
	Succeeded    int
	Skipped      int
	Failed       int
	TotalCostUSD float64
	ReportKey    string
}

// Tally updates the run counters from a list of results
func (r *Run) Tally(results []JobResult) {
	r.Total = len(results)
	r.Succeeded, r.Skipped, r.Failed = 0, 0, 0
	r.TotalCostUSD = 0
	for _, res := range results {
		switch {
		case !res.Success:
			r.Failed++
		case res.Skipped:
			r.Skipped++
		default:
			r.Succeeded++
		}
		if res.Success {
			r.TotalCostUSD += res.EstimatedCostUSD
		}
	}
}
