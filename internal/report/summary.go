package report

import (
	"fmt"
	"strings"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
)

// Failure is one failed job in a Summary
type Failure struct {
	Key     string
	Message string
}

// Summary aggregates a run's results for the final log output
type Summary struct {
	Total          int
	Succeeded      int // includes skipped
	Skipped        int
	Failed         int
	TotalTimeS     float64
	TotalCostUSD   float64
	Failures       []Failure
	ReportUploaded bool
	ReportKey      string
}

// Summarize counts results. Time and cost only cover successful jobs, the
// same figures the cost report totals.
func Summarize(results []domain.JobResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if !r.Success {
			s.Failed++
			s.Failures = append(s.Failures, Failure{Key: r.DestinationKey, Message: r.ErrorMessage})
			continue
		}
		s.Succeeded++
		if r.Skipped {
			s.Skipped++
		}
		s.TotalTimeS += r.GenerationTimeS
		s.TotalCostUSD += r.EstimatedCostUSD
	}
	return s
}

// Render returns the multi-line human summary
func (s Summary) Render() string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "MUSICGEN WORKER COMPLETED")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Successful jobs: %d/%d", s.Succeeded, s.Total)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, " (%d already present)", s.Skipped)
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Total generation time: %.1fs (%.1fm)\n", s.TotalTimeS, s.TotalTimeS/60)
	fmt.Fprintf(&b, "Estimated total cost: $%.3f\n", s.TotalCostUSD)

	if s.ReportUploaded {
		fmt.Fprintf(&b, "Cost report uploaded: yes (%s)\n", s.ReportKey)
	} else {
		fmt.Fprintln(&b, "Cost report uploaded: NO")
	}

	if s.Failed > 0 {
		fmt.Fprintf(&b, "Failed jobs: %d\n", s.Failed)
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "  - %s: %s\n", f.Key, f.Message)
		}
	}
	return b.String()
}
