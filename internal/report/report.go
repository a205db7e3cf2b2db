// Package report renders the per-run cost report and the end-of-run summary.
package report

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
	"github.com/hochfrequenz/musicgen-worker/internal/objectstore"
)

// Header is the first line of every cost report
const Header = "destination_key,prompt,requested_duration_s,generation_time_s,estimated_cost_usd"

// LatestKey always points at the most recent report
const LatestKey = "cost_report_latest.csv"

// ContentType of uploaded reports
const ContentType = "text/csv"

// Build renders the CSV for the successful results. Failed jobs are left
// out; with no successes only the header is emitted.
func Build(results []domain.JobResult) string {
	var ok []domain.JobResult
	for _, r := range results {
		if r.Success {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 {
		return Header + "\n"
	}

	lines := make([]string, 0, len(ok)+3)
	lines = append(lines, Header)

	var totalTime, totalCost float64
	for _, r := range ok {
		lines = append(lines, fmt.Sprintf("%s,%s,%d,%.2f,%.4f",
			quote(r.DestinationKey), quote(r.Prompt), r.RequestedDurationS, r.GenerationTimeS, r.EstimatedCostUSD))
		totalTime += r.GenerationTimeS
		totalCost += r.EstimatedCostUSD
	}

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("TOTAL,%d files,,%.2f,%.4f", len(ok), totalTime, totalCost))
	return strings.Join(lines, "\n")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// TimestampedKey returns the key a report produced at now is stored under
func TimestampedKey(now time.Time) string {
	return "cost_report_" + now.Format("20060102_150405") + ".csv"
}

// Publish uploads content under a timestamped key and then under LatestKey.
// The latest pointer only moves once the timestamped copy is stored.
func Publish(ctx context.Context, store objectstore.Store, content string, now time.Time) (string, error) {
	f, err := os.CreateTemp("", "cost_report-*.csv")
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", fmt.Errorf("writing report file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}

	key := TimestampedKey(now)
	if err := store.Upload(ctx, key, path, ContentType); err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	if err := store.Upload(ctx, LatestKey, path, ContentType); err != nil {
		return key, fmt.Errorf("uploading %s: %w", LatestKey, err)
	}
	return key, nil
}
