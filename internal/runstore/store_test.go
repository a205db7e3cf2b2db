package runstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_CreateAndGetRun(t *testing.T) {
	store := newTestStore(t)

	started := time.Date(2024, 9, 7, 12, 0, 0, 0, time.UTC)
	run := &domain.Run{ID: "run-1", JobsFile: "prompts.txt", Status: domain.RunRunning, StartedAt: started}
	if err := store.CreateRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.JobsFile != "prompts.txt" {
		t.Errorf("JobsFile = %q, want %q", got.JobsFile, "prompts.txt")
	}
	if got.Status != domain.RunRunning {
		t.Errorf("Status = %q, want %q", got.Status, domain.RunRunning)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", got.FinishedAt)
	}
}

func TestStore_GetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun("missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestStore_FinishRun(t *testing.T) {
	store := newTestStore(t)

	run := &domain.Run{ID: "run-1", JobsFile: "p.txt", Status: domain.RunRunning, StartedAt: time.Now()}
	if err := store.CreateRun(run); err != nil {
		t.Fatal(err)
	}

	finished := time.Date(2024, 9, 7, 13, 0, 0, 0, time.UTC)
	run.Status = domain.RunFailed
	run.FinishedAt = &finished
	run.Tally([]domain.JobResult{
		{Success: true, EstimatedCostUSD: 1.25},
		{Success: true, Skipped: true},
		{Success: false},
	})
	run.ReportKey = "cost_report_20240907_130000.csv"
	if err := store.FinishRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunFailed {
		t.Errorf("Status = %q, want %q", got.Status, domain.RunFailed)
	}
	if got.Total != 3 || got.Succeeded != 1 || got.Skipped != 1 || got.Failed != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 3/1/1/1", got.Total, got.Succeeded, got.Skipped, got.Failed)
	}
	if got.TotalCostUSD != 1.25 {
		t.Errorf("TotalCostUSD = %v, want 1.25", got.TotalCostUSD)
	}
	if got.ReportKey != run.ReportKey {
		t.Errorf("ReportKey = %q, want %q", got.ReportKey, run.ReportKey)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
}

func TestStore_FinishUnknownRun(t *testing.T) {
	store := newTestStore(t)

	err := store.FinishRun(&domain.Run{ID: "ghost", Status: domain.RunCompleted})
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2024, 9, 7, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		status := domain.RunCompleted
		if id == "b" {
			status = domain.RunFailed
		}
		run := &domain.Run{ID: id, JobsFile: "p.txt", Status: status, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.CreateRun(run); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListRuns(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("All runs count = %d, want 3", len(all))
	}
	if all[0].ID != "c" {
		t.Errorf("newest run = %q, want %q", all[0].ID, "c")
	}

	limited, err := store.ListRuns(ListOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("Limited count = %d, want 2", len(limited))
	}

	failed, err := store.ListRuns(ListOptions{Status: domain.RunFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Errorf("Failed runs = %v, want [b]", failed)
	}
}

func TestStore_RecordAndListResults(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateRun(&domain.Run{ID: "run-1", JobsFile: "p.txt", Status: domain.RunRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	results := []domain.JobResult{
		{DestinationKey: "a_1.wav", Prompt: "calm", RequestedDurationS: 30, GenerationTimeS: 12.5, EstimatedCostUSD: 0.01, Success: true, State: domain.StateDone},
		{DestinationKey: "b_2.wav", Prompt: "loud", RequestedDurationS: 10, Success: false, State: domain.StateFailed, ErrorMessage: "upload failed"},
	}
	// recorded out of order on purpose
	if err := store.RecordResult("run-1", 1, results[1]); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordResult("run-1", 0, results[0]); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListResults("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("results count = %d, want 2", len(got))
	}
	for i := range results {
		if got[i] != results[i] {
			t.Errorf("result[%d] = %+v, want %+v", i, got[i], results[i])
		}
	}
}

func TestStore_RecordResultReplaces(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateRun(&domain.Run{ID: "run-1", JobsFile: "p.txt", Status: domain.RunRunning, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	store.RecordResult("run-1", 0, domain.JobResult{DestinationKey: "a.wav", Success: false, State: domain.StateFailed})
	store.RecordResult("run-1", 0, domain.JobResult{DestinationKey: "a.wav", Success: true, State: domain.StateDone})

	got, err := store.ListResults("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Success {
		t.Errorf("results = %+v, want one successful row", got)
	}
}

func TestStore_RecordResultUnknownRun(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordResult("ghost", 0, domain.JobResult{DestinationKey: "a.wav", State: domain.StateDone})
	if err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM job_results").Scan(&count); err != nil {
		t.Errorf("job_results table does not exist: %v", err)
	}
}
