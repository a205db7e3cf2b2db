// Package runstore is the local run ledger: one row per worker run and one
// per job result, kept in SQLite so history and reports survive the process.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New opens (or creates) the ledger at dbPath
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run row
func (s *Store) CreateRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, jobs_file, status, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.JobsFile, string(run.Status), run.StartedAt)
	return err
}

// RecordResult stores the result of the index-th job of a run, replacing
// any earlier row for the same position
func (s *Store) RecordResult(runID string, index int, res domain.JobResult) error {
	_, err := s.db.Exec(`
		INSERT INTO job_results (run_id, idx, destination_key, prompt, requested_duration_s, generation_time_s, estimated_cost_usd, success, skipped, state, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			destination_key = excluded.destination_key,
			prompt = excluded.prompt,
			requested_duration_s = excluded.requested_duration_s,
			generation_time_s = excluded.generation_time_s,
			estimated_cost_usd = excluded.estimated_cost_usd,
			success = excluded.success,
			skipped = excluded.skipped,
			state = excluded.state,
			error_message = excluded.error_message
	`,
		runID,
		index,
		res.DestinationKey,
		res.Prompt,
		res.RequestedDurationS,
		res.GenerationTimeS,
		res.EstimatedCostUSD,
		res.Success,
		res.Skipped,
		string(res.State),
		res.ErrorMessage,
	)
	return err
}

// FinishRun writes the final status, counters and report key of a run
func (s *Store) FinishRun(run *domain.Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?, total = ?, succeeded = ?, skipped = ?, failed = ?, total_cost_usd = ?, report_key = ?
		WHERE id = ?
	`,
		string(run.Status),
		finished,
		run.Total,
		run.Succeeded,
		run.Skipped,
		run.Failed,
		run.TotalCostUSD,
		run.ReportKey,
		run.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `id, jobs_file, status, started_at, finished_at, total, succeeded, skipped, failed, total_cost_usd, report_key`

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	Status domain.RunStatus
	Limit  int // 0 means no limit
}

// ListRuns returns runs newest first
func (s *Store) ListRuns(opts ListOptions) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListResults returns a run's job results in job order
func (s *Store) ListResults(runID string) ([]domain.JobResult, error) {
	rows, err := s.db.Query(`
		SELECT destination_key, prompt, requested_duration_s, generation_time_s, estimated_cost_usd, success, skipped, state, error_message
		FROM job_results WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.JobResult
	for rows.Next() {
		var res domain.JobResult
		var state string
		var errMsg sql.NullString
		if err := rows.Scan(&res.DestinationKey, &res.Prompt, &res.RequestedDurationS, &res.GenerationTimeS,
			&res.EstimatedCostUSD, &res.Success, &res.Skipped, &state, &errMsg); err != nil {
			return nil, err
		}
		res.State = domain.JobState(state)
		res.ErrorMessage = errMsg.String
		results = append(results, res)
	}
	return results, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var status string
	var finished sql.NullTime
	var reportKey sql.NullString

	err := row.Scan(&run.ID, &run.JobsFile, &status, &run.StartedAt, &finished,
		&run.Total, &run.Succeeded, &run.Skipped, &run.Failed, &run.TotalCostUSD, &reportKey)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	run.ReportKey = reportKey.String
	return &run, nil
}
