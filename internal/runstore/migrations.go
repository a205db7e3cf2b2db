package runstore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    jobs_file TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    total INTEGER DEFAULT 0,
    succeeded INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    total_cost_usd REAL DEFAULT 0,
    report_key TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS job_results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    destination_key TEXT NOT NULL,
    prompt TEXT NOT NULL,
    requested_duration_s INTEGER NOT NULL,
    generation_time_s REAL DEFAULT 0,
    estimated_cost_usd REAL DEFAULT 0,
    success BOOLEAN NOT NULL,
    skipped BOOLEAN DEFAULT FALSE,
    state TEXT NOT NULL,
    error_message TEXT,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_job_results_key ON job_results(destination_key);
`
