//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// binaryPath builds the CLI once per test binary and returns its path
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../musicgen-worker",
		"./musicgen-worker",
		filepath.Join(os.Getenv("GOPATH"), "bin", "musicgen-worker"),
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../musicgen-worker", "../cmd/musicgen-worker")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}
	abs, _ := filepath.Abs("../musicgen-worker")
	return abs
}

// workspace is a throwaway worker setup: config, job file, object dir and ledger
type workspace struct {
	dir        string
	configPath string
	jobsPath   string
	objectsDir string
}

// newWorkspace writes a config using the local backend and the tone
// generator. generatorCommand switches to the command backend when set.
func newWorkspace(t *testing.T, jobs string, generatorCommand string) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		jobsPath:   filepath.Join(dir, "prompts.txt"),
		objectsDir: filepath.Join(dir, "objects"),
	}

	backend := `backend = "tone"`
	if generatorCommand != "" {
		backend = `backend = "command"
command = "` + generatorCommand + `"`
	}

	config := `[general]
jobs_file = "` + ws.jobsPath + `"
temp_dir = "` + dir + `"
database_path = "` + filepath.Join(dir, "runs.db") + `"

[storage]
backend = "local"
local_dir = "` + ws.objectsDir + `"
prefix = "music"

[generator]
` + backend + `
chunk_seconds = 30
sample_rate = 200
tokens_per_second = 50

[cost]
hourly_rate_usd = 1.0

[logging]
level = "warn"
output = ["console"]
`
	if err := os.WriteFile(ws.configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if err := os.WriteFile(ws.jobsPath, []byte(jobs), 0644); err != nil {
		t.Fatalf("Failed to write job file: %v", err)
	}
	return ws
}

// run executes the CLI against the workspace config
func (ws *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	args = append(args, "--config", ws.configPath, "--env-file", filepath.Join(ws.dir, ".env"))
	cmd := exec.Command(binaryPath(t), args...)
	cmd.Dir = ws.dir
	cmd.Env = append(os.Environ(), "MUSICGEN_S3_BUCKET=", "MUSICGEN_S3_PREFIX=", "MUSICGEN_JOBS_FILE=")
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// objects lists the files stored under the workspace prefix
func (ws *workspace) objects(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(ws.objectsDir, "music"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("Failed to read object dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
