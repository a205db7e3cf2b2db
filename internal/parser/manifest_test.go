package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
)

func TestParseManifest(t *testing.T) {
	content := `jobs:
  - prompt: ambient drone
    duration: 45
    filename: track1
  - prompt: broken duration
    duration: soon
    filename: bad
  - prompt: calm piano
    duration: "20"
    filename: piano.wav
  - prompt: ""
    duration: 10
    filename: empty
`
	jobs, err := ParseManifest(strings.NewReader(content), arbor.NewNoOpLogger())
	if err != nil {
		t.Fatal(err)
	}

	if len(jobs) != 2 {
		t.Fatalf("jobs count = %d, want 2", len(jobs))
	}
	if jobs[0].BaseName != "track1.wav" || jobs[0].DurationSeconds != 45 {
		t.Errorf("jobs[0] = %+v, want track1.wav / 45", jobs[0])
	}
	if jobs[0].Line != 2 {
		t.Errorf("jobs[0].Line = %d, want 2", jobs[0].Line)
	}
	if jobs[1].Prompt != "calm piano" || jobs[1].DurationSeconds != 20 {
		t.Errorf("jobs[1] = %+v, want calm piano / 20", jobs[1])
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	_, err := ParseManifest(strings.NewReader("jobs: [unclosed"), arbor.NewNoOpLogger())
	if err == nil {
		t.Error("expected decode error")
	}
}

func TestParseJobFile_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	content := "jobs:\n  - prompt: rain\n    duration: 5\n    filename: rain\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	jobs, err := ParseJobFile(path, arbor.NewNoOpLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].BaseName != "rain.wav" {
		t.Errorf("jobs = %+v, want one rain.wav job", jobs)
	}
}
