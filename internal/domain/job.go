package domain

import (
	"path/filepath"
	"strings"
)

// Job is one prompt to render, parsed from a job file
type Job struct {
	Prompt          string
	DurationSeconds int
	BaseName        string
	Line            int // source line, 0 when unknown
}

// NormalizeBaseName appends the audio extension unless the name already
// carries it (case-insensitive)
func NormalizeBaseName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), AudioExtension) {
		return name
	}
	return name + AudioExtension
}

// Stem returns the base name without its extension. Leading dots do not
// start an extension, so ".wav" is its own stem.
func (j Job) Stem() string {
	ext := filepath.Ext(strings.TrimLeft(j.BaseName, "."))
	return strings.TrimSuffix(j.BaseName, ext)
}

// JobResult records the outcome of processing one job
type JobResult struct {
	DestinationKey     string
	Prompt             string
	RequestedDurationS int
	GenerationTimeS    float64
	EstimatedCostUSD   float64
	Success            bool
	Skipped            bool
	State              JobState
	ErrorMessage       string
}
