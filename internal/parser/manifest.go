package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML form of a job file
type Manifest struct {
	Jobs []ManifestEntry `yaml:"jobs"`
}

// ManifestEntry is a single job in a YAML manifest.
// Duration is kept as text so a bad value skips one entry instead of
// failing the whole document.
type ManifestEntry struct {
	Prompt   string `yaml:"prompt"`
	Duration string `yaml:"duration"`
	Filename string `yaml:"filename"`
	line     int
}

// UnmarshalYAML records the source line of each entry
func (e *ManifestEntry) UnmarshalYAML(node *yaml.Node) error {
	type plain ManifestEntry
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = ManifestEntry(p)
	e.line = node.Line
	return nil
}

// ParseManifest parses a YAML manifest with the same per-entry rules as the
// line format
func ParseManifest(r io.Reader, logger arbor.ILogger) ([]domain.Job, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	jobs := make([]domain.Job, 0, len(m.Jobs))
	for i, entry := range m.Jobs {
		job, err := buildJob(
			strings.TrimSpace(entry.Prompt),
			strings.TrimSpace(entry.Duration),
			strings.TrimSpace(entry.Filename),
		)
		if err != nil {
			logger.Warn().Err(err).Int("entry", i+1).Int("line", entry.line).Msg("Skipping manifest entry")
			continue
		}
		job.Line = entry.line
		jobs = append(jobs, job)
	}
	return jobs, nil
}
