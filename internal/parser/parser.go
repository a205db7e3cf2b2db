package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
	"github.com/ternarybob/arbor"
)

const (
	fieldSeparator = ";"
	commentPrefix  = "#"
	fieldCount     = 3
	maxLineBytes   = 1 << 20
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseJobFile reads a job file and returns the valid jobs in file order.
// Malformed entries are logged and skipped; an error is returned only when the
// file itself cannot be read or decoded.
func ParseJobFile(path string, logger arbor.ILogger) ([]domain.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening job file: %w", err)
	}
	defer f.Close()

	var jobs []domain.Job
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		jobs, err = ParseManifest(f, logger)
	default:
		jobs, err = ParseJobs(f, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	logger.Info().Int("jobs", len(jobs)).Str("path", path).Msg("Parsed job file")
	return jobs, nil
}

// ParseJobs parses the line format "prompt ; duration ; filename"
func ParseJobs(r io.Reader, logger arbor.ILogger) ([]domain.Job, error) {
	br := bufio.NewReader(r)

	var jobs []domain.Job
	lineNum := 0
	for {
		raw, tooLong, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lineNum++
		if tooLong {
			logger.Warn().Int("line", lineNum).Msgf("Skipping line longer than %d bytes", maxLineBytes)
			continue
		}
		if lineNum == 1 {
			raw = bytes.TrimPrefix(raw, utf8BOM)
		}
		line := strings.TrimSpace(string(raw))

		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}

		parts := strings.Split(line, fieldSeparator)
		if len(parts) != fieldCount {
			logger.Warn().Int("line", lineNum).Str("content", line).
				Msgf("Invalid format: expected %d fields, got %d", fieldCount, len(parts))
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		job, err := buildJob(parts[0], parts[1], parts[2])
		if err != nil {
			logger.Warn().Err(err).Int("line", lineNum).Str("content", line).Msg("Skipping job line")
			continue
		}
		job.Line = lineNum
		jobs = append(jobs, job)
		logger.Debug().Int("line", lineNum).Str("file", job.BaseName).Int("duration", job.DurationSeconds).
			Msg("Parsed job")
	}

	return jobs, nil
}

// readLine returns the next line without its terminator. A line over
// maxLineBytes is consumed and reported as tooLong with no content. io.EOF
// is returned only when no bytes remain.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && (len(line) > 0 || tooLong) {
				return line, tooLong, nil
			}
			return nil, false, err
		}
		if !tooLong {
			if len(line)+len(chunk) > maxLineBytes {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			if tooLong {
				return nil, true, nil
			}
			return line, false, nil
		}
	}
}

// buildJob validates one set of fields, shared by both job file formats
func buildJob(prompt, duration, filename string) (domain.Job, error) {
	if prompt == "" {
		return domain.Job{}, fmt.Errorf("empty prompt")
	}
	seconds, err := strconv.Atoi(duration)
	if err != nil {
		return domain.Job{}, fmt.Errorf("invalid duration format %q", duration)
	}
	if seconds <= 0 {
		return domain.Job{}, fmt.Errorf("invalid duration %d: must be positive", seconds)
	}
	if filename == "" {
		return domain.Job{}, fmt.Errorf("empty filename")
	}

	return domain.Job{
		Prompt:          prompt,
		DurationSeconds: seconds,
		BaseName:        domain.NormalizeBaseName(filename),
	}, nil
}
