// Package logging builds the worker's arbor logger from configuration.
package logging

import (
	"os"
	"path/filepath"

	"github.com/hochfrequenz/musicgen-worker/internal/config"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const (
	timeFormat    = "15:04:05"
	fallbackName  = "musicgen-worker.log"
	maxLogSize    = 100 * 1024 * 1024
	maxLogBackups = 3
)

// New creates a logger with the configured writers and level.
// The returned path is the log file actually in use, empty when file output
// is disabled.
func New(cfg config.LoggingConfig) (arbor.ILogger, string) {
	logger := arbor.NewLogger()

	var hasFile, hasConsole bool
	for _, output := range cfg.Output {
		switch output {
		case "file":
			hasFile = true
		case "console", "stdout":
			hasConsole = true
		}
	}

	logFile := ""
	if hasFile {
		logFile = ResolveLogFile(cfg.File)
		if logFile != "" {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:             models.LogWriterTypeFile,
				FileName:         logFile,
				TimeFormat:       timeFormat,
				MaxSize:          maxLogSize,
				MaxBackups:       maxLogBackups,
				TextOutput:       true,
				DisableTimestamp: false,
			})
		}
	}

	if hasConsole || logFile == "" {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeConsole,
			TimeFormat:       timeFormat,
			TextOutput:       true,
			DisableTimestamp: false,
		})
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level), logFile
}

// ResolveLogFile returns path when it is writable, otherwise a file in the
// user's home directory. Empty means no writable location was found.
func ResolveLogFile(path string) string {
	if path != "" && writable(path) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	fallback := filepath.Join(home, fallbackName)
	if writable(fallback) {
		return fallback
	}
	return ""
}

func writable(path string) bool {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
