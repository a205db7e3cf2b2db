package tui

import (
	"strings"

	"github.com/hochfrequenz/musicgen-worker/internal/report"
)

// RenderSummary colours the end-of-run summary for a terminal
func RenderSummary(s report.Summary) string {
	style := completedStyle
	switch {
	case s.Failed > 0:
		style = failedStyle
	case !s.ReportUploaded:
		style = runningStyle
	}

	lines := strings.Split(strings.TrimRight(s.Render(), "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "=="):
			lines[i] = dimmedStyle.Render(line)
		case strings.HasPrefix(line, "MUSICGEN"):
			lines[i] = titleStyle.Render(line)
		case strings.HasPrefix(line, "  - "):
			lines[i] = failedStyle.Render(line)
		default:
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
