package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	selectedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("255")).
		Background(lipgloss.Color("238"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	var runningCount int
	var cost float64
	for _, r := range m.runs {
		if r.Status == domain.RunRunning {
			runningCount++
		}
		cost += r.TotalCostUSD
	}
	header := fmt.Sprintf(" MusicGen Worker │ Runs: %d │ Running: %d │ Cost: $%.3f ", len(m.runs), runningCount, cost)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case tabRuns:
		section = m.renderRuns()
	case tabResults:
		section = m.renderResults()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(failedStyle.Width(m.width).Render(" Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	refreshed := "never"
	if !m.lastRefresh.IsZero() {
		refreshed = m.lastRefresh.Format("15:04:05")
	}
	statusBar := fmt.Sprintf(" [tab]switch [j/k]select [enter]results [r]efresh [q]uit │ refreshed %s ", refreshed)
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) renderTabs() string {
	names := []string{"Runs", "Results"}
	tabs := make([]string, len(names))
	for i, name := range names {
		if i == m.activeTab {
			tabs[i] = tabActiveStyle.Render(name)
		} else {
			tabs[i] = tabInactiveStyle.Render(name)
		}
	}
	return " " + strings.Join(tabs, "  ")
}

func (m Model) renderRuns() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("RUNS"))
	b.WriteString("\n")

	if len(m.runs) == 0 {
		b.WriteString(dimmedStyle.Render("No runs recorded yet"))
		return b.String()
	}

	for i, run := range m.runs {
		line := fmt.Sprintf("%-8s %-10s %-16s %3d ok %3d skip %3d fail  $%.4f  %s",
			shortID(run.ID),
			run.Status,
			humanize.Time(run.StartedAt),
			run.Succeeded, run.Skipped, run.Failed,
			run.TotalCostUSD,
			runDuration(run),
		)
		if i == m.selectedRow {
			b.WriteString(selectedStyle.Render("▶ " + line))
		} else {
			b.WriteString("  " + statusStyle(run.Status).Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderResults() string {
	var b strings.Builder

	run := m.SelectedRun()
	if run == nil {
		b.WriteString(titleStyle.Render("RESULTS"))
		b.WriteString("\n")
		b.WriteString(dimmedStyle.Render("No run selected"))
		return b.String()
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("RESULTS %s (%s)", shortID(run.ID), run.JobsFile)))
	b.WriteString("\n")

	if len(m.results) == 0 {
		b.WriteString(dimmedStyle.Render("No jobs finished yet"))
		return b.String()
	}

	for i, res := range m.results {
		detail := fmt.Sprintf("%6.1fs  $%.4f", res.GenerationTimeS, res.EstimatedCostUSD)
		if !res.Success {
			detail = res.ErrorMessage
		}
		line := fmt.Sprintf("%-8s %-40s %4ds  %s", res.State, res.DestinationKey, res.RequestedDurationS, detail)
		if i == m.resultRow {
			b.WriteString(selectedStyle.Render("▶ " + line))
		} else {
			b.WriteString("  " + stateStyle(res.State).Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusStyle(s domain.RunStatus) lipgloss.Style {
	switch s {
	case domain.RunRunning:
		return runningStyle
	case domain.RunFailed:
		return failedStyle
	default:
		return completedStyle
	}
}

func stateStyle(s domain.JobState) lipgloss.Style {
	switch s {
	case domain.StateFailed:
		return failedStyle
	case domain.StateSkipped:
		return dimmedStyle
	case domain.StateDone:
		return completedStyle
	default:
		return runningStyle
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(run *domain.Run) string {
	end := time.Now()
	if run.FinishedAt != nil {
		end = *run.FinishedAt
	}
	return end.Sub(run.StartedAt).Round(time.Second).String()
}
