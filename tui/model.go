// Package tui is the live dashboard over the run ledger.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
	"github.com/hochfrequenz/musicgen-worker/internal/runstore"
)

// Source is where the dashboard reads runs from
type Source interface {
	ListRuns(opts runstore.ListOptions) ([]*domain.Run, error)
	ListResults(runID string) ([]domain.JobResult, error)
}

const (
	tabRuns = iota
	tabResults
	tabCount
)

// Model is the TUI application model
type Model struct {
	source   Source
	runLimit int
	interval time.Duration

	// Data
	runs    []*domain.Run
	results []domain.JobResult
	err     error

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	resultRow   int

	// Refresh
	lastRefresh time.Time
}

// ModelConfig holds initial settings for the TUI model
type ModelConfig struct {
	Source   Source
	RunLimit int           // runs shown, default 20
	Interval time.Duration // refresh interval, default 2s
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	if cfg.RunLimit <= 0 {
		cfg.RunLimit = 20
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return Model{
		source:   cfg.Source,
		runLimit: cfg.RunLimit,
		interval: cfg.Interval,
	}
}

// Init loads data and starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshCmd(),
		tickCmd(m.interval),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

// DataMsg carries freshly loaded ledger data
type DataMsg struct {
	Runs    []*domain.Run
	Results []domain.JobResult
	Err     error
	At      time.Time
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// SelectedRun returns the run under the cursor, nil when there is none
func (m Model) SelectedRun() *domain.Run {
	if m.selectedRow < 0 || m.selectedRow >= len(m.runs) {
		return nil
	}
	return m.runs[m.selectedRow]
}

func (m Model) refreshCmd() tea.Cmd {
	source, limit := m.source, m.runLimit
	var selectedID string
	if run := m.SelectedRun(); run != nil {
		selectedID = run.ID
	}

	return func() tea.Msg {
		msg := DataMsg{At: time.Now()}
		if source == nil {
			return msg
		}
		msg.Runs, msg.Err = source.ListRuns(runstore.ListOptions{Limit: limit})
		if msg.Err != nil {
			return msg
		}
		if selectedID == "" && len(msg.Runs) > 0 {
			selectedID = msg.Runs[0].ID
		}
		if selectedID != "" {
			msg.Results, msg.Err = source.ListResults(selectedID)
		}
		return msg
	}
}
