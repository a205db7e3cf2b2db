package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		case "j", "down":
			if m.activeTab == tabRuns {
				if m.selectedRow < len(m.runs)-1 {
					m.selectedRow++
					m.resultRow = 0
					return m, m.refreshCmd()
				}
			} else if m.resultRow < len(m.results)-1 {
				m.resultRow++
			}
		case "k", "up":
			if m.activeTab == tabRuns {
				if m.selectedRow > 0 {
					m.selectedRow--
					m.resultRow = 0
					return m, m.refreshCmd()
				}
			} else if m.resultRow > 0 {
				m.resultRow--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "enter":
			if m.activeTab == tabRuns && m.SelectedRun() != nil {
				m.activeTab = tabResults
				m.resultRow = 0
			}
		case "esc":
			m.activeTab = tabRuns
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd(m.interval))

	case DataMsg:
		m.err = msg.Err
		m.lastRefresh = msg.At
		if msg.Err == nil {
			m.runs = msg.Runs
			m.results = msg.Results
			if m.selectedRow >= len(m.runs) {
				m.selectedRow = max(len(m.runs)-1, 0)
			}
			if m.resultRow >= len(m.results) {
				m.resultRow = max(len(m.results)-1, 0)
			}
		}
	}

	return m, nil
}
