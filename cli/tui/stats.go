package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// JobStats is the aggregate payload for the stats_jobs view. Built by
// the command layer from the job store; the same struct backs JSON,
// table, and TUI rendering.
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	// ProviderOutcomes counts final apply statuses per provider.
	ProviderOutcomes map[string]map[string]int `json:"provider_outcomes,omitempty"`
}

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_jobs":
		content = m.renderStatsJobs()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsJobs() string {
	data, ok := m.data.(*JobStats)
	if !ok {
		return "Invalid data type for stats_jobs"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Job Statistics"))
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Total", data.Total, lipgloss.Color("#3B82F6")),
		m.renderStatBox("Pending", data.Pending, mutedColor),
		m.renderStatBox("Running", data.Running, warningColor),
		m.renderStatBox("Completed", data.Completed, successColor),
		m.renderStatBox("Failed", data.Failed, errorColor),
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	if len(data.ProviderOutcomes) > 0 {
		b.WriteString("\n\n")
		b.WriteString(TitleStyle.Render("Provider Outcomes"))
		b.WriteString("\n")

		providers := make([]string, 0, len(data.ProviderOutcomes))
		for id := range data.ProviderOutcomes {
			providers = append(providers, id)
		}
		sort.Strings(providers)

		for _, id := range providers {
			byStatus := data.ProviderOutcomes[id]
			statuses := make([]string, 0, len(byStatus))
			for status := range byStatus {
				statuses = append(statuses, status)
			}
			sort.Strings(statuses)

			parts := make([]string, 0, len(statuses))
			for _, status := range statuses {
				parts = append(parts, fmt.Sprintf("%s %d",
					StateStyle(status).Render(status), byStatus[status]))
			}
			b.WriteString(fmt.Sprintf("%s %s\n",
				LabelStyle.Render(id+":"),
				strings.Join(parts, "  ")))
		}
	}

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
