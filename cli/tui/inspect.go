package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// InspectModel is a Bubble Tea model for the job inspect view.
// The data payload is a *types.Job whose result metadata has already
// been redacted by the command layer; the TUI renders what it is given.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_job":
		content = m.renderInspectJob()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectJob() string {
	job, ok := m.data.(*types.Job)
	if !ok {
		return "Invalid data type for inspect_job"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Provisioning Job"))
	b.WriteString("\n\n")

	writeField(&b, "Job ID", job.ID, false)
	writeField(&b, "Status", string(job.Status), true)
	writeField(&b, "Employee", job.Request.Employee.FullName, false)
	writeField(&b, "Email", job.Request.Employee.WorkEmail, false)
	writeField(&b, "Attempt", fmt.Sprintf("%d", job.Attempt), false)
	writeField(&b, "Created At", job.CreatedAt.Format("2006-01-02 15:04:05"), false)
	writeField(&b, "Updated At", job.UpdatedAt.Format("2006-01-02 15:04:05"), false)
	if job.Error != "" {
		writeField(&b, "Error", job.Error, false)
	}

	if job.Outcome != nil {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Outcome"))
		b.WriteString("\n")
		writeField(&b, "Overall", string(job.Outcome.Overall), true)
		writeField(&b, "Duration", job.Outcome.Duration.String(), false)

		for _, id := range sortedProviders(job.Outcome.PerApp) {
			res := job.Outcome.PerApp[id]
			b.WriteString("\n")
			if res == nil {
				b.WriteString(fmt.Sprintf("%s %s\n",
					LabelStyle.Render(string(id)+":"),
					ErrorStyle.Render("no result")))
				continue
			}
			b.WriteString(fmt.Sprintf("%s %s\n",
				LabelStyle.Render(string(id)+":"),
				StateStyle(string(res.Status)).Render(string(res.Status))))
			for key, val := range res.ExternalIDs {
				b.WriteString(fmt.Sprintf("  • %s: %s\n", key, ValueStyle.Render(val)))
			}
			for _, warning := range res.Warnings {
				b.WriteString(fmt.Sprintf("  %s %s\n", WarningStyle.Render("⚠"), warning))
			}
			for _, errMsg := range res.Errors {
				b.WriteString(fmt.Sprintf("  %s %s\n", ErrorStyle.Render("✗"), errMsg))
			}
		}
	}

	return BoxStyle.Render(b.String())
}

func writeField(b *strings.Builder, label, value string, isState bool) {
	rendered := ValueStyle.Render(value)
	if isState {
		rendered = StateStyle(value).Render(value)
	}
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(label+":"), rendered))
}

func sortedProviders(perApp map[types.ProviderID]*types.Result) []types.ProviderID {
	ids := make([]types.ProviderID, 0, len(perApp))
	for id := range perApp {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
