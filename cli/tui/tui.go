package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// View types with a TUI rendering.
const (
	ViewInspectRecording = "inspect_recording"
	ViewSessionStats     = "stats_sessions"
)

// Run starts the TUI for viewType and blocks until the user quits.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	p := tea.NewProgram(NewModel(viewType, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	switch viewType {
	case ViewInspectRecording, ViewSessionStats:
		return true
	default:
		return false
	}
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewInspectRecording, ViewSessionStats}
}

// Model is the read-only Bubble Tea model shared by all views.
type Model struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewModel creates a model rendering data as viewType.
func NewModel(viewType string, data any) Model {
	return Model{viewType: viewType, data: data}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectRecording:
		content = renderRecording(m.data)
	case ViewSessionStats:
		content = renderSessionStats(m.data)
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

// RenderStatic renders a view without starting the program.
func RenderStatic(viewType string, data any) string {
	m := NewModel(viewType, data)
	m.width = 80
	m.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
