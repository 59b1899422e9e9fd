// Package tui shows read-only Bubble Tea views of history and session data.
//
// A view renders the same payload the json, yaml and table renderers
// receive. Nothing is loaded once the program starts.
package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// renderFunc draws a payload. It fails when data has the wrong type.
type renderFunc func(data any) (string, error)

var views = map[string]renderFunc{
	"inspect_transfer": renderTransfer,
	"stats_history":    renderHistory,
	"stats_metrics":    renderMetrics,
}

// IsTUISupported reports whether viewType has an interactive view.
func IsTUISupported(viewType string) bool {
	_, ok := views[viewType]
	return ok
}

// SupportedTUIViews lists the view types in name order.
func SupportedTUIViews() []string {
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run draws viewType full screen until the user quits.
func Run(viewType string, data any) error {
	m, err := newModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// Static renders viewType once, without a terminal program.
func Static(viewType string, data any) (string, error) {
	m, err := newModel(viewType, data)
	if err != nil {
		return "", err
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View()), nil
}

type keyMap struct {
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type model struct {
	body     string
	help     help.Model
	quitting bool
}

func newModel(viewType string, data any) (model, error) {
	render, ok := views[viewType]
	if !ok {
		return model{}, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	body, err := render(data)
	if err != nil {
		return model{}, err
	}
	return model{body: body, help: help.New()}, nil
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	return m.body + "\n" + helpStyle.Render(m.help.View(keys))
}
