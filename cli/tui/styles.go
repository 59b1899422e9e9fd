package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

var (
	accent = lipgloss.Color("#2563EB")
	green  = lipgloss.Color("#16A34A")
	amber  = lipgloss.Color("#D97706")
	red    = lipgloss.Color("#DC2626")
	grey   = lipgloss.Color("#71717A")
	white  = lipgloss.Color("#FAFAFA")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(grey).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(white)
	warnStyle  = lipgloss.NewStyle().Foreground(amber)
	helpStyle  = lipgloss.NewStyle().Foreground(grey).MarginTop(1)
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(grey).
			Padding(1, 2)
	tileStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(18).
			Align(lipgloss.Center)
)

// categoryColor maps a result category to green (done), amber (the cloud
// wants more) or red (failed).
func categoryColor(category string) lipgloss.Color {
	switch types.Category(category) {
	case types.CategoryOK:
		return green
	case types.CategoryTask, types.CategoryPending:
		return amber
	case types.CategoryTransport, types.CategoryProtocol:
		return red
	}
	return white
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + valueStyle.Render(value) + "\n"
}

func tile(label string, n int64, c lipgloss.Color) string {
	num := lipgloss.NewStyle().Bold(true).Foreground(c).Render(fmt.Sprint(n))
	return tileStyle.BorderForeground(c).Render(lipgloss.JoinVertical(lipgloss.Center, num, labelStyle.UnsetWidth().Render(label)))
}

func tiles(ts ...string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, ts...) + "\n\n"
}

// countList prints one line per key in key order, nothing when empty.
func countList[N int | int64](title string, counts map[string]N) string {
	if len(counts) == 0 {
		return ""
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title) + "\n")
	for _, name := range names {
		b.WriteString("  " + labelStyle.Width(28).Render(name) + " " + valueStyle.Render(fmt.Sprint(counts[name])) + "\n")
	}
	return b.String() + "\n"
}
