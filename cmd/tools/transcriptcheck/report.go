package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/persona-echo/backend/internal/analysis/transcript"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	senderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("236")).
			Padding(0, 1)
)

// renderReport summarises a parsed transcript. limit caps the number of
// messages shown from the end; 0 shows all of them.
func renderReport(name string, t transcript.Transcript, limit int) string {
	counts := make(map[string]int, len(t.Participants))
	for _, m := range t.Messages {
		counts[m.Sender]++
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "%s %d\n", labelStyle.Render("messages:"), len(t.Messages))
	fmt.Fprintf(&summary, "%s\n", labelStyle.Render("participants:"))
	for _, p := range t.Participants {
		fmt.Fprintf(&summary, "  %s %d\n", senderStyle.Render(p), counts[p])
	}

	shown := t.Messages
	if limit > 0 && len(shown) > limit {
		shown = shown[len(shown)-limit:]
	}

	var lines []string
	for _, m := range shown {
		body := strings.ReplaceAll(m.Body, "\n", "\n    ")
		lines = append(lines, fmt.Sprintf("%s %s\n    %s", labelStyle.Render(m.Timestamp), senderStyle.Render(m.Sender), body))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(name),
		boxStyle.Render(strings.TrimRight(summary.String(), "\n")),
		strings.Join(lines, "\n"),
	)
}
