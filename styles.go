package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"packscan/processor"
)

var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorWarning = lipgloss.Color("#FFC107")
	colorError   = lipgloss.Color("#e53935")
	colorInfo    = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#8a94a6")

	okStyle    = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorInfo).
			Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(0, 1)
)

// renderResult formats one scan outcome for the operator console.
func renderResult(res processor.Result) string {
	var badge string
	switch res.Status {
	case processor.StatusSaved, processor.StatusPackerSelected:
		badge = okStyle.Render("OK  ")
	case processor.StatusEmpty, processor.StatusNoPacker, processor.StatusPackerNotFound:
		badge = warnStyle.Render("WARN")
	default:
		badge = errStyle.Render("FAIL")
	}
	line := badge + " " + res.Message
	if res.Photo != "" {
		line += "\n     " + mutedStyle.Render(res.Photo)
	}
	return line
}

func renderState(st processor.State) string {
	var b strings.Builder
	if st.Packer != nil {
		fmt.Fprintf(&b, "Packer:  %s (#%s)\n", st.Packer.Name, st.Packer.ID)
		fmt.Fprintf(&b, "Session: %s\n", st.SessionID)
		fmt.Fprintf(&b, "Folder:  %s\n", st.Folder)
		fmt.Fprintf(&b, "Scans:   %d\n", st.Scans)
	} else {
		b.WriteString("Packer:  " + warnStyle.Render("none") + "\n")
	}
	fmt.Fprintf(&b, "Station: %s\nSource:  %s", st.Station, st.Source)
	return b.String()
}

func renderReport(ok bool, text string) string {
	if ok {
		return okStyle.Render(text)
	}
	return errStyle.Render(text)
}
