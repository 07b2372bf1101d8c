package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeromebarre/get-obs/internal/driver"
	"github.com/jeromebarre/get-obs/internal/models"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	okStyle = lipgloss.NewStyle().
		Foreground(successColor).
		Bold(true)

	partialStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	failedStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(models.WindowStatusOK), string(models.RunStatusCompleted):
		return okStyle
	case string(models.WindowStatusPartial), string(models.RunStatusRunning):
		return partialStyle
	case string(models.WindowStatusFailed), string(models.RunStatusAborted):
		return failedStyle
	default:
		return mutedStyle
	}
}

func printSummary(w io.Writer, r *driver.Report) {
	title := fmt.Sprintf("%s %s %s", r.Instrument, r.Platform, r.Observable)
	if r.DryRun {
		title += " (plan)"
	}
	fmt.Fprintln(w, titleStyle.Render(title))

	for _, win := range r.Windows {
		status := fmt.Sprintf("%-7s", win.Status)
		fmt.Fprintf(w, "  %s  %s  %d requests  %d outputs\n",
			win.Window.Stamp(), statusStyle(string(win.Status)).Render(status), win.Requests, len(win.Outputs))
		for _, e := range win.Errors {
			fmt.Fprintf(w, "      %s\n", mutedStyle.Render(truncate(e, 160)))
		}
	}

	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d windows, %d failed, run %s",
		len(r.Windows), r.Failed(), truncateID(r.RunID))))
}
