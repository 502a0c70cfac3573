package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Curodenz/animeko/internal/engine/types"
)

const barWidth = 30

var darkBackground = termenv.HasDarkBackground()

// pick returns the variant matching the terminal background.
func pick(dark, light string) lipgloss.Color {
	if darkBackground {
		return lipgloss.Color(dark)
	}
	return lipgloss.Color(light)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(pick("211", "161"))

	headerStyle = lipgloss.NewStyle().
			Foreground(pick("245", "240"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(pick("230", "235"))

	noticeStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(pick("117", "25"))

	helpStyle = lipgloss.NewStyle().
			Foreground(pick("241", "246"))

	statusStyles = map[types.DownloadStatus]lipgloss.Style{
		types.StatusInitializing: lipgloss.NewStyle().Foreground(pick("245", "240")),
		types.StatusDownloading:  lipgloss.NewStyle().Foreground(pick("39", "26")),
		types.StatusPaused:       lipgloss.NewStyle().Foreground(pick("214", "130")),
		types.StatusMerging:      lipgloss.NewStyle().Foreground(pick("141", "55")),
		types.StatusCompleted:    lipgloss.NewStyle().Foreground(pick("42", "28")),
		types.StatusFailed:       lipgloss.NewStyle().Foreground(pick("196", "124")),
		types.StatusCanceled:     lipgloss.NewStyle().Foreground(pick("245", "240")),
	}
)

func statusStyle(s types.DownloadStatus) lipgloss.Style {
	if style, ok := statusStyles[s]; ok {
		return style
	}
	return headerStyle
}
