package tui

import (
	"fmt"
	"path"
	"strings"

	"github.com/Curodenz/animeko/internal/engine/types"
	"github.com/Curodenz/animeko/internal/utils"
)

func (m *rootModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("animeko-dl " + m.cfg.Version))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(headerStyle.Render("No downloads. Press v to add the clipboard URL."))
		b.WriteString("\n")
	}

	for i, row := range m.rows {
		cursor := "  "
		name := displayName(row.url)
		if i == m.cursor {
			cursor = "> "
			name = selectedStyle.Render(name)
		}

		b.WriteString(cursor)
		b.WriteString(fmt.Sprintf("%-28s ", name))
		b.WriteString(row.bar.ViewAs(fraction(row.snapshot)))
		b.WriteString("  ")
		b.WriteString(bytesColumn(row.snapshot))
		b.WriteString("  ")
		b.WriteString(statusStyle(row.snapshot.Status).Render(statusColumn(row.snapshot)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("p pause · r resume · c cancel · v paste URL · q quit"))
	b.WriteString("\n")
	return b.String()
}

func fraction(p types.DownloadProgress) float64 {
	if p.Status == types.StatusCompleted {
		return 1
	}
	if p.TotalBytes <= 0 {
		return 0
	}
	f := float64(p.DownloadedBytes) / float64(p.TotalBytes)
	if f > 1 {
		f = 1
	}
	return f
}

func bytesColumn(p types.DownloadProgress) string {
	if p.TotalBytes > 0 {
		return fmt.Sprintf("%9s/%-9s",
			utils.ConvertBytesToHumanReadable(p.DownloadedBytes),
			utils.ConvertBytesToHumanReadable(p.TotalBytes))
	}
	return fmt.Sprintf("%9s", utils.ConvertBytesToHumanReadable(p.DownloadedBytes))
}

func statusColumn(p types.DownloadProgress) string {
	s := p.Status.String()
	if p.TotalSegments > 0 && (p.Status == types.StatusDownloading || p.Status == types.StatusPaused) {
		s += fmt.Sprintf(" %d/%d", p.DownloadedSegments, p.TotalSegments)
	}
	if p.Status == types.StatusFailed && p.Err != nil {
		s += " " + string(p.Err.Code)
	}
	return s
}

// displayName shortens a URL to its last path element for the row label.
func displayName(rawurl string) string {
	trimmed := strings.SplitN(rawurl, "?", 2)[0]
	name := path.Base(trimmed)
	if name == "" || name == "." || name == "/" {
		name = rawurl
	}
	if len(name) > 28 {
		name = name[:25] + "..."
	}
	return name
}
