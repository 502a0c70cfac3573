package tui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Curodenz/animeko/internal/engine/types"
)

func (m *rootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case progressMsg:
		row := m.ensureRow(msg.ID, msg.URL)
		row.snapshot = types.DownloadProgress(msg)
		if m.cfg.ExitWhenDone && m.allTerminal() {
			return m, tea.Quit
		}
		return m, waitForProgress(m.flow)

	case flowClosedMsg:
		return m, tea.Quit

	case downloadStartedMsg:
		if msg.err != nil {
			m.notice = "failed: " + msg.err.Error()
		}
		m.ensureRow(msg.id, msg.url)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *rootModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case "p":
		if row := m.selected(); row != nil {
			if m.eng.Pause(row.id) {
				m.notice = "paused " + shortID(row.id)
			}
		}

	case "r":
		if row := m.selected(); row != nil {
			if m.eng.Resume(context.Background(), row.id) {
				m.notice = "resumed " + shortID(row.id)
			}
		}

	case "c":
		if row := m.selected(); row != nil {
			if m.eng.Cancel(row.id) {
				m.notice = "canceled " + shortID(row.id)
			}
		}

	case "v":
		if !m.cfg.ClipboardPaste {
			return m, nil
		}
		text, err := clipboard.ReadAll()
		if err != nil {
			m.notice = "clipboard unavailable"
			return m, nil
		}
		text = strings.TrimSpace(text)
		if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
			m.notice = "clipboard holds no URL"
			return m, nil
		}
		m.notice = "adding " + text
		return m, m.startDownload(text)
	}
	return m, nil
}

func (m *rootModel) selected() *downloadRow {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
