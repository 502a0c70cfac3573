// Package tui is the terminal dashboard: one row per download with a live
// progress bar, driven by the engine's progress flow.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Curodenz/animeko/internal/engine"
	"github.com/Curodenz/animeko/internal/engine/types"
)

// Config carries what the dashboard needs from the CLI layer.
type Config struct {
	Version        string
	URLs           []string
	OutputDir      string
	Options        types.DownloadOptions
	ClipboardPaste bool
	ExitWhenDone   bool
	// MakeOutputPath derives a destination path for a URL; nil falls back to
	// "<OutputDir>/download.bin".
	MakeOutputPath func(rawurl string) string
}

type downloadRow struct {
	id       string
	url      string
	bar      progress.Model
	snapshot types.DownloadProgress
}

type rootModel struct {
	eng    *engine.Engine
	cfg    Config
	flow   <-chan types.DownloadProgress
	cancel context.CancelFunc

	rows   []*downloadRow
	byID   map[string]*downloadRow
	cursor int
	width  int
	notice string
}

// Messages
type progressMsg types.DownloadProgress

type flowClosedMsg struct{}

type downloadStartedMsg struct {
	id  string
	url string
	err error
}

func newRootModel(eng *engine.Engine, cfg Config) *rootModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &rootModel{
		eng:    eng,
		cfg:    cfg,
		flow:   eng.ProgressFlow(ctx),
		cancel: cancel,
		byID:   make(map[string]*downloadRow),
	}
}

func (m *rootModel) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForProgress(m.flow)}
	for _, rawurl := range m.cfg.URLs {
		cmds = append(cmds, m.startDownload(rawurl))
	}
	return tea.Batch(cmds...)
}

// waitForProgress relays the next snapshot from the engine's flow.
func waitForProgress(flow <-chan types.DownloadProgress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-flow
		if !ok {
			return flowClosedMsg{}
		}
		return progressMsg(p)
	}
}

// startDownload kicks off a download in the background; planning happens off
// the update loop so a slow playlist never freezes the UI.
func (m *rootModel) startDownload(rawurl string) tea.Cmd {
	eng, cfg := m.eng, m.cfg
	return func() tea.Msg {
		output := cfg.OutputDir + "/download.bin"
		if cfg.MakeOutputPath != nil {
			output = cfg.MakeOutputPath(rawurl)
		}
		id, err := eng.Download(context.Background(), rawurl, output, cfg.Options)
		return downloadStartedMsg{id: id, url: rawurl, err: err}
	}
}

func (m *rootModel) ensureRow(id, url string) *downloadRow {
	if row, ok := m.byID[id]; ok {
		return row
	}
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = barWidth
	row := &downloadRow{id: id, url: url, bar: bar}
	row.snapshot.ID = id
	row.snapshot.URL = url
	m.rows = append(m.rows, row)
	m.byID[id] = row
	return row
}

func (m *rootModel) allTerminal() bool {
	if len(m.rows) == 0 {
		return false
	}
	for _, row := range m.rows {
		if !row.snapshot.Status.Terminal() {
			return false
		}
	}
	return true
}

// Run starts the dashboard and blocks until it exits. Active downloads are
// paused on the way out so they can be resumed by a later run.
func Run(eng *engine.Engine, cfg Config) error {
	m := newRootModel(eng, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	m.cancel()
	eng.PauseAll()
	return err
}
