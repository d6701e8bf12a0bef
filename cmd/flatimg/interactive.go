package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/wippyai/flatimg/builder"
	"github.com/wippyai/flatimg/config"
	"github.com/wippyai/flatimg/errors"
	"github.com/wippyai/flatimg/layout"
	"github.com/wippyai/flatimg/report"
)

// dumpSize is how many flat image bytes the detail pane shows.
const dumpSize = 128

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	entryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateDetail
)

type inspectModel struct {
	err   error
	image io.ReaderAt
	res   *builder.Result
	path  string
	dump  string
	table table.Model
	state modelState
}

type dumpMsg struct {
	err  error
	dump string
}

func newInspectModel(path string, image io.ReaderAt, res *builder.Result) *inspectModel {
	cols := make([]table.Column, len(report.Headers))
	for i, h := range report.Headers {
		cols[i] = table.Column{Title: h, Width: len(h) + 2}
	}

	var rows []table.Row
	for _, r := range report.Rows(res) {
		for i, cell := range r {
			if w := len(cell) + 2; w > cols[i].Width {
				cols[i].Width = w
			}
		}
		rows = append(rows, table.Row(r))
	}

	height := len(rows) + 2
	if height > 20 {
		height = 20
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4"))
	t.SetStyles(s)

	return &inspectModel{
		image: image,
		res:   res,
		path:  path,
		table: t,
		state: stateBrowse,
	}
}

func (m *inspectModel) Init() tea.Cmd {
	return nil
}

func (m *inspectModel) selected() (layout.Placement, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= m.res.Layout.Len() {
		return layout.Placement{}, false
	}
	return m.res.Layout.Placements[i], true
}

func (m *inspectModel) loadDump() tea.Msg {
	p, ok := m.selected()
	if !ok {
		return dumpMsg{}
	}

	n := p.Segment.MemSize
	if n > dumpSize {
		n = dumpSize
	}
	buf := make([]byte, n)
	if _, err := m.image.ReadAt(buf, int64(p.Offset)); err != nil && err != io.EOF {
		return dumpMsg{err: err}
	}
	return dumpMsg{dump: hex.Dump(buf)}
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "enter":
			if m.state == stateBrowse {
				m.state = stateDetail
				m.dump = ""
				m.err = nil
				return m, m.loadDump
			}
			m.state = stateBrowse
			return m, nil

		case "esc":
			m.state = stateBrowse
			return m, nil
		}

	case dumpMsg:
		m.dump = msg.dump
		m.err = msg.err
		return m, nil
	}

	if m.state != stateBrowse {
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *inspectModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("flatimg"))
	b.WriteString(" ")
	b.WriteString(m.path)
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		b.WriteString(m.table.View())
		b.WriteString("\n\n")
		b.WriteString(entryStyle.Render(report.Summary(m.res)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter details • q quit"))

	case stateDetail:
		p, ok := m.selected()
		if !ok {
			b.WriteString(errorStyle.Render("No segment selected."))
			break
		}
		m.writeDetail(&b, p)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func (m *inspectModel) writeDetail(b *strings.Builder, p layout.Placement) {
	seg := p.Segment
	field := func(name, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", name)))
		b.WriteString(value)
		b.WriteString("\n")
	}

	field("phdr", fmt.Sprintf("%d (%s)", seg.Index, seg.Type))
	field("vaddr", fmt.Sprintf("%#x", seg.VAddr))
	field("paddr", fmt.Sprintf("%#x", seg.PAddr))
	field("filesz", fmt.Sprintf("%#x (%s)", seg.FileSize, humanize.IBytes(seg.FileSize)))
	field("memsz", fmt.Sprintf("%#x (%s)", seg.MemSize, humanize.IBytes(seg.MemSize)))
	field("bss", fmt.Sprintf("%#x", seg.BSSSize()))
	field("align", fmt.Sprintf("%#x", seg.Align))
	field("flags", report.Flags(seg.Flags))
	field("flat range", fmt.Sprintf("[%#x, %#x)", p.Offset, p.End()))

	if seg.Index == m.res.Entry.TableIndex {
		b.WriteString(entryStyle.Render(fmt.Sprintf("entry %#x at flat offset %#x", m.res.Entry.EntryVAddr, m.res.Entry.Offset)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	case m.dump == "" && seg.MemSize > 0:
		b.WriteString("Reading image...\n")
	default:
		b.WriteString(m.dump)
	}
}

func runInteractive(fs afero.Fs, cfg *config.Config, res *builder.Result) error {
	f, err := fs.Open(cfg.ImagePath)
	if err != nil {
		return errors.IO(errors.PhaseRead, cfg.ImagePath, err)
	}
	defer f.Close()

	p := tea.NewProgram(newInspectModel(cfg.ImagePath, f, res), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
