// Package report renders the flat layout of a build as a table.
package report

import (
	"debug/elf"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/wippyai/flatimg/builder"
	"github.com/wippyai/flatimg/layout"
)

// Style selects how the table is drawn.
type Style int

const (
	Plain Style = iota
	Styled
)

// Headers names the report columns.
var Headers = []string{"PHDR", "VADDR", "FILESZ", "MEMSZ", "FLAT RANGE", "FLAGS", "ENTRY"}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	entryStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#98FB98"))

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))
)

// StyleFor returns Styled when f is a terminal.
func StyleFor(f *os.File) Style {
	if term.IsTerminal(int(f.Fd())) {
		return Styled
	}
	return Plain
}

// Row returns the report cells for one placement.
func Row(p layout.Placement, entry layout.EntryTarget) []string {
	seg := p.Segment
	marker := ""
	if seg.Index == entry.TableIndex {
		marker = fmt.Sprintf("+%#x", entry.EntryVAddr-seg.VAddr)
	}
	return []string{
		fmt.Sprintf("%d", seg.Index),
		fmt.Sprintf("%#x", seg.VAddr),
		fmt.Sprintf("%#x", seg.FileSize),
		fmt.Sprintf("%#x", seg.MemSize),
		fmt.Sprintf("[%#x, %#x)", p.Offset, p.End()),
		Flags(seg.Flags),
		marker,
	}
}

// Rows returns one row per placement of res.
func Rows(res *builder.Result) [][]string {
	rows := make([][]string, 0, res.Layout.Len())
	for _, p := range res.Layout.Placements {
		rows = append(rows, Row(p, res.Entry))
	}
	return rows
}

// Summary describes the metadata of res in one line.
func Summary(res *builder.Result) string {
	return fmt.Sprintf("entry %#x -> offset %#x, memsize %#x (%s)",
		res.Entry.EntryVAddr,
		res.Metadata.EntryOffset,
		res.Metadata.TotalSize,
		humanize.IBytes(res.Metadata.TotalSize))
}

// Flags renders segment permissions as "rwx".
func Flags(f elf.ProgFlag) string {
	b := []byte("---")
	if f&elf.PF_R != 0 {
		b[0] = 'r'
	}
	if f&elf.PF_W != 0 {
		b[1] = 'w'
	}
	if f&elf.PF_X != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Write renders res to w.
func Write(w io.Writer, res *builder.Result, style Style) error {
	rows := Rows(res)

	if style == Styled {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers(Headers...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row < 0:
					return headerStyle
				case row >= 0 && row < len(rows) && rows[row][len(Headers)-1] != "":
					return entryStyle
				default:
					return cellStyle
				}
			})
		_, err := fmt.Fprintf(w, "%s\n%s\n", t.Render(), summaryStyle.Render(Summary(res)))
		return err
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader(Headers)
	tw.SetAutoFormatHeaders(false)
	tw.SetBorder(false)
	tw.AppendBulk(rows)
	tw.Render()

	_, err := fmt.Fprintln(w, Summary(res))
	return err
}
