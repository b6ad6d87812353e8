package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles renders status marks for one writer. Colors are dropped when the
// writer is not a terminal.
type styles struct {
	ok   lipgloss.Style
	fail lipgloss.Style
	dim  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:   r.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
		fail: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		dim:  r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (s styles) mark(ok bool) string {
	if ok {
		return s.ok.Render("✓")
	}
	return s.fail.Render("✗")
}
