// Package report renders apply results for human consumption.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	categoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	countStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	fuzzyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	renameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	addrStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// CategoryCount is one match category's result.
type CategoryCount struct {
	Name  string
	Count int
	Fuzzy bool
}

// RenameLine is one applied rename. Display carries the demangled form of
// the new name when it differs.
type RenameLine struct {
	Address uint64
	From    string
	To      string
	Display string
}

// Summary is everything an apply run reports.
type Summary struct {
	Binary        string
	SignatureFile string
	Matches       []CategoryCount
	Renames       []RenameLine
	Renamed       int
	Elapsed       time.Duration
}

// Render writes the summary to w.
func Render(w io.Writer, s Summary) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("applied %s to %s", s.SignatureFile, s.Binary)))

	for _, m := range s.Matches {
		line := fmt.Sprintf("  %s %s",
			categoryStyle.Render(fmt.Sprintf("%-12s", m.Name)),
			countStyle.Render(fmt.Sprintf("%d", m.Count)))
		if m.Fuzzy {
			line += " " + fuzzyStyle.Render("(fuzzy)")
		}
		fmt.Fprintln(w, line)
	}

	for _, r := range s.Renames {
		display := r.To
		if r.Display != "" && r.Display != r.To {
			display = r.Display
		}
		fmt.Fprintf(w, "  %s  %s → %s\n",
			addrStyle.Render(fmt.Sprintf("%x", r.Address)),
			fuzzyStyle.Render(r.From),
			renameStyle.Render(display))
	}

	fmt.Fprintln(w, headerStyle.Render(
		fmt.Sprintf("renamed %d functions in %s", s.Renamed, s.Elapsed.Round(time.Millisecond))))
}
