// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/slopped-in/pkg/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// FormatTable writes papers as a human-readable table to w.
func FormatTable(papers []types.PaperRecord, w io.Writer) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	cols := []struct {
		title string
		width int
	}{{"#", 3}, {"Title", 60}, {"Authors", 24}, {"Published", 10}}

	var header []string
	for _, c := range cols {
		header = append(header, headerStyle.Width(c.width).Render(c.title))
	}
	fmt.Fprintln(w, strings.Join(header, "  "))
	fmt.Fprintln(w, mutedStyle.Render(strings.Repeat("-", 105)))

	for i, p := range papers {
		published := p.Published
		if len(published) > 10 {
			published = published[:10]
		}
		row := []string{
			lipgloss.NewStyle().Width(cols[0].width).Render(fmt.Sprintf("%d", i+1)),
			lipgloss.NewStyle().Width(cols[1].width).Render(truncate(p.Title, cols[1].width)),
			lipgloss.NewStyle().Width(cols[2].width).Render(truncate(p.Authors, cols[2].width)),
			lipgloss.NewStyle().Width(cols[3].width).Render(published),
		}
		fmt.Fprintln(w, strings.Join(row, "  "))
		fmt.Fprintln(w, mutedStyle.Render("     "+p.Link))
	}

	fmt.Fprintf(w, "\n%d results\n", len(papers))
}

// FormatJSON writes papers as indented JSON to w, in the same
// {"papers": [...]} envelope the HTTP API returns.
func FormatJSON(papers []types.PaperRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(types.SearchResponse{Papers: papers})
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
