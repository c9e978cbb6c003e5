package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fjglira/qagen/internal/generator"
)

// Color palette
var (
	ColorSuccess = lipgloss.Color("#00D787")
	ColorError   = lipgloss.Color("#FF5F87")
	ColorWarning = lipgloss.Color("#FFAF00")
	ColorInfo    = lipgloss.Color("#5FAFFF")
	ColorMuted   = lipgloss.Color("#888888")
)

// Text styles
var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
)

// printSummary writes a short run report: one line per phase, then the
// questions raised and the files written.
func printSummary(w io.Writer, report *generator.Report) {
	if report == nil || report.Outcome == nil {
		return
	}
	out := report.Outcome

	fmt.Fprintln(w, StyleTitle.Render(fmt.Sprintf("%d test case(s) from %d input item(s)", len(out.Records), report.Items)))
	for _, p := range out.Phases {
		line := fmt.Sprintf("  %-20s %3d records  %d round(s)  %s", p.Name, p.Records, p.Rounds, p.Duration.Round(time.Millisecond))
		switch {
		case p.Err != nil:
			fmt.Fprintln(w, StyleError.Render(line+"  failed: "+p.Err.Error()))
		case p.Skipped:
			fmt.Fprintln(w, StyleWarning.Render(line+"  skipped"))
		default:
			fmt.Fprintln(w, line)
		}
	}

	if len(out.Questions) > 0 {
		fmt.Fprintln(w, StyleTitle.Render("Open questions"))
		for _, q := range out.Questions {
			fmt.Fprintln(w, "  - "+strings.TrimSpace(q))
		}
	}
	for _, path := range report.Written {
		fmt.Fprintln(w, StyleSuccess.Render("wrote ")+StyleMuted.Render(path))
	}
}
