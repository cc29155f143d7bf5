package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/reflow/wordwrap"
	"github.com/raphaelgruber/perfsight/internal/report"
	"golang.org/x/term"
)

const defaultWrapWidth = 100

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// wrapWidth returns the terminal width of f, capped at defaultWrapWidth.
func wrapWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 || w > defaultWrapWidth {
		return defaultWrapWidth
	}
	return w
}

// writeJSON writes v as indented JSON to path, or to w when path is "" or "-".
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// printResult renders the headline sections of a report for a terminal.
func printResult(w io.Writer, res *report.Result, width int, theme Theme) {
	heading := theme.completedStyle()
	hint := theme.hintStyle()

	section := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		fmt.Fprintln(w, heading.Render(title))
		fmt.Fprintln(w, indent(wordwrap.String(body, width-2), "  "))
		fmt.Fprintln(w)
	}

	section(report.SectionExecutiveSummary, res.Summary)
	section(report.SectionKeyFindings, res.Insights)
	section(report.SectionRecommendations, res.Recommendations)

	files := make([]string, len(res.Preprocessing.Files))
	for i, f := range res.Preprocessing.Files {
		files[i] = fmt.Sprintf("%s (%s, %d lines, %d chunks)", f.Name, f.FileType, f.TotalLines, f.Chunks)
	}
	if len(files) > 0 {
		fmt.Fprintln(w, hint.Render(fmt.Sprintf("Analyzed %d files with %s at %s:", len(files), res.ModelUsed, res.AnalyzedAt)))
		for _, f := range files {
			fmt.Fprintf(w, "  • %s\n", f)
		}
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
