package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/perfsight/internal/preprocess"
)

const promptSeparator = "===================="

// TestContext is free-form metadata about the test run (type, duration,
// virtual users, target system).
type TestContext map[string]any

// Keys returns the context keys in sorted order.
func (c TestContext) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// BuildPrompt renders the final analysis prompt from preprocessed summaries.
// Raw file content never reaches this prompt.
func BuildPrompt(summaries []preprocess.FileSummary, context TestContext) string {
	var b strings.Builder

	b.WriteString("You are a senior performance engineer.\n")
	b.WriteString("You will receive preprocessed summaries of performance artifacts (logs, metrics, reports, configs).\n")
	b.WriteString("Use ONLY the provided summaries. Do not request or assume missing raw data.\n\n")
	b.WriteString("Produce a Markdown report with the following sections:\n")
	for _, s := range ReportSections {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\nBe concise, evidence-driven, and avoid filler text. Tie recommendations to observed signals.\n")
	b.WriteString(promptSeparator + "\n")

	b.WriteString("Test Context:\n")
	for _, k := range context.Keys() {
		fmt.Fprintf(&b, "- %s: %v\n", k, context[k])
	}
	b.WriteString("\n" + promptSeparator + "\n")

	b.WriteString("File Summaries (preprocessed):\n")
	for _, f := range summaries {
		fileType := f.FileType
		if fileType == "" {
			fileType = preprocess.FileTypeUnknown
		}
		fmt.Fprintf(&b, "- File: %s\n", f.Name)
		fmt.Fprintf(&b, "  - Type: %s\n", fileType)
		fmt.Fprintf(&b, "  - Lines: %d | Chunks: %d\n", f.TotalLines, f.Chunks)
		fmt.Fprintf(&b, "  - Summary:\n    %s\n", strings.ReplaceAll(f.Summary, "\n", "\n    "))
	}
	b.WriteString("\n" + promptSeparator + "\n")

	return b.String()
}
