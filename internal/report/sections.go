package report

import "strings"

// Section headings requested from the analysis model.
const (
	SectionExecutiveSummary = "Executive Summary"
	SectionTestContext      = "Test Context"
	SectionKeyFindings      = "Key Metrics & Findings"
	SectionIssues           = "Detailed Issues & Root Cause Hypotheses"
	SectionRecommendations  = "Recommendations"
	SectionNextSteps        = "Next Steps"
)

// ReportSections lists the headings in the order the report should use them.
var ReportSections = []string{
	SectionExecutiveSummary,
	SectionTestContext,
	SectionKeyFindings,
	SectionIssues,
	SectionRecommendations,
	SectionNextSteps,
}

// ExtractSection returns the body under the heading named title, up to the
// next heading. Matching ignores case and leading '#' marks. A missing
// heading yields "".
func ExtractSection(markdown, title string) string {
	lines := strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n")
	want := strings.ToLower(title)

	start := -1
	for i, line := range lines {
		if headingText(line) == want {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	var body []string
	for _, line := range lines[start:] {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			break
		}
		body = append(body, line)
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

func headingText(line string) string {
	s := strings.ToLower(strings.TrimSpace(line))
	s = strings.TrimLeft(s, "#")
	return strings.TrimSpace(s)
}
