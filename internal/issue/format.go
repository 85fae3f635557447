package issue

import (
	"fmt"
	"strings"
)

const moreHint = "Pass `--index N` or `--index M,N` to see more."

// Expand returns a copy of summary with the messages selected by spec shown
// in full. Indices that do not exist in the conversation are ignored. The
// spec is attached as the summary's display filter.
func Expand(summary IssueSummary, spec IndexSpec) IssueSummary {
	messages := make([]AbbreviatedMessage, len(summary.Messages))
	for i, msg := range summary.Messages {
		if spec.Contains(msg.Index) {
			msg.Content = msg.FullContent
			msg.IsAbbreviated = false
		}
		messages[i] = msg
	}

	filter := spec
	summary.Messages = messages
	summary.Filter = &filter
	return summary
}

// ExpandSpec parses spec and expands summary with it. An invalid spec leaves
// the summary untouched.
func ExpandSpec(summary IssueSummary, spec string) IssueSummary {
	parsed, ok := ParseIndexSpec(spec)
	if !ok {
		return summary
	}
	return Expand(summary, parsed)
}

// Format renders summary for the terminal. With a filter attached only the
// selected messages are printed. Abbreviated content is condensed onto one
// line; full content keeps its formatting.
func Format(summary IssueSummary, layout Layout) string {
	lines := []string{layout.DirName(summary.Issue.Status) + "/" + summary.Issue.Filename}

	for _, msg := range summary.Messages {
		if summary.Filter != nil && !summary.Filter.Contains(msg.Index) {
			continue
		}
		content := msg.Content
		if msg.IsAbbreviated {
			content = condense(content)
		}
		lines = append(lines, fmt.Sprintf("[%d] @%s: %s", msg.Index, msg.Author, content))
	}

	if summary.Filter == nil || !summary.Filter.IsSingleIndex {
		lines = append(lines, "", moreHint)
	}

	return strings.Join(lines, "\n")
}

func condense(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}
