package issue

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "…"

// Limits are the character budgets used when abbreviating messages. The first
// and last messages get Long, everything in between gets Short.
type Limits struct {
	Long  int
	Short int
}

// DefaultLimits returns the 300/80 character budgets.
func DefaultLimits() Limits {
	return Limits{Long: 300, Short: 80}
}

// AbbreviatedMessage is a message prepared for display. FullContent always
// holds the original text so the message can be expanded later.
type AbbreviatedMessage struct {
	Index         int
	Author        Author
	Content       string
	IsAbbreviated bool
	FullContent   string
}

// IssueSummary is the abbreviated view of one issue.
type IssueSummary struct {
	Issue        LocatedIssue
	Messages     []AbbreviatedMessage
	MessageCount int
	// Filter is set by Expand and restricts which messages Format prints.
	Filter *IndexSpec
}

// Summarize reads the located issue and abbreviates its conversation.
func Summarize(located LocatedIssue, limits Limits) (IssueSummary, error) {
	parsed, err := ReadFile(located.Path)
	if err != nil {
		return IssueSummary{}, err
	}

	return IssueSummary{
		Issue:        located,
		Messages:     Abbreviate(parsed.Messages, limits),
		MessageCount: len(parsed.Messages),
	}, nil
}

// Abbreviate applies position dependent limits to messages.
func Abbreviate(messages []Message, limits Limits) []AbbreviatedMessage {
	if len(messages) == 0 {
		return []AbbreviatedMessage{}
	}

	last := len(messages) - 1
	out := make([]AbbreviatedMessage, 0, len(messages))
	for i, msg := range messages {
		limit := limits.Short
		if i == 0 || i == last {
			limit = limits.Long
		}
		out = append(out, abbreviate(msg, limit))
	}
	return out
}

func abbreviate(msg Message, limit int) AbbreviatedMessage {
	out := AbbreviatedMessage{
		Index:       msg.Index,
		Author:      msg.Author,
		Content:     msg.Content,
		FullContent: msg.Content,
	}
	limit = max(limit, 0)
	if utf8.RuneCountInString(msg.Content) <= limit {
		return out
	}

	prefix := []rune(msg.Content)[:limit]
	out.Content = strings.TrimRight(string(prefix), " \t\r\n\v\f") + ellipsis
	out.IsAbbreviated = true
	return out
}
