package issue

import (
	"fmt"
	"os"
	"strings"
)

const sectionSeparator = "\n---\n"

// ReadError reports that an issue file could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read issue file at %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ReadFile loads the issue at path and parses it.
func ReadFile(path string) (ParsedConversation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ParsedConversation{}, &ReadError{Path: path, Err: err}
	}
	return Parse(string(raw)), nil
}

// Parse splits raw issue text into messages. Sections that are empty or do
// not start with a known "@author:" marker are skipped and do not consume an
// index. Parse never fails.
func Parse(raw string) ParsedConversation {
	var messages []Message

	for _, section := range strings.Split(raw, sectionSeparator) {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}

		author, body, ok := splitAuthor(section)
		if !ok {
			continue
		}

		messages = append(messages, Message{
			Index:   len(messages),
			Author:  author,
			Content: strings.TrimSpace(body),
		})
	}

	return ParsedConversation{Messages: messages, Raw: raw}
}

// splitAuthor strips a leading "@author:" marker from section.
func splitAuthor(section string) (Author, string, bool) {
	if !strings.HasPrefix(section, "@") {
		return "", "", false
	}
	tag, body, found := strings.Cut(section[1:], ":")
	if !found {
		return "", "", false
	}
	author := Author(tag)
	if !author.Known() {
		return "", "", false
	}
	return author, body, true
}
