package issue

// Author identifies who wrote a message in an issue conversation.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
	// AuthorClaude is the tag the default prompt template asks the agent to write.
	AuthorClaude Author = "claude"
)

var knownAuthors = map[Author]struct{}{
	AuthorUser:   {},
	AuthorAgent:  {},
	AuthorClaude: {},
}

// Known reports whether a is a recognized author tag.
func (a Author) Known() bool {
	_, ok := knownAuthors[a]
	return ok
}

// Message is a single turn of an issue conversation.
type Message struct {
	Index   int
	Author  Author
	Content string
}

// ParsedConversation is the result of parsing an issue file.
type ParsedConversation struct {
	Messages []Message
	// Raw is the unmodified input text.
	Raw string
}

// Latest returns the most recent message, if any.
func (p ParsedConversation) Latest() (Message, bool) {
	if len(p.Messages) == 0 {
		return Message{}, false
	}
	return p.Messages[len(p.Messages)-1], true
}
