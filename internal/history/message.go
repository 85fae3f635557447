package history

import "time"

// Message is one persisted turn of an agent session. Payload carries the
// provider specific message (tool calls and the like) as JSON so a session
// can be replayed exactly.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Issue     string    `json:"issue"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
