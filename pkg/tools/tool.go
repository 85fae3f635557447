package tools

import (
	"context"
	"encoding/json"
)

// Tool is the interface for all built-in tools offered to the agent
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() json.RawMessage
	// Run executes the tool with the JSON encoded arguments from the model.
	Run(ctx context.Context, args string) (string, error)
}
