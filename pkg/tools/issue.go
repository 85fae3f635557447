package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/comigor/bueller-go/internal/issue"
	"github.com/comigor/bueller-go/internal/logger"
)

// IssueTools returns the built-in tools for working on issues in layout.
func IssueTools(layout issue.Layout, limits issue.Limits) []Tool {
	return []Tool{
		&IssueSummaryTool{layout: layout, limits: limits},
		&AppendMessageTool{layout: layout},
		&MoveIssueTool{layout: layout},
	}
}

// IssueSummaryTool shows an abbreviated issue conversation, optionally with
// some messages expanded.
type IssueSummaryTool struct {
	layout issue.Layout
	limits issue.Limits
}

func (t *IssueSummaryTool) Name() string { return "issue_summary" }

func (t *IssueSummaryTool) Description() string {
	return "Shows an abbreviated conversation of an issue. Pass 'index' as N or M,N to see those messages in full."
}

func (t *IssueSummaryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"issue":{"type":"string","description":"issue filename or path"},"index":{"type":"string"}},"required":["issue"]}`)
}

func (t *IssueSummaryTool) Run(_ context.Context, args string) (string, error) {
	var toolArgs struct {
		Issue string `json:"issue"`
		Index string `json:"index"`
	}
	if err := json.Unmarshal([]byte(args), &toolArgs); err != nil {
		return "", err
	}

	located, ok := t.layout.Resolve(issue.NormalizeReference(toolArgs.Issue))
	if !ok {
		return "", fmt.Errorf("could not find issue: %s", toolArgs.Issue)
	}
	summary, err := issue.Summarize(located, t.limits)
	if err != nil {
		return "", err
	}
	if toolArgs.Index != "" {
		summary = issue.ExpandSpec(summary, toolArgs.Index)
	}
	return issue.Format(summary, t.layout), nil
}

// AppendMessageTool appends an agent message to an open issue.
type AppendMessageTool struct {
	layout issue.Layout
}

func (t *AppendMessageTool) Name() string { return "issue_append" }

func (t *AppendMessageTool) Description() string {
	return "Appends your response to the conversation of an open issue."
}

func (t *AppendMessageTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"issue":{"type":"string"},"message":{"type":"string"}},"required":["issue","message"]}`)
}

func (t *AppendMessageTool) Run(_ context.Context, args string) (string, error) {
	var toolArgs struct {
		Issue   string `json:"issue"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(args), &toolArgs); err != nil {
		return "", err
	}
	message := strings.TrimSpace(toolArgs.Message)
	if message == "" {
		return "", fmt.Errorf("message is empty")
	}

	path, err := openIssuePath(t.layout, toolArgs.Issue)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if strings.TrimSpace(string(raw)) != "" {
		if !strings.HasSuffix(string(raw), "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n---\n\n")
	}
	fmt.Fprintf(&b, "@%s: %s\n", issue.AuthorClaude, message)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return "", err
	}
	if err := writeAndClose(f, b.String()); err != nil {
		return "", err
	}

	logger.L.Debug("appended message to issue", "path", path)
	return "Appended message to " + filepath.Base(path), nil
}

// writeAndClose writes text to w and closes it. A failed close is reported
// since buffered data may not have reached the file.
func writeAndClose(w io.WriteCloser, text string) error {
	if _, err := io.WriteString(w, text); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// MoveIssueTool moves an open issue to review or stuck.
type MoveIssueTool struct {
	layout issue.Layout
}

func (t *MoveIssueTool) Name() string { return "issue_move" }

func (t *MoveIssueTool) Description() string {
	return "Moves an open issue to 'review' when complete or to 'stuck' when human help is needed."
}

func (t *MoveIssueTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"issue":{"type":"string"},"status":{"type":"string","enum":["review","stuck"]}},"required":["issue","status"]}`)
}

func (t *MoveIssueTool) Run(_ context.Context, args string) (string, error) {
	var toolArgs struct {
		Issue  string       `json:"issue"`
		Status issue.Status `json:"status"`
	}
	if err := json.Unmarshal([]byte(args), &toolArgs); err != nil {
		return "", err
	}
	if toolArgs.Status != issue.StatusReview && toolArgs.Status != issue.StatusStuck {
		return "", fmt.Errorf("status must be %q or %q, got %q", issue.StatusReview, issue.StatusStuck, toolArgs.Status)
	}

	src, err := openIssuePath(t.layout, toolArgs.Issue)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(t.layout.Dir(toolArgs.Status), filepath.Base(src))
	if err := os.Rename(src, dst); err != nil {
		return "", err
	}

	logger.L.Info("issue moved", "issue", filepath.Base(src), "status", toolArgs.Status)
	return fmt.Sprintf("Moved %s to %s/", filepath.Base(src), t.layout.DirName(toolArgs.Status)), nil
}

// openIssuePath resolves ref and requires the issue to still be open.
func openIssuePath(layout issue.Layout, ref string) (string, error) {
	located, ok := layout.Resolve(issue.NormalizeReference(ref))
	if !ok {
		return "", fmt.Errorf("could not find issue: %s", ref)
	}
	if located.Status != issue.StatusOpen {
		return "", fmt.Errorf("issue %s is in %s/, not open", located.Filename, layout.DirName(located.Status))
	}
	return located.Path, nil
}
