// Package vcs records the result of each agent iteration as a git commit.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/comigor/bueller-go/internal/logger"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// CommandRunner runs commands in Dir (the working directory when empty).
type CommandRunner struct {
	Dir string
}

func (r CommandRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Committer stages everything and commits it with an issue-scoped message.
type Committer struct {
	runner Runner
}

func NewCommitter(runner Runner) *Committer {
	return &Committer{runner: runner}
}

// Commit records the working tree as "<issueID> <status>". It reports false
// when there was nothing to commit.
func (c *Committer) Commit(ctx context.Context, issueID, status string) (bool, error) {
	if c == nil || c.runner == nil {
		return false, fmt.Errorf("git committer is not initialized")
	}

	dirty, err := c.dirty(ctx)
	if err != nil {
		return false, err
	}
	if !dirty {
		logger.L.Info("no changes to commit", "issue", issueID)
		return false, nil
	}

	if out, err := c.runner.Run(ctx, "git", "add", "-A"); err != nil {
		return false, fmt.Errorf("stage changes: %w: %s", err, strings.TrimSpace(out))
	}

	message := issueID + " " + status
	out, err := c.runner.Run(ctx, "git", "commit", "-m", message)
	if err != nil {
		if isNoChangesCommitOutput(out) {
			return false, nil
		}
		return false, fmt.Errorf("commit %q: %w: %s", message, err, strings.TrimSpace(out))
	}

	logger.L.Info("git commit created", "message", message)
	return true, nil
}

// dirty reports tracked modifications, staged changes or untracked files.
func (c *Committer) dirty(ctx context.Context) (bool, error) {
	if _, err := c.runner.Run(ctx, "git", "diff", "--quiet"); err != nil {
		return true, nil
	}
	if _, err := c.runner.Run(ctx, "git", "diff", "--cached", "--quiet"); err != nil {
		return true, nil
	}
	untracked, err := c.runner.Run(ctx, "git", "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return false, fmt.Errorf("list untracked files: %w", err)
	}
	return strings.TrimSpace(untracked) != "", nil
}

func isNoChangesCommitOutput(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "nothing to commit") || strings.Contains(lower, "no changes added to commit")
}
