// Package queue manages the on-disk issue queue the agent loop works through.
package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/comigor/bueller-go/internal/issue"
	"github.com/comigor/bueller-go/internal/logger"
)

// Outcome describes where an issue ended up after an agent iteration.
type Outcome string

const (
	OutcomeDone       Outcome = "done"
	OutcomeStuck      Outcome = "stuck"
	OutcomeInProgress Outcome = "in progress"
	OutcomeUnknown    Outcome = "unknown"
)

// EnsureDirectories creates the issues root, its status directories and the
// FAQ directory when missing.
func EnsureDirectories(layout issue.Layout, faqDir string) error {
	dirs := []string{
		layout.Root,
		layout.Dir(issue.StatusOpen),
		layout.Dir(issue.StatusReview),
		layout.Dir(issue.StatusStuck),
	}
	if faqDir != "" {
		dirs = append(dirs, faqDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// OpenIssues lists the markdown files waiting in the open directory, sorted by
// name so that p0 issues come before p1 and lower order numbers first.
func OpenIssues(layout issue.Layout) ([]string, error) {
	entries, err := os.ReadDir(layout.Dir(issue.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("list open issues: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// OutcomeOf reports the outcome for filename. Review takes precedence over stuck,
// and stuck over open.
func OutcomeOf(layout issue.Layout, filename string) Outcome {
	switch {
	case exists(filepath.Join(layout.Dir(issue.StatusReview), filename)):
		return OutcomeDone
	case exists(filepath.Join(layout.Dir(issue.StatusStuck), filename)):
		return OutcomeStuck
	case exists(filepath.Join(layout.Dir(issue.StatusOpen), filename)):
		return OutcomeInProgress
	default:
		logger.L.Warn("issue vanished from the queue", "issue", filename)
		return OutcomeUnknown
	}
}

// IssueID strips the .md suffix: "p0-002-git.md" -> "p0-002-git".
func IssueID(filename string) string {
	return strings.TrimSuffix(filename, ".md")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
