// Package prompt loads the agent prompt template and fills in its placeholders.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/comigor/bueller-go/internal/issue"
	"github.com/comigor/bueller-go/internal/logger"
)

//go:embed default_prompt.md
var defaultTemplate string

// Default returns the built-in template.
func Default() string {
	return defaultTemplate
}

// LoadOrCreate reads the template at path. When the file does not exist the
// default template is written there and returned.
func LoadOrCreate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		logger.L.Info("loaded prompt template", "path", path)
		return string(data), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read prompt template: %w", err)
	}

	logger.L.Info("prompt template not found; writing default", "path", path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create prompt directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return "", fmt.Errorf("write default prompt template: %w", err)
	}
	return defaultTemplate, nil
}

// Build substitutes the bracketed placeholders in template for one issue in
// the open directory. Directory and file paths are made absolute.
func Build(template string, layout issue.Layout, faqDir, issueFile string) string {
	issuesDir := absolute(layout.Root)
	replacer := strings.NewReplacer(
		"[ISSUES_DIR]", issuesDir,
		"[FAQ_DIR]", absolute(faqDir),
		"[ISSUE_DIR_OPEN]", layout.Open,
		"[ISSUE_DIR_REVIEW]", layout.Review,
		"[ISSUE_DIR_STUCK]", layout.Stuck,
		"[ISSUE_FILE_PATH]", filepath.Join(issuesDir, layout.Open, issueFile),
		"[ISSUE_FILE]", issueFile,
	)
	return replacer.Replace(template)
}

func absolute(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
