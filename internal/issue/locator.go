package issue

import (
	"os"
	"path/filepath"
	"strings"
)

// Status is the lifecycle stage of an issue, derived from its directory.
type Status string

const (
	StatusOpen   Status = "open"
	StatusReview Status = "review"
	StatusStuck  Status = "stuck"
)

// Layout describes the issues root and the names of its status directories.
type Layout struct {
	Root   string
	Open   string
	Review string
	Stuck  string
}

// DefaultLayout returns the layout with the standard open/review/stuck names.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:   root,
		Open:   string(StatusOpen),
		Review: string(StatusReview),
		Stuck:  string(StatusStuck),
	}
}

type statusDir struct {
	name   string
	status Status
}

// dirs lists the status directories in search order.
func (l Layout) dirs() []statusDir {
	return []statusDir{
		{name: l.Open, status: StatusOpen},
		{name: l.Review, status: StatusReview},
		{name: l.Stuck, status: StatusStuck},
	}
}

// Dir returns the directory holding issues with the given status.
func (l Layout) Dir(status Status) string {
	for _, d := range l.dirs() {
		if d.status == status {
			return filepath.Join(l.Root, d.name)
		}
	}
	return filepath.Join(l.Root, string(status))
}

// DirName returns the configured directory name for status.
func (l Layout) DirName(status Status) string {
	for _, d := range l.dirs() {
		if d.status == status {
			return d.name
		}
	}
	return string(status)
}

// LocatedIssue identifies an issue file on disk.
type LocatedIssue struct {
	Path     string // absolute
	Status   Status
	Filename string
}

// Locate looks for filename in the open, review and stuck directories, in
// that order, and returns the first match.
func (l Layout) Locate(filename string) (LocatedIssue, bool) {
	root, err := filepath.Abs(l.Root)
	if err != nil {
		root = l.Root
	}
	for _, d := range l.dirs() {
		path := filepath.Join(root, d.name, filename)
		if !exists(path) {
			continue
		}
		return LocatedIssue{Path: path, Status: d.status, Filename: filename}, true
	}
	return LocatedIssue{}, false
}

// Resolve turns a user supplied reference into a located issue. References
// containing a path separator are treated as file paths and their status is
// inferred from the path; anything else is looked up with Locate.
func (l Layout) Resolve(reference string) (LocatedIssue, bool) {
	if !strings.ContainsAny(reference, `/\`) {
		return l.Locate(reference)
	}

	path, err := filepath.Abs(reference)
	if err != nil || !exists(path) {
		return LocatedIssue{}, false
	}

	return LocatedIssue{
		Path:     path,
		Status:   l.statusFromPath(path),
		Filename: filepath.Base(path),
	}, true
}

func (l Layout) statusFromPath(path string) Status {
	slashed := filepath.ToSlash(path)
	switch {
	case strings.Contains(slashed, "/"+l.Review+"/"):
		return StatusReview
	case strings.Contains(slashed, "/"+l.Stuck+"/"):
		return StatusStuck
	default:
		return StatusOpen
	}
}

// NormalizeReference appends the .md suffix to bare issue names.
func NormalizeReference(reference string) string {
	if strings.HasSuffix(reference, ".md") || filepath.IsAbs(reference) {
		return reference
	}
	return reference + ".md"
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
