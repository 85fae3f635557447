package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls     []string
	responses map[string]fakeResponse
}

type fakeResponse struct {
	out string
	err error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, call)
	if resp, ok := f.responses[call]; ok {
		return resp.out, resp.err
	}
	return "", nil
}

var errExit = errors.New("exit status 1")

func TestCommit_CleanTree(t *testing.T) {
	runner := &fakeRunner{}

	committed, err := NewCommitter(runner).Commit(context.Background(), "p1-001-x", "done")
	require.NoError(t, err)
	require.False(t, committed)
	require.Equal(t, []string{
		"git diff --quiet",
		"git diff --cached --quiet",
		"git ls-files --others --exclude-standard",
	}, runner.calls)
}

func TestCommit_TrackedChanges(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"git diff --quiet": {err: errExit},
	}}

	committed, err := NewCommitter(runner).Commit(context.Background(), "p1-001-x", "in progress")
	require.NoError(t, err)
	require.True(t, committed)
	require.Equal(t, []string{
		"git diff --quiet",
		"git add -A",
		"git commit -m p1-001-x in progress",
	}, runner.calls)
}

func TestCommit_UntrackedOnly(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"git ls-files --others --exclude-standard": {out: "issues/open/new.md\n"},
	}}

	committed, err := NewCommitter(runner).Commit(context.Background(), "p0-002-git", "stuck")
	require.NoError(t, err)
	require.True(t, committed)
	require.Contains(t, runner.calls, "git commit -m p0-002-git stuck")
}

func TestCommit_NothingToCommitIsNotAnError(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"git diff --quiet":     {err: errExit},
		"git commit -m a done": {out: "nothing to commit, working tree clean", err: errExit},
	}}

	committed, err := NewCommitter(runner).Commit(context.Background(), "a", "done")
	require.NoError(t, err)
	require.False(t, committed)
}

func TestCommit_StageFailure(t *testing.T) {
	runner := &fakeRunner{responses: map[string]fakeResponse{
		"git diff --quiet": {err: errExit},
		"git add -A":       {out: "fatal: not a git repository", err: errExit},
	}}

	_, err := NewCommitter(runner).Commit(context.Background(), "a", "done")
	require.ErrorContains(t, err, "not a git repository")
}

func TestCommit_NilCommitter(t *testing.T) {
	var c *Committer
	_, err := c.Commit(context.Background(), "a", "done")
	require.Error(t, err)
}

// TestCommit_RealRepository exercises the committer against a scratch repo.
func TestCommit_RealRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	runner := CommandRunner{Dir: dir}
	ctx := context.Background()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
		{"config", "commit.gpgsign", "false"},
	} {
		_, err := runner.Run(ctx, "git", args...)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p1-001-x.md"), []byte("@user: hi"), 0o644))

	committer := NewCommitter(runner)
	committed, err := committer.Commit(ctx, "p1-001-x", "done")
	require.NoError(t, err)
	require.True(t, committed)

	log, err := runner.Run(ctx, "git", "log", "--format=%s")
	require.NoError(t, err)
	require.Equal(t, "p1-001-x done", strings.TrimSpace(log))

	committed, err = committer.Commit(ctx, "p1-001-x", "done")
	require.NoError(t, err)
	require.False(t, committed)
}
