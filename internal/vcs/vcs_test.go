package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	r := ExecRunner{Dir: dir}
	ctx := context.Background()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.name", "Plug Line"},
		{"config", "user.email", "plugline@example.com"},
		{"config", "commit.gpgsign", "false"},
	} {
		res := r.Run(ctx, args...)
		require.True(t, res.OK(), "git %v: %s", args, res.Stderr)
	}
	writeFile(t, dir, "README.md", "hello\n")
	require.True(t, r.Run(ctx, "add", "README.md").OK())
	res := r.Run(ctx, "commit", "-q", "-m", "initial")
	require.True(t, res.OK(), res.Stderr)
	return dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func fixedNow() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

func TestRunnerReportsStartFailure(t *testing.T) {
	res := ExecRunner{Dir: t.TempDir(), Binary: filepath.Join(t.TempDir(), "no-such-git")}.Run(context.Background(), "status")
	assert.Equal(t, -1, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
}

func TestRunnerReportsExitCode(t *testing.T) {
	dir := initRepo(t)
	res := ExecRunner{Dir: dir}.Run(context.Background(), "rev-parse", "--verify", "--quiet", "refs/heads/nope")
	assert.NotEqual(t, 0, res.ExitCode)
	assert.False(t, res.OK())
}

func TestEnsureBranchIsIdempotent(t *testing.T) {
	dir := initRepo(t)
	a := NewAdapter(dir, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		name, err := a.EnsureBranch(ctx, "feature-x")
		require.NoError(t, err)
		assert.Equal(t, "feature-x", name)
		assert.Equal(t, "feature-x", a.CurrentBranch(ctx))
	}
}

func TestEnsureBranchDerivesName(t *testing.T) {
	dir := initRepo(t)
	a := NewAdapter(dir, nil)
	a.Now = fixedNow
	ctx := context.Background()
	first, err := a.EnsureBranch(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "integration-20260304-050607", first)
	second, err := a.EnsureBranch(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStageSkipsMissingPathsWithWarning(t *testing.T) {
	dir := initRepo(t)
	core, logs := observer.New(zapcore.WarnLevel)
	a := NewAdapter(dir, zap.New(core))
	writeFile(t, dir, "integrations/openai.ts", "x\n")

	res := a.Stage(context.Background(), []string{"integrations/openai.ts", "INTEGRATION_SETUP.md"})
	assert.Equal(t, []string{"integrations/openai.ts"}, res.Staged)
	assert.Equal(t, []string{"INTEGRATION_SETUP.md"}, res.Skipped)
	assert.Empty(t, res.Failed)
	require.Equal(t, 1, logs.FilterMessage("skipping missing path").Len())
	assert.Equal(t, "INTEGRATION_SETUP.md", logs.All()[0].ContextMap()["path"])
}

func TestCommitReturnsHash(t *testing.T) {
	dir := initRepo(t)
	a := NewAdapter(dir, nil)
	ctx := context.Background()
	writeFile(t, dir, "a.txt", "a\n")
	a.Stage(ctx, []string{"a.txt"})
	hash, err := a.Commit(ctx, "Add integrations for: openai", "Bot <bot@example.com>")
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	author := ExecRunner{Dir: dir}.Run(ctx, "log", "-1", "--format=%an <%ae>")
	assert.Equal(t, "Bot <bot@example.com>", author.Stdout)
}

func TestCommitWithNothingStagedFails(t *testing.T) {
	dir := initRepo(t)
	hash, err := NewAdapter(dir, nil).Commit(context.Background(), "empty", "")
	assert.Error(t, err)
	assert.Empty(t, hash)

	_, err = NewAdapter(dir, nil).Commit(context.Background(), "  ", "")
	assert.ErrorContains(t, err, "message is required")
}

func TestPublishFailureIsReported(t *testing.T) {
	dir := initRepo(t)
	a := NewAdapter(dir, nil)
	res := a.Publish(context.Background(), "feature-x", "", false)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Output)
	assert.Equal(t, "git push origin feature-x", res.ManualCommand)
}

func TestPublishToBareRemote(t *testing.T) {
	dir := initRepo(t)
	bare := t.TempDir()
	ctx := context.Background()
	require.True(t, ExecRunner{Dir: bare}.Run(ctx, "init", "-q", "--bare").OK())
	require.True(t, ExecRunner{Dir: dir}.Run(ctx, "remote", "add", "origin", bare).OK())

	a := NewAdapter(dir, nil)
	_, err := a.EnsureBranch(ctx, "feature-x")
	require.NoError(t, err)
	res := a.Publish(ctx, "feature-x", "origin", true)
	require.True(t, res.OK, res.Output)
	assert.True(t, ExecRunner{Dir: bare}.Run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/feature-x").OK())
}

func TestUncommittedStateIsDisjoint(t *testing.T) {
	dir := initRepo(t)
	a := NewAdapter(dir, nil)
	ctx := context.Background()
	writeFile(t, dir, "README.md", "changed\n")
	writeFile(t, dir, "staged.txt", "s\n")
	a.Stage(ctx, []string{"staged.txt", "README.md"})
	writeFile(t, dir, "README.md", "changed again\n")
	writeFile(t, dir, "new.txt", "n\n")

	st := a.UncommittedState(ctx)
	assert.ElementsMatch(t, []string{"README.md", "staged.txt"}, st.Staged)
	assert.Empty(t, st.Modified)
	assert.Equal(t, []string{"new.txt"}, st.Untracked)
	assert.False(t, st.Clean())
}

func TestPullRequestDescription(t *testing.T) {
	pr := PullRequestDescription("integration-20260304-050607", []string{"openai", "stripe"})
	assert.Equal(t, "Add integrations: openai, stripe", pr.Title)
	assert.Equal(t, "integration-20260304-050607", pr.Branch)
	assert.Contains(t, pr.Body, "- openai\n- stripe\n")
	assert.Equal(t, pr, PullRequestDescription("integration-20260304-050607", []string{"openai", "stripe"}))
}
