package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"plugline/internal/logging"
)

// BranchPrefix starts every derived branch name.
const BranchPrefix = "integration-"

const DefaultRemote = "origin"

// Adapter runs higher-level git operations against one working copy.
type Adapter struct {
	Dir    string
	Runner Runner
	Logger *zap.Logger
	Now    func() time.Time
}

func NewAdapter(dir string, logger *zap.Logger) Adapter {
	return Adapter{
		Dir:    dir,
		Runner: ExecRunner{Dir: dir},
		Logger: logging.OrNop(logger),
		Now:    time.Now,
	}
}

func (a Adapter) log() *zap.Logger { return logging.OrNop(a.Logger) }

func (a Adapter) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// CurrentBranch returns the checked-out branch, or "" when HEAD is detached.
func (a Adapter) CurrentBranch(ctx context.Context) string {
	res := a.Runner.Run(ctx, "branch", "--show-current")
	if !res.OK() {
		a.log().Warn("could not read current branch", zap.String("stderr", res.Stderr))
		return ""
	}
	return res.Stdout
}

// BranchName derives the default integration branch name for t.
func BranchName(t time.Time) string {
	return BranchPrefix + t.Format("20060102-150405")
}

// EnsureBranch checks out name, creating it first when it does not exist yet.
// An empty name derives one from the current time.
func (a Adapter) EnsureBranch(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = BranchName(a.now())
	}
	exists := a.Runner.Run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+name).OK()
	var res Result
	if exists {
		res = a.Runner.Run(ctx, "checkout", name)
	} else {
		res = a.Runner.Run(ctx, "checkout", "-b", name)
	}
	if !res.OK() {
		return "", fmt.Errorf("checkout %s: %s", name, firstNonEmpty(res.Stderr, res.Stdout))
	}
	a.log().Info("on integration branch", zap.String("branch", name), zap.Bool("reused", exists))
	return name, nil
}

// StageResult partitions the requested paths by outcome.
type StageResult struct {
	Staged  []string `json:"staged"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed"`
}

// Stage adds each existing path on its own so one bad path does not block the rest.
func (a Adapter) Stage(ctx context.Context, paths []string) StageResult {
	var out StageResult
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(a.Dir, filepath.FromSlash(p))); err != nil {
			a.log().Warn("skipping missing path", zap.String("path", p))
			out.Skipped = append(out.Skipped, p)
			continue
		}
		res := a.Runner.Run(ctx, "add", "--", p)
		if !res.OK() {
			a.log().Warn("git add failed", zap.String("path", p), zap.String("stderr", res.Stderr))
			out.Failed = append(out.Failed, p)
			continue
		}
		out.Staged = append(out.Staged, p)
	}
	return out
}

// Commit records the staged content and returns the full commit hash.
func (a Adapter) Commit(ctx context.Context, message, author string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("commit message is required")
	}
	args := []string{"commit", "-m", message}
	if author != "" {
		args = append(args, "--author", author)
	}
	res := a.Runner.Run(ctx, args...)
	if !res.OK() {
		return "", fmt.Errorf("git commit failed: %s", firstNonEmpty(res.Stderr, res.Stdout))
	}
	head := a.Runner.Run(ctx, "rev-parse", "HEAD")
	if !head.OK() || head.Stdout == "" {
		return "", fmt.Errorf("could not resolve commit hash: %s", head.Stderr)
	}
	a.log().Info("committed", zap.String("hash", head.Stdout))
	return head.Stdout, nil
}

// PublishResult describes a push attempt. ManualCommand is always filled so a
// failed push can be retried by hand.
type PublishResult struct {
	OK            bool   `json:"ok"`
	Output        string `json:"output,omitempty"`
	ManualCommand string `json:"manual_command"`
}

// ManualPushCommand is the retry command shown to operators.
func ManualPushCommand(remote, branch string) string {
	if remote == "" {
		remote = DefaultRemote
	}
	return fmt.Sprintf("git push %s %s", remote, branch)
}

// Publish pushes branch to remote. force uses --force-with-lease, never a bare --force.
func (a Adapter) Publish(ctx context.Context, branch, remote string, force bool) PublishResult {
	if remote == "" {
		remote = DefaultRemote
	}
	args := []string{"push", "-u"}
	if force {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, branch)
	res := a.Runner.Run(ctx, args...)
	out := PublishResult{
		OK:            res.OK(),
		Output:        strings.TrimSpace(res.Stdout + "\n" + res.Stderr),
		ManualCommand: ManualPushCommand(remote, branch),
	}
	if !out.OK {
		a.log().Warn("push failed", zap.String("branch", branch), zap.String("remote", remote), zap.String("stderr", res.Stderr))
	}
	return out
}

// Status lists uncommitted paths. A path appears in at most one list.
type Status struct {
	Staged    []string `json:"staged"`
	Modified  []string `json:"modified"`
	Untracked []string `json:"untracked"`
}

func (s Status) Clean() bool {
	return len(s.Staged) == 0 && len(s.Modified) == 0 && len(s.Untracked) == 0
}

func (a Adapter) UncommittedState(ctx context.Context) Status {
	seen := map[string]bool{}
	collect := func(args ...string) []string {
		res := a.Runner.Run(ctx, args...)
		if !res.OK() {
			a.log().Warn("git status query failed", zap.Strings("args", args), zap.String("stderr", res.Stderr))
			return nil
		}
		var out []string
		for _, line := range strings.Split(res.Stdout, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || seen[line] {
				continue
			}
			seen[line] = true
			out = append(out, line)
		}
		return out
	}
	return Status{
		Staged:    collect("diff", "--name-only", "--cached"),
		Modified:  collect("diff", "--name-only"),
		Untracked: collect("ls-files", "--others", "--exclude-standard"),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "unknown error"
}
