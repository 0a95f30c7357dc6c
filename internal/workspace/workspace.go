// Package workspace acquires and releases the working copy a run operates on.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"plugline/internal/logging"
)

// ErrAcquire wraps every failure to obtain a working copy.
var ErrAcquire = errors.New("acquire working copy")

type Options struct {
	// BaseDir holds the temporary clone directory; empty uses os.TempDir.
	BaseDir string
	Branch  string
	Depth   int
	Retain  bool
	// Identity, when both parts are set, is written to the clone's local git config.
	UserName  string
	UserEmail string
}

// WorkingCopy is a clone owned by one run until released.
type WorkingCopy struct {
	Dir    string
	Source string
	retain bool
	done   bool
}

// Acquire clones source into a fresh temporary directory. On failure nothing is
// left behind.
func Acquire(ctx context.Context, source string, opts Options, logger *zap.Logger) (*WorkingCopy, error) {
	logger = logging.OrNop(logger)
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrAcquire)
	}
	dir, err := os.MkdirTemp(opts.BaseDir, "plugline-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquire, err)
	}
	cloneOpts := &git.CloneOptions{URL: source, Depth: opts.Depth}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
		cloneOpts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, cloneOpts)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: clone %s: %v", ErrAcquire, source, err)
	}
	if opts.UserName != "" && opts.UserEmail != "" {
		cfg, err := repo.Config()
		if err == nil {
			cfg.User.Name = opts.UserName
			cfg.User.Email = opts.UserEmail
			err = repo.SetConfig(cfg)
		}
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("%w: set identity: %v", ErrAcquire, err)
		}
	}
	logger.Info("cloned working copy", zap.String("source", source), zap.String("dir", dir))
	return &WorkingCopy{Dir: dir, Source: source, retain: opts.Retain}, nil
}

// Retain keeps the directory on Release, for manual recovery.
func (w *WorkingCopy) Retain() { w.retain = true }

func (w *WorkingCopy) Retained() bool { return w.retain }

// Release deletes the working copy unless retained. It is safe to call more
// than once and never fails; problems are logged.
func (w *WorkingCopy) Release(logger *zap.Logger) {
	logger = logging.OrNop(logger)
	if w == nil || w.done {
		return
	}
	w.done = true
	if w.retain {
		logger.Info("working copy retained", zap.String("dir", w.Dir))
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		logger.Warn("could not remove working copy", zap.String("dir", w.Dir), zap.Error(err))
	}
}

// With acquires a working copy, runs fn and releases the copy however fn exits.
func With(ctx context.Context, source string, opts Options, logger *zap.Logger, fn func(*WorkingCopy) error) error {
	wc, err := Acquire(ctx, source, opts, logger)
	if err != nil {
		return err
	}
	defer wc.Release(logger)
	return fn(wc)
}
