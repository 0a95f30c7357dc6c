package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"plugline/internal/domain"
	"plugline/internal/logging"
	"plugline/internal/persist"
	"plugline/internal/vcs"
)

// Git is the subset of vcs.Adapter the workflow needs.
type Git interface {
	EnsureBranch(ctx context.Context, name string) (string, error)
	Stage(ctx context.Context, paths []string) vcs.StageResult
	Commit(ctx context.Context, message, author string) (string, error)
	Publish(ctx context.Context, branch, remote string, force bool) vcs.PublishResult
}

// Prompter asks the operator questions. Implementations block until answered
// or until ctx is done.
type Prompter interface {
	Select(ctx context.Context, label string, options []string) (int, error)
	Input(ctx context.Context, label, def string) (string, error)
	Confirm(ctx context.Context, label string, def bool) (bool, error)
}

// Approval choices, in the order they are offered.
const (
	ChoiceApprove = iota
	ChoiceReview
	ChoiceCustomMessage
	ChoiceCancel
)

var approvalOptions = []string{
	"Approve and commit",
	"Review file changes in detail",
	"Approve with a custom commit message",
	"Cancel",
}

type Options struct {
	Branch      string
	Message     string
	Author      string
	Publish     bool
	Remote      string
	Force       bool
	AutoApprove bool
}

type Result struct {
	State       domain.WorkflowState    `json:"state"`
	Commit      *domain.GitCommitRecord `json:"commit,omitempty"`
	Publish     *vcs.PublishResult      `json:"publish,omitempty"`
	PullRequest *vcs.PullRequest        `json:"pull_request,omitempty"`
}

// Workflow runs the approval and commit stages against a working copy at Dir.
type Workflow struct {
	Dir      string
	Git      Git
	Prompter Prompter
	Out      io.Writer
	Logger   *zap.Logger
}

// DefaultMessage is the commit message used when the operator does not supply one.
func DefaultMessage(plan domain.IntegrationPlan) string {
	return "Add integrations for: " + strings.Join(plan.SelectedCapabilities, ", ")
}

// Execute moves m from planned to a terminal or committed state. A cancelled run
// returns a nil error; the returned Result always reflects the last state reached.
// Cancelling ctx before the commit starts ends the run as cancelled.
func (w Workflow) Execute(ctx context.Context, m *Machine, plan domain.IntegrationPlan, opts Options) (Result, error) {
	logger := logging.OrNop(w.Logger)
	out := w.Out
	if out == nil {
		out = io.Discard
	}
	res := Result{State: m.State()}
	step := func(to domain.WorkflowState) error {
		if err := m.Transition(to); err != nil {
			return err
		}
		res.State = to
		return nil
	}

	if err := step(domain.StateSummarized); err != nil {
		return res, err
	}
	WriteSummary(out, plan)
	if err := step(domain.StateAwaitingApproval); err != nil {
		return res, err
	}

	message, approved, err := w.approve(ctx, plan, opts, out, step)
	if err != nil && ctx.Err() == nil {
		return res, err
	}
	if ctx.Err() != nil {
		logger.Info("workflow interrupted", zap.Error(ctx.Err()))
		approved = false
	}
	if !approved {
		fmt.Fprintln(out, "Cancelled. Nothing was committed.")
		logger.Info("workflow cancelled")
		err = step(domain.StateCancelled)
		return res, err
	}
	if err := step(domain.StateApproved); err != nil {
		return res, err
	}

	branch, err := w.Git.EnsureBranch(ctx, opts.Branch)
	if err != nil {
		return res, fmt.Errorf("prepare branch: %w", err)
	}
	staged := w.Git.Stage(ctx, w.stagePaths(plan))
	if len(staged.Staged) == 0 {
		return res, errors.New("nothing to commit: no plan files could be staged")
	}
	if message == "" {
		message = DefaultMessage(plan)
	}
	hash, err := w.Git.Commit(ctx, message, opts.Author)
	if err != nil {
		return res, err
	}
	res.Commit = &domain.GitCommitRecord{Message: message, FilesStaged: staged.Staged, Branch: branch, Hash: hash}
	if err := step(domain.StateCommitted); err != nil {
		return res, err
	}
	fmt.Fprintf(out, "Committed %s on %s\n", shortHash(hash), branch)
	pr := vcs.PullRequestDescription(branch, plan.SelectedCapabilities)
	res.PullRequest = &pr

	if !opts.Publish {
		return res, nil
	}
	pub := w.Git.Publish(ctx, branch, opts.Remote, opts.Force)
	res.Publish = &pub
	if !pub.OK {
		fmt.Fprintf(out, "Push failed; the commit is kept locally. Retry with:\n  %s\n", pub.ManualCommand)
		err = step(domain.StatePublishFailed)
		return res, err
	}
	fmt.Fprintf(out, "Pushed %s\n", branch)
	err = step(domain.StatePublished)
	return res, err
}

// approve runs the approval loop until the operator approves or cancels.
func (w Workflow) approve(ctx context.Context, plan domain.IntegrationPlan, opts Options, out io.Writer, step func(domain.WorkflowState) error) (string, bool, error) {
	if opts.AutoApprove {
		return opts.Message, true, nil
	}
	if w.Prompter == nil {
		return "", false, errors.New("approval requires a prompter or auto-approve")
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		choice, err := w.Prompter.Select(ctx, "How do you want to proceed?", approvalOptions)
		if err != nil {
			return "", false, fmt.Errorf("read approval: %w", err)
		}
		switch choice {
		case ChoiceApprove:
			return opts.Message, true, nil
		case ChoiceReview:
			if err := step(domain.StateAwaitingApproval); err != nil {
				return "", false, err
			}
			if err := w.review(ctx, plan, out); err != nil {
				return "", false, err
			}
		case ChoiceCustomMessage:
			msg, err := w.Prompter.Input(ctx, "Commit message", "")
			if err != nil {
				return "", false, fmt.Errorf("read commit message: %w", err)
			}
			if msg = strings.TrimSpace(msg); msg != "" {
				return msg, true, nil
			}
			useDefault, err := w.Prompter.Confirm(ctx, fmt.Sprintf("Use %q instead?", DefaultMessage(plan)), true)
			if err != nil {
				return "", false, fmt.Errorf("read confirmation: %w", err)
			}
			if !useDefault {
				return "", false, nil
			}
			return "", true, nil
		case ChoiceCancel:
			return "", false, nil
		default:
			fmt.Fprintf(out, "Unknown choice %d\n", choice)
		}
	}
}

func (w Workflow) review(ctx context.Context, plan domain.IntegrationPlan, out io.Writer) error {
	for i := 0; i < len(plan.Changes); i += DetailBatchSize {
		end := i + DetailBatchSize
		if end > len(plan.Changes) {
			end = len(plan.Changes)
		}
		for _, c := range plan.Changes[i:end] {
			writeChange(out, c)
		}
		if end == len(plan.Changes) {
			break
		}
		more, err := w.Prompter.Confirm(ctx, fmt.Sprintf("Show more? (%d of %d shown)", end, len(plan.Changes)), true)
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if !more {
			break
		}
	}
	return nil
}

// stagePaths is every plan path plus the auxiliary artifacts present in Dir.
func (w Workflow) stagePaths(plan domain.IntegrationPlan) []string {
	paths := plan.Paths()
	for _, name := range persist.Artifacts {
		if _, err := os.Stat(filepath.Join(w.Dir, name)); err == nil {
			paths = append(paths, name)
		}
	}
	return paths
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
