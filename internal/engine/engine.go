package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plugline/internal/analyzer"
	"plugline/internal/app"
	"plugline/internal/domain"
	"plugline/internal/events"
	"plugline/internal/logging"
	"plugline/internal/persist"
	"plugline/internal/repo"
	"plugline/internal/vcs"
	"plugline/internal/workflow"
	"plugline/internal/workspace"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	App    *app.Context
	Now    func() time.Time
}

func New(db *sql.DB, appCtx *app.Context) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		App:    appCtx,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.App == nil {
		return zap.NewNop()
	}
	return logging.OrNop(e.App.Logger)
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CloneOptions derives working copy options from config.
func (e Engine) CloneOptions(retain bool) workspace.Options {
	cfg := e.App.Config
	name, email := cfg.Identity()
	return workspace.Options{
		BaseDir:   cfg.Clone.TmpDir,
		Branch:    cfg.Clone.Branch,
		Depth:     cfg.Clone.Depth,
		Retain:    retain,
		UserName:  name,
		UserEmail: email,
	}
}

// Analyze classifies source without planning anything.
func (e Engine) Analyze(ctx context.Context, source string) (domain.CodebaseInfo, error) {
	var info domain.CodebaseInfo
	err := workspace.With(ctx, source, e.CloneOptions(false), e.logger(), func(wc *workspace.WorkingCopy) error {
		var err error
		info, err = e.App.Analyzer().Analyze(wc.Dir)
		return err
	})
	return info, err
}

type Preview struct {
	Info domain.CodebaseInfo    `json:"info"`
	Plan domain.IntegrationPlan `json:"plan"`
}

// Preview builds a plan for source without touching git. The working copy is
// always released.
func (e Engine) Preview(ctx context.Context, source string, capabilities []string) (Preview, error) {
	var out Preview
	if _, err := e.App.Catalog.Parse(capabilities); err != nil {
		return out, err
	}
	err := workspace.With(ctx, source, e.CloneOptions(false), e.logger(), func(wc *workspace.WorkingCopy) error {
		info, err := e.App.Analyzer().Analyze(wc.Dir)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		snippets := analyzer.ContextSnippets(wc.Dir, info, e.App.Config.Generator.MaxSnippetBytes)
		plan, err := e.App.Builder().Build(ctx, info, capabilities, snippets)
		if err != nil {
			return err
		}
		out = Preview{Info: info, Plan: plan}
		return nil
	})
	return out, err
}

type RunOptions struct {
	Source       string
	Capabilities []string
	ActorID      string
	Retain       bool
	Workflow     workflow.Options
	Prompter     workflow.Prompter
	Out          io.Writer
}

type RunResult struct {
	Run      domain.Run             `json:"run"`
	Info     domain.CodebaseInfo    `json:"info"`
	Plan     domain.IntegrationPlan `json:"plan"`
	Workflow workflow.Result        `json:"workflow"`
	WorkDir  string                 `json:"work_dir,omitempty"`
	Retained bool                   `json:"retained"`
}

// Run executes the whole pipeline for one source. The run row is written once
// a working copy exists; every state change after that is recorded as an event.
func (e Engine) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	var res RunResult
	if e.App == nil {
		return res, errors.New("app context not initialized")
	}
	if opts.ActorID == "" {
		opts.ActorID = "local-user"
	}
	if _, err := e.App.Catalog.Parse(opts.Capabilities); err != nil {
		return res, err
	}
	if opts.Workflow.Remote == "" {
		opts.Workflow.Remote = e.App.Config.Git.Remote
	}
	if opts.Workflow.Author == "" {
		opts.Workflow.Author = e.App.Config.Git.Author
	}
	logger := e.logger()

	wc, err := workspace.Acquire(ctx, opts.Source, e.CloneOptions(opts.Retain), logger)
	if err != nil {
		return res, err
	}
	defer wc.Release(logger)
	res.WorkDir = wc.Dir
	res.Retained = wc.Retained()

	run := domain.Run{
		ID:           uuid.NewString(),
		Source:       opts.Source,
		Capabilities: opts.Capabilities,
		State:        domain.StateCloned,
		CreatedAt:    e.ts(),
	}
	run.UpdatedAt = run.CreatedAt
	if err := e.startRun(ctx, run, opts.ActorID); err != nil {
		return res, err
	}
	logger = logger.With(zap.String("run_id", run.ID))

	// state changes are recorded even after ctx is cancelled
	recordCtx := context.WithoutCancel(ctx)
	m := workflow.NewMachine()
	m.OnTransition = func(from, to domain.WorkflowState) {
		if err := e.recordTransition(recordCtx, run.ID, opts.ActorID, from, to); err != nil {
			logger.Warn("could not record transition", zap.String("to", string(to)), zap.Error(err))
		}
	}

	res.Workflow, err = e.pipeline(ctx, m, wc, opts, &res, logger)
	final := m.State()
	if err == nil && !final.Terminal() {
		err = fmt.Errorf("workflow stopped in state %s", final)
	}
	// the operator needs the clone to finish by hand
	commitFailed := err != nil && final == domain.StateApproved && !errors.Is(err, context.Canceled)
	if commitFailed || final == domain.StatePublishFailed {
		wc.Retain()
		res.Retained = true
	}
	if err != nil {
		e.failRun(ctx, run.ID, opts.ActorID, final, err, logger)
	} else {
		e.finishRun(recordCtx, run.ID, opts.ActorID, res.Workflow, logger)
	}
	if stored, getErr := e.Repo.GetRun(recordCtx, run.ID); getErr == nil {
		res.Run = stored
	} else {
		res.Run = run
	}
	return res, err
}

func (e Engine) pipeline(ctx context.Context, m *workflow.Machine, wc *workspace.WorkingCopy, opts RunOptions, res *RunResult, logger *zap.Logger) (workflow.Result, error) {
	info, err := e.App.Analyzer().Analyze(wc.Dir)
	if err != nil {
		return workflow.Result{State: m.State()}, fmt.Errorf("analyze: %w", err)
	}
	res.Info = info
	if err := m.Transition(domain.StateAnalyzed); err != nil {
		return workflow.Result{State: m.State()}, err
	}

	snippets := analyzer.ContextSnippets(wc.Dir, info, e.App.Config.Generator.MaxSnippetBytes)
	plan, err := e.App.Builder().Build(ctx, info, opts.Capabilities, snippets)
	if err != nil {
		return workflow.Result{State: m.State()}, err
	}
	res.Plan = plan
	if err := m.Transition(domain.StatePlanned); err != nil {
		return workflow.Result{State: m.State()}, err
	}
	written, err := persist.Write(plan, wc.Dir)
	if err != nil {
		return workflow.Result{State: m.State()}, fmt.Errorf("persist plan: %w", err)
	}
	logger.Info("plan written", zap.Int("files", len(written.Changes)), zap.Strings("artifacts", written.Artifacts))

	wf := workflow.Workflow{
		Dir:      wc.Dir,
		Git:      vcs.NewAdapter(wc.Dir, logger.Named("git")),
		Prompter: opts.Prompter,
		Out:      opts.Out,
		Logger:   logger.Named("workflow"),
	}
	return wf.Execute(ctx, m, plan, opts.Workflow)
}

func (e Engine) startRun(ctx context.Context, run domain.Run, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.RunStarted, run.ID, actorID, events.EventPayload{
		"source":       run.Source,
		"capabilities": run.Capabilities,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) recordTransition(ctx context.Context, runID, actorID string, from, to domain.WorkflowState) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRun(ctx, tx, runID, repo.RunUpdate{State: &to, UpdatedAt: e.ts()}); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.RunState, runID, actorID, events.EventPayload{"from": from, "to": to}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) finishRun(ctx context.Context, runID, actorID string, wr workflow.Result, logger *zap.Logger) {
	payload := events.EventPayload{"state": wr.State}
	upd := repo.RunUpdate{UpdatedAt: e.ts()}
	if wr.Commit != nil {
		upd.Branch = &wr.Commit.Branch
		upd.CommitHash = &wr.Commit.Hash
		payload["branch"] = wr.Commit.Branch
		payload["commit"] = wr.Commit.Hash
	}
	if wr.Publish != nil && !wr.Publish.OK {
		payload["manual_command"] = wr.Publish.ManualCommand
	}
	if err := e.closeRun(ctx, runID, actorID, events.RunFinished, upd, payload); err != nil {
		logger.Warn("could not record run outcome", zap.Error(err))
	}
	logger.Info("run finished", zap.String("state", string(wr.State)))
}

func (e Engine) failRun(ctx context.Context, runID, actorID string, state domain.WorkflowState, cause error, logger *zap.Logger) {
	msg := cause.Error()
	upd := repo.RunUpdate{Error: &msg, UpdatedAt: e.ts()}
	payload := events.EventPayload{"state": state, "error": msg}
	// recorded even when ctx is already cancelled
	if err := e.closeRun(context.WithoutCancel(ctx), runID, actorID, events.RunFailed, upd, payload); err != nil {
		logger.Warn("could not record run failure", zap.Error(err))
	}
	logger.Error("run failed", zap.String("state", string(state)), zap.Error(cause))
}

func (e Engine) closeRun(ctx context.Context, runID, actorID, evtType string, upd repo.RunUpdate, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRun(ctx, tx, runID, upd); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, runID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}
