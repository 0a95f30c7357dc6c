// Package vcs wraps the git command line. Nothing in here panics or escalates a
// git failure: every operation reports what happened and lets the caller decide.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Result is the outcome of one git invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r Result) OK() bool { return r.ExitCode == 0 }

// Runner executes git with a fixed working directory.
type Runner interface {
	Run(ctx context.Context, args ...string) Result
}

// ExecRunner runs the git binary found on PATH.
type ExecRunner struct {
	Dir    string
	Binary string
}

func (r ExecRunner) Run(ctx context.Context, args ...string) Result {
	bin := r.Binary
	if bin == "" {
		bin = "git"
	}
	full := append([]string{"-C", r.Dir}, args...)
	cmd := exec.CommandContext(ctx, bin, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.ExitCode = -1
	if res.Stderr == "" {
		res.Stderr = err.Error()
	} else {
		res.Stderr += "\n" + err.Error()
	}
	return res
}
