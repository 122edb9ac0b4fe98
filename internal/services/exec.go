package services

import (
	"bytes"
	"context"
	"os/exec"
)

// ExecRunner abstracts execution of external commands (manim, ffmpeg, the
// browser recorder) so adapters can be tested with a fake runner.
type ExecRunner interface {
	// Run executes name with args in dir (empty = inherit cwd) and returns
	// combined stdout+stderr along with the process error, if any.
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// RealExecRunner runs actual commands.
type RealExecRunner struct{}

func (r *RealExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var b bytes.Buffer
	cmd.Stdout = &b
	cmd.Stderr = &b
	err := cmd.Run()
	return b.String(), err
}
