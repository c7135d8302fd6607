// Package runner provides the narrow "run external command, return status"
// capability injected into engine adapters. Backends run a generated docking
// script inside a pair working directory and block until it exits.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// LogFile is the file inside the working directory that captures the
// combined stdout/stderr of the engine invocation.
const LogFile = "run.log"

// Runner executes one generated engine script synchronously.
// A non-nil error means the process could not be started or exited non-zero.
type Runner interface {
	// Run executes script (a path relative to dir) with dir as the working
	// directory and blocks until the process exits.
	Run(ctx context.Context, dir, script string) error

	// Ready checks whether the backend can accept work.
	Ready(ctx context.Context) error
}

// Local runs engine scripts directly on the host through bash.
type Local struct {
	Shell string // defaults to "bash"
}

// NewLocal creates a host-process runner.
func NewLocal() *Local {
	return &Local{Shell: "bash"}
}

func (l *Local) shell() string {
	if l.Shell == "" {
		return "bash"
	}
	return l.Shell
}

// Run executes the script in dir, teeing combined output into run.log.
func (l *Local) Run(ctx context.Context, dir, script string) error {
	logFile, err := os.Create(filepath.Join(dir, LogFile))
	if err != nil {
		return fmt.Errorf("create run log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, l.shell(), script)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", script, err)
	}
	return nil
}

// Ready verifies the shell is present on the host.
func (l *Local) Ready(ctx context.Context) error {
	if _, err := exec.LookPath(l.shell()); err != nil {
		return fmt.Errorf("shell %q not found: %w", l.shell(), err)
	}
	return nil
}
