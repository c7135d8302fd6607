// Package preflight validates a run before any pair executes: input files
// exist, every configured program resolves to an adapter, and the script
// runner is able to accept work.
package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"rundock/internal/apperrors"
	"rundock/internal/dock"
)

// ReadinessChecker is implemented by script runners to verify they can
// accept work (shell present, Docker daemon reachable).
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Status represents the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult contains the result of one named check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response aggregates all preflight checks.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Checker verifies a run configuration against the environment.
type Checker struct {
	receptor  string
	ligand    string
	instances []dock.Instance
	engines   dock.EngineFactory
	runner    ReadinessChecker
	timeout   time.Duration
}

// NewChecker creates a preflight checker for one run. The runner may be nil
// when only file and adapter checks are wanted.
func NewChecker(receptor, ligand string, instances []dock.Instance, engines dock.EngineFactory, runner ReadinessChecker) *Checker {
	return &Checker{
		receptor:  receptor,
		ligand:    ligand,
		instances: instances,
		engines:   engines,
		runner:    runner,
		timeout:   5 * time.Second,
	}
}

// Run executes every check and aggregates the results. The response lists
// all failures, not just the first, so one pass reports everything wrong.
func (c *Checker) Run(ctx context.Context) *Response {
	checks := map[string]CheckResult{
		"receptor": checkFile(c.receptor),
		"ligand":   checkFile(c.ligand),
		"engines":  c.checkEngines(),
		"runner":   c.checkRunner(ctx),
	}

	status := StatusHealthy
	for _, result := range checks {
		if result.Status != StatusHealthy {
			status = StatusUnhealthy
		}
	}
	return &Response{Status: status, Checks: checks}
}

// Err converts the aggregated response into a fatal missing-input error, or
// nil when everything passed.
func (r *Response) Err() error {
	if r.Status == StatusHealthy {
		return nil
	}
	for name, check := range r.Checks {
		if check.Status != StatusHealthy {
			return apperrors.MissingInput(name, check.Message)
		}
	}
	return nil
}

func checkFile(path string) CheckResult {
	if path == "" {
		return CheckResult{Status: StatusUnhealthy, Message: "path not set"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Message: path + " is a directory"}
	}
	return CheckResult{Status: StatusHealthy}
}

func (c *Checker) checkEngines() CheckResult {
	for _, inst := range c.instances {
		if _, err := c.engines(inst); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("instance %s: %v", inst.Name, err),
			}
		}
	}
	return CheckResult{Status: StatusHealthy}
}

func (c *Checker) checkRunner(ctx context.Context) CheckResult {
	if c.runner == nil {
		return CheckResult{Status: StatusHealthy, Message: "runner check skipped"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.runner.Ready(checkCtx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
