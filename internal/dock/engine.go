// Package dock defines the Engine adapter contract, the docking data model,
// and the Service that drives the site x instance orchestration loop.
package dock

import "context"

// Engine is the adapter contract each docking back end implements. One
// adapter exists per supported program, selected by the program identifier
// from configuration through an explicit registry.
//
// The Service owns mode sequencing; adapters only provide the phases:
//
//   - Prepare writes all scripts and inputs for one (instance, site) pair
//     into dir. It must be idempotent and have no side effects beyond file
//     writes into dir.
//   - Execute invokes the external docking engine synchronously and returns
//     once the process exits. It is the only phase that may spawn a process.
//   - Extract parses native engine output already present in dir into the
//     standardized pose layout: one lig-<K>.mol2 file per surviving pose
//     (K = 1..N, contiguous) plus a parallel score.out file. Zero poses is
//     not an error. Extract never spawns a process.
//   - Cleanup removes intermediate native artifacts after successful
//     extraction. It must never remove the standardized pose or score files.
type Engine interface {
	// Program returns the program identifier this adapter serves.
	Program() string

	// Prepare generates the on-disk scripts and inputs for one pair.
	Prepare(ctx context.Context, dir string, in RunInput) error

	// Execute runs the external docking engine to completion.
	Execute(ctx context.Context, dir string, in RunInput) error

	// Extract standardizes native output, returning the number of poses kept.
	Extract(ctx context.Context, dir string, in RunInput) (int, error)

	// Cleanup deletes native intermediates, keeping poses and scores.
	Cleanup(dir string) error
}

// EngineFactory resolves a configured instance to its Engine adapter.
// Resolution of an unknown program identifier is a configuration error and
// fatal to the whole run.
type EngineFactory func(inst Instance) (Engine, error)

// CommandBuilder produces ready-to-run command lines for external tools.
// License-check gating is the collaborator behind this seam: the core treats
// the returned string as an opaque executable command. Passthrough returns
// the line unchanged.
type CommandBuilder interface {
	Eval(line, program string) string
}

// Passthrough is a CommandBuilder that performs no license gating.
type Passthrough struct{}

// Eval returns the command line unchanged.
func (Passthrough) Eval(line, _ string) string { return line }
