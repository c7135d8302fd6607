// Package engine implements the dock.Engine adapters for the supported
// docking programs and the registry that resolves program identifiers to
// adapters.
package engine

import (
	"rundock/internal/apperrors"
	"rundock/internal/dock"
	"rundock/internal/runner"
)

// Supported program identifiers.
const (
	ProgramGlide = "glide"
	ProgramVina  = "vina"
	ProgramDock6 = "dock6"
)

// Programs returns the closed set of registered program identifiers.
func Programs() []string {
	return []string{ProgramDock6, ProgramGlide, ProgramVina}
}

// Factory returns a dock.EngineFactory over the closed adapter set.
// Each instance gets its own adapter wired to the shared command runner and
// command builder; an unknown program identifier is a fatal configuration
// error.
func Factory(r runner.Runner, b dock.CommandBuilder) dock.EngineFactory {
	return func(inst dock.Instance) (dock.Engine, error) {
		switch inst.Program {
		case ProgramGlide:
			return NewGlide(inst.Options, r, b), nil
		case ProgramVina:
			return NewVina(inst.Options, r, b), nil
		case ProgramDock6:
			return NewDock6(inst.Options, r, b), nil
		default:
			return nil, apperrors.UnknownEngine(inst.Program)
		}
	}
}
