// Package apperrors provides structured application errors for the docking run.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
//
// Configuration, missing-input and consolidation errors are fatal and abort
// the run. Engine-execution and extraction errors are scoped to a single
// (instance, site) pair; the orchestrator records the pair with zero poses
// and continues.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrMissingInput    = errors.New("missing input")
	ErrEngineExecution = errors.New("engine execution failure")
	ErrExtraction      = errors.New("extraction error")
	ErrConsolidation   = errors.New("consolidation i/o error")
)

// Error provides a structured error with docking context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Instance string // Instance name (per-pair errors)
	Site     string // Site label (per-pair errors)
	Program  string // Engine program identifier
	Op       string // Operation that failed (e.g. "finalize.copyPose")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Configuration creates a fatal configuration error.
func Configuration(field, message string) error {
	return &Error{
		Sentinel: ErrConfiguration,
		Message:  fmt.Sprintf("%s: %s", field, message),
	}
}

// UnknownEngine creates a fatal configuration error for an unregistered
// program identifier.
func UnknownEngine(program string) error {
	return &Error{
		Sentinel: ErrConfiguration,
		Message:  fmt.Sprintf("no docking engine registered for program %q", program),
		Program:  program,
	}
}

// MissingInput creates a fatal error for a failed preflight check, typically
// an absent receptor or ligand file.
func MissingInput(check, detail string) error {
	return &Error{
		Sentinel: ErrMissingInput,
		Message:  fmt.Sprintf("preflight check %s failed: %s", check, detail),
		Op:       check,
	}
}

// EngineFailure creates a per-pair error for a non-zero engine exit.
func EngineFailure(instance, site, program string, cause error) error {
	return &Error{
		Sentinel: ErrEngineExecution,
		Message:  fmt.Sprintf("%s failed for instance %s site %s: %v", program, instance, site, cause),
		Instance: instance,
		Site:     site,
		Program:  program,
		Cause:    cause,
	}
}

// Extraction creates a per-pair error for unparseable native engine output.
func Extraction(instance, site, program string, cause error) error {
	return &Error{
		Sentinel: ErrExtraction,
		Message:  fmt.Sprintf("cannot extract %s output for instance %s site %s: %v", program, instance, site, cause),
		Instance: instance,
		Site:     site,
		Program:  program,
		Cause:    cause,
	}
}

// Consolidation creates a fatal error wrapping an I/O failure during finalize.
func Consolidation(op string, cause error) error {
	return &Error{
		Sentinel: ErrConsolidation,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// IsFatal reports whether err must abort the whole run rather than a single
// (instance, site) pair.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrMissingInput) ||
		errors.Is(err, ErrConsolidation)
}
