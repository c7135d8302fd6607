package engine

import (
	"context"
	"errors"
	"testing"

	"rundock/internal/apperrors"
	"rundock/internal/dock"
)

// fakeRunner records script invocations instead of spawning processes.
type fakeRunner struct {
	calls []string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, _, script string) error {
	f.calls = append(f.calls, script)
	return f.err
}

func (f *fakeRunner) Ready(_ context.Context) error { return nil }

func TestFactory(t *testing.T) {
	t.Parallel()
	factory := Factory(&fakeRunner{}, dock.Passthrough{})

	for _, program := range Programs() {
		eng, err := factory(dock.Instance{Name: "inst", Program: program})
		if err != nil {
			t.Fatalf("factory(%q) error = %v", program, err)
		}
		if eng.Program() != program {
			t.Errorf("Program() = %q, want %q", eng.Program(), program)
		}
	}
}

func TestFactory_UnknownProgram(t *testing.T) {
	t.Parallel()
	factory := Factory(&fakeRunner{}, dock.Passthrough{})

	_, err := factory(dock.Instance{Name: "inst", Program: "rosetta"})
	if err == nil {
		t.Fatal("expected error for unknown program")
	}
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestExecute_UsesInjectedRunner(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{}
	eng := NewGlide(nil, r, dock.Passthrough{})

	if err := eng.Execute(context.Background(), "/tmp/pair", dock.RunInput{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "run_glide.sh" {
		t.Errorf("expected one run_glide.sh invocation, got %v", r.calls)
	}
}
