package dock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"rundock/internal/apperrors"
	"rundock/pkg/cloudevent"
)

// fakeEngine records call order and fails on demand.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	poses int

	prepareErr error
	executeErr error
	extractErr error
	cleanupErr error
}

func (f *fakeEngine) record(op, dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+filepath.Base(dir))
}

func (f *fakeEngine) Program() string { return "fake" }

func (f *fakeEngine) Prepare(_ context.Context, dir string, _ RunInput) error {
	f.record("prepare", dir)
	return f.prepareErr
}

func (f *fakeEngine) Execute(_ context.Context, dir string, _ RunInput) error {
	f.record("execute", dir)
	return f.executeErr
}

func (f *fakeEngine) Extract(_ context.Context, dir string, _ RunInput) (int, error) {
	f.record("extract", dir)
	return f.poses, f.extractErr
}

func (f *fakeEngine) Cleanup(dir string) error {
	f.record("cleanup", dir)
	return f.cleanupErr
}

func singleEngineFactory(eng Engine) EngineFactory {
	return func(Instance) (Engine, error) { return eng, nil }
}

func noopFinalize(context.Context) (int, []int, error) { return 0, []int{1}, nil }

func baseConfig(t *testing.T, eng Engine) Config {
	t.Helper()
	return Config{
		Sites:     []BindingSite{{Label: "site1"}},
		Instances: []Instance{{Name: "fake1", Program: "fake"}},
		Receptor:  "rec.pdb",
		Ligand:    "lig.mol2",
		BaseDir:   t.TempDir(),
		Policy:    ExtractAll,
		Engines:   singleEngineFactory(eng),
		Finalize:  noopFinalize,
	}
}

func TestNewServiceValidation(t *testing.T) {
	valid := baseConfig(t, &fakeEngine{})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no sites", func(c *Config) { c.Sites = nil }},
		{"no instances", func(c *Config) { c.Instances = nil }},
		{"unnamed instance", func(c *Config) { c.Instances = []Instance{{Program: "fake"}} }},
		{"no program", func(c *Config) { c.Instances = []Instance{{Name: "a"}} }},
		{"duplicate names", func(c *Config) {
			c.Instances = []Instance{{Name: "a", Program: "fake"}, {Name: "a", Program: "fake"}}
		}},
		{"nil engine factory", func(c *Config) { c.Engines = nil }},
		{"nil finalizer", func(c *Config) { c.Finalize = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewService(cfg); err == nil {
				t.Error("expected configuration error")
			} else if !apperrors.IsFatal(err) {
				t.Errorf("configuration error not fatal: %v", err)
			}
		})
	}

	if _, err := NewService(valid); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestRunExecutePhaseOrder(t *testing.T) {
	eng := &fakeEngine{poses: 3}
	cfg := baseConfig(t, eng)
	cfg.Cleanup = true
	cfg.Finalize = func(context.Context) (int, []int, error) { return 3, []int{1, 4}, nil }

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}
	report, err := svc.Run(context.Background(), ModeExecute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"prepare:fake1.site1",
		"execute:fake1.site1",
		"extract:fake1.site1",
		"cleanup:fake1.site1",
	}
	if len(eng.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", eng.calls, want)
	}
	for i := range want {
		if eng.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", eng.calls, want)
		}
	}

	if report.Poses != 3 || len(report.Shifts) != 2 {
		t.Errorf("report poses/shifts = %d/%v", report.Poses, report.Shifts)
	}
	if got := report.Pairs[0]; got.State != StateCompleted || got.Poses != 3 {
		t.Errorf("pair = %+v", got)
	}
}

func TestRunExtractOnlySkipsInvocation(t *testing.T) {
	eng := &fakeEngine{poses: 1}
	svc, err := NewService(baseConfig(t, eng))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Run(context.Background(), ModeExtractOnly); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, call := range eng.calls {
		if call == "prepare:fake1.site1" || call == "execute:fake1.site1" {
			t.Fatalf("extract_only invoked %s", call)
		}
	}
	if len(eng.calls) != 1 || eng.calls[0] != "extract:fake1.site1" {
		t.Errorf("calls = %v, want only extract", eng.calls)
	}
}

func TestRunPrepareOnlySkipsFinalize(t *testing.T) {
	eng := &fakeEngine{}
	finalized := 0
	cfg := baseConfig(t, eng)
	cfg.Finalize = func(context.Context) (int, []int, error) {
		finalized++
		return 0, []int{1}, nil
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}
	report, err := svc.Run(context.Background(), ModePrepareOnly)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if finalized != 0 {
		t.Errorf("finalizer invoked %d times in prepare_only", finalized)
	}
	if got := report.Pairs[0].State; got != StatePrepared {
		t.Errorf("pair state = %q, want %q", got, StatePrepared)
	}
	if len(eng.calls) != 1 || eng.calls[0] != "prepare:fake1.site1" {
		t.Errorf("calls = %v, want only prepare", eng.calls)
	}
}

func TestRunPairFailureContinuesLoop(t *testing.T) {
	failing := &fakeEngine{executeErr: errors.New("docking crashed")}
	healthy := &fakeEngine{poses: 2}

	finalized := 0
	cfg := baseConfig(t, nil)
	cfg.Instances = []Instance{
		{Name: "bad", Program: "fake"},
		{Name: "good", Program: "fake"},
	}
	cfg.Engines = func(inst Instance) (Engine, error) {
		if inst.Name == "bad" {
			return failing, nil
		}
		return healthy, nil
	}
	cfg.Finalize = func(context.Context) (int, []int, error) {
		finalized++
		return 2, []int{1, 3}, nil
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}
	report, err := svc.Run(context.Background(), ModeExecute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if finalized != 1 {
		t.Errorf("finalizer invoked %d times, want 1", finalized)
	}
	if len(report.Pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(report.Pairs))
	}
	if report.Pairs[0].State != StateFailed || report.Pairs[0].Err == nil {
		t.Errorf("failing pair = %+v", report.Pairs[0])
	}
	if apperrors.IsFatal(report.Pairs[0].Err) {
		t.Errorf("per-pair engine failure marked fatal: %v", report.Pairs[0].Err)
	}
	if report.Pairs[1].State != StateCompleted || report.Pairs[1].Poses != 2 {
		t.Errorf("healthy pair = %+v", report.Pairs[1])
	}
	if failed := report.Failed(); len(failed) != 1 || failed[0].Instance != "bad" {
		t.Errorf("Failed() = %+v", failed)
	}
}

func TestRunUnknownProgramAbortsBeforeAnyCall(t *testing.T) {
	eng := &fakeEngine{}
	cfg := baseConfig(t, nil)
	cfg.Instances = []Instance{
		{Name: "ok", Program: "fake"},
		{Name: "mystery", Program: "nonexistent"},
	}
	cfg.Engines = func(inst Instance) (Engine, error) {
		if inst.Program != "fake" {
			return nil, apperrors.UnknownEngine(inst.Program)
		}
		return eng, nil
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Run(context.Background(), ModeExecute); err == nil {
		t.Fatal("expected unknown engine error")
	} else if !apperrors.IsFatal(err) {
		t.Errorf("unknown engine error not fatal: %v", err)
	}
	if len(eng.calls) != 0 {
		t.Errorf("engine invoked despite unresolved sibling: %v", eng.calls)
	}
}

func TestRunCleanupErrorIsNotFatal(t *testing.T) {
	eng := &fakeEngine{poses: 1, cleanupErr: errors.New("file busy")}
	cfg := baseConfig(t, eng)
	cfg.Cleanup = true

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}
	report, err := svc.Run(context.Background(), ModeExecute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := report.Pairs[0]; got.State != StateCompleted {
		t.Errorf("pair failed on cleanup error: %+v", got)
	}
}

func TestRunFinalizeErrorAborts(t *testing.T) {
	cfg := baseConfig(t, &fakeEngine{poses: 1})
	cfg.Finalize = func(context.Context) (int, []int, error) {
		return 0, nil, apperrors.Consolidation("copy pose", errors.New("disk full"))
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Run(context.Background(), ModeExecute); err == nil {
		t.Fatal("expected consolidation error")
	} else if !apperrors.IsFatal(err) {
		t.Errorf("consolidation error not fatal: %v", err)
	}
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	var events []*cloudevent.CloudEvent
	cfg := baseConfig(t, &fakeEngine{poses: 2})
	cfg.Finalize = func(context.Context) (int, []int, error) { return 2, []int{1, 3}, nil }
	cfg.Events = NewEventBuilder("lig", "rundock")
	cfg.Notify = func(e *cloudevent.CloudEvent) { events = append(events, e) }

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Run(context.Background(), ModeExecute); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{EventTypePairStart, EventTypePairExit, EventTypeRunComplete}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d type = %q, want %q", i, e.Type, want[i])
		}
	}
	if got := events[1].Data["nposes"]; got != 2 {
		t.Errorf("pair.exit nposes = %v, want 2", got)
	}
}

func TestWorkDirNaming(t *testing.T) {
	inst := Instance{Name: "glide1", Program: "glide"}

	if got := inst.WorkDir(BindingSite{}); got != "glide1" {
		t.Errorf("unlabeled site dir = %q, want %q", got, "glide1")
	}
	if got := inst.WorkDir(BindingSite{Label: "pocketA"}); got != "glide1.pocketA" {
		t.Errorf("labeled site dir = %q, want %q", got, "glide1.pocketA")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		prepare, extract bool
		want             Mode
	}{
		{false, false, ModeExecute},
		{true, false, ModePrepareOnly},
		{false, true, ModeExtractOnly},
		{true, true, ModePrepareOnly},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("prepare=%v extract=%v", tt.prepare, tt.extract)
		if got := ParseMode(tt.prepare, tt.extract); got != tt.want {
			t.Errorf("%s: got %q, want %q", name, got, tt.want)
		}
	}
}

func TestParseExtractPolicy(t *testing.T) {
	if p, err := ParseExtractPolicy("Lowest"); err != nil || p != ExtractLowest {
		t.Errorf("ParseExtractPolicy(Lowest) = %q, %v", p, err)
	}
	if p, err := ParseExtractPolicy("all"); err != nil || p != ExtractAll {
		t.Errorf("ParseExtractPolicy(all) = %q, %v", p, err)
	}
	if _, err := ParseExtractPolicy("best"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
