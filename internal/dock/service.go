package dock

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rundock/internal/apperrors"
	"rundock/internal/observability"
	"rundock/pkg/cloudevent"
)

// NotifyFunc delivers a lifecycle event to the configured callback sink.
// A nil NotifyFunc disables progress notifications.
type NotifyFunc func(event *cloudevent.CloudEvent)

// FinalizeFunc consolidates all populated (instance, site) working
// directories into the unified output directory. It returns the total pose
// count and the per-site shift boundaries it wrote. Invoked exactly once per
// run, after the whole loop has finished.
type FinalizeFunc func(ctx context.Context) (poses int, shifts []int, err error)

// Config assembles everything a docking run needs. The site set, instance
// list and input paths arrive already parsed and validated by the
// configuration layer.
type Config struct {
	Sites     []BindingSite
	Instances []Instance
	Receptor  string // validated receptor file path
	Ligand    string // preprocessed ligand file path
	BaseDir   string // parent directory of per-pair working directories
	Policy    ExtractPolicy
	Minimize  bool
	Cleanup   bool

	Engines  EngineFactory
	Finalize FinalizeFunc
	Metrics  *observability.Metrics // optional
	Notify   NotifyFunc             // optional
	Events   *EventBuilder          // required when Notify is set
}

// Report summarizes a completed run.
type Report struct {
	Mode    Mode
	Pairs   []PairResult
	Poses   int
	Shifts  []int
	Elapsed time.Duration
}

// Failed returns the pairs that did not complete.
func (r *Report) Failed() []PairResult {
	var failed []PairResult
	for _, p := range r.Pairs {
		if p.State == StateFailed {
			failed = append(failed, p)
		}
	}
	return failed
}

// Service drives the site x instance orchestration loop.
//
// Execution is strictly sequential: pairs never overlap, and consolidation
// runs only after every pair has finished. The (site-order, then
// instance-order) iteration order is part of the observable contract — the
// manifest row order and shift boundaries downstream rescoring reads are
// derived from it.
type Service struct {
	cfg Config
}

// NewService validates the run configuration and creates a Service.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Sites) == 0 {
		return nil, apperrors.Configuration("sites", "at least one binding site is required")
	}
	if len(cfg.Instances) == 0 {
		return nil, apperrors.Configuration("instances", "at least one docking instance is required")
	}
	for i, inst := range cfg.Instances {
		if inst.Name == "" {
			return nil, apperrors.Configuration("instances", "instance without a name")
		}
		if inst.Program == "" {
			return nil, apperrors.Configuration("instances", "instance "+inst.Name+" without a program")
		}
		for _, other := range cfg.Instances[:i] {
			if other.Name == inst.Name {
				return nil, apperrors.Configuration("instances", "duplicate instance name "+inst.Name)
			}
		}
	}
	if cfg.Engines == nil {
		return nil, apperrors.Configuration("engines", "engine factory is required")
	}
	if cfg.Finalize == nil {
		return nil, apperrors.Configuration("finalize", "finalizer is required")
	}
	return &Service{cfg: cfg}, nil
}

// Run executes the docking loop in the given mode.
//
// Sites are iterated in declaration order, instances within each site in
// declaration order. Per-pair engine and extraction failures are recorded
// and the loop continues; configuration and consolidation failures abort
// the run. When mode is not prepare_only, the consolidator runs once after
// the loop and the end-to-end duration is reported.
func (s *Service) Run(ctx context.Context, mode Mode) (*Report, error) {
	// Resolve every adapter up-front so an unknown program identifier
	// aborts before any engine invocation.
	engines := make([]Engine, len(s.cfg.Instances))
	for i, inst := range s.cfg.Instances {
		eng, err := s.cfg.Engines(inst)
		if err != nil {
			return nil, err
		}
		engines[i] = eng
	}

	report := &Report{Mode: mode}
	start := time.Now()

	for _, site := range s.cfg.Sites {
		for i, inst := range s.cfg.Instances {
			res := s.runPair(ctx, engines[i], inst, site, mode)
			report.Pairs = append(report.Pairs, res)
		}
	}

	if mode == ModePrepareOnly {
		return report, nil
	}

	poses, shifts, err := s.cfg.Finalize(ctx)
	if err != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordRunCompleted(ctx, false, time.Since(start).Seconds())
		}
		return nil, err
	}
	report.Poses = poses
	report.Shifts = shifts
	report.Elapsed = time.Since(start)

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordRunCompleted(ctx, true, report.Elapsed.Seconds())
	}
	s.notify(s.buildEvent(func(b *EventBuilder) *cloudevent.CloudEvent {
		return b.BuildRunCompleteEvent(poses, shifts, report.Elapsed)
	}))

	slog.Info("Docking procedure done",
		"elapsed", report.Elapsed.Round(time.Second),
		"poses", poses,
		"pairs", len(report.Pairs),
		"failed", len(report.Failed()),
	)
	return report, nil
}

// runPair takes one (instance, site) pair through the phases the mode asks
// for. Failures are captured in the result, never returned: a failed pair
// must not stop the remaining pairs.
func (s *Service) runPair(ctx context.Context, eng Engine, inst Instance, site BindingSite, mode Mode) PairResult {
	res := PairResult{Instance: inst.Name, Site: site.Label, Program: inst.Program}
	logger := slog.With("instance", inst.Name, "site", site.Label, "program", inst.Program)

	dir := filepath.Join(s.cfg.BaseDir, inst.WorkDir(site))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.State = StateFailed
		res.Err = apperrors.EngineFailure(inst.Name, site.Label, inst.Program, err)
		logger.Error("Cannot create pair working directory", "dir", dir, "error", err)
		return res
	}

	in := RunInput{
		Receptor: s.cfg.Receptor,
		Ligand:   s.cfg.Ligand,
		Site:     site,
		Policy:   s.cfg.Policy,
		Minimize: s.cfg.Minimize,
	}

	if mode == ModePrepareOnly {
		if err := eng.Prepare(ctx, dir, in); err != nil {
			res.State = StateFailed
			res.Err = apperrors.EngineFailure(inst.Name, site.Label, inst.Program, err)
			logger.Error("Script preparation failed", "error", err)
			return res
		}
		res.State = StatePrepared
		logger.Info("Scripts prepared", "dir", dir)
		return res
	}

	start := time.Now()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordPairStarted(ctx, inst.Program)
	}
	s.notify(s.buildEvent(func(b *EventBuilder) *cloudevent.CloudEvent {
		return b.BuildPairStartEvent(inst, site)
	}))
	defer func() {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordPairCompleted(ctx, inst.Program, res.State == StateCompleted, res.Poses, time.Since(start).Seconds())
		}
		s.notify(s.buildEvent(func(b *EventBuilder) *cloudevent.CloudEvent {
			return b.BuildPairExitEvent(res)
		}))
	}()

	if mode == ModeExecute {
		if err := eng.Prepare(ctx, dir, in); err != nil {
			res.State = StateFailed
			res.Err = apperrors.EngineFailure(inst.Name, site.Label, inst.Program, err)
			logger.Error("Script preparation failed", "error", err)
			return res
		}
		if err := eng.Execute(ctx, dir, in); err != nil {
			res.State = StateFailed
			res.Err = apperrors.EngineFailure(inst.Name, site.Label, inst.Program, err)
			logger.Error("Engine execution failed", "error", err)
			return res
		}
	}

	nposes, err := eng.Extract(ctx, dir, in)
	if err != nil {
		res.State = StateFailed
		res.Err = apperrors.Extraction(inst.Name, site.Label, inst.Program, err)
		logger.Error("Pose extraction failed", "error", err)
		return res
	}
	res.Poses = nposes

	if s.cfg.Cleanup {
		if err := eng.Cleanup(dir); err != nil {
			// Leftover intermediates are harmless; extraction already succeeded.
			logger.Warn("Cleanup failed", "error", err)
		}
	}

	res.State = StateCompleted
	logger.Info("Pair completed", "poses", nposes, "duration", time.Since(start).Round(time.Millisecond))
	return res
}

// buildEvent constructs an event when notification is configured.
func (s *Service) buildEvent(build func(*EventBuilder) *cloudevent.CloudEvent) *cloudevent.CloudEvent {
	if s.cfg.Notify == nil || s.cfg.Events == nil {
		return nil
	}
	return build(s.cfg.Events)
}

func (s *Service) notify(event *cloudevent.CloudEvent) {
	if event == nil || s.cfg.Notify == nil {
		return
	}
	s.cfg.Notify(event)
}
