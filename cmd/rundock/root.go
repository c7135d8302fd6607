package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rundock/internal/apperrors"
	"rundock/internal/config"
	"rundock/internal/dispatcher"
	"rundock/internal/dock"
	"rundock/internal/engine"
	"rundock/internal/finalize"
	"rundock/internal/observability"
	"rundock/internal/preflight"
	"rundock/internal/runner"
	"rundock/pkg/cloudevent"
)

type options struct {
	receptor   string
	ligand     string
	configFile string
	baseDir    string
	outDir     string

	prepareOnly  bool
	extractOnly  bool
	rescoreOnly  bool
	check        bool
	serveMetrics bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "rundock",
		Short: "Run every configured docking engine against every binding site",
		Long: `rundock takes one receptor/ligand pair through a configured ensemble of
docking engine instances and binding sites, then consolidates the extracted
poses into a single globally indexed output directory with a manifest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.receptor, "receptor", "r", "", "receptor structure file (PDB)")
	flags.StringVarP(&opts.ligand, "ligand", "l", "", "ligand structure file (MOL2)")
	flags.StringVarP(&opts.configFile, "config", "f", "", "run configuration file (YAML)")
	flags.StringVarP(&opts.baseDir, "dir", "d", ".", "base directory for pair working directories")
	flags.StringVarP(&opts.outDir, "output", "o", "poses", "consolidated output directory")
	flags.BoolVar(&opts.prepareOnly, "prepare-only", false, "generate engine inputs without executing")
	flags.BoolVar(&opts.extractOnly, "extract-only", false, "re-extract poses from existing native output")
	flags.BoolVar(&opts.rescoreOnly, "rescore-only", false, "skip docking, inspect an existing consolidated run")
	flags.BoolVar(&opts.check, "check", false, "run preflight checks and exit")
	flags.BoolVar(&opts.serveMetrics, "metrics", false, "serve Prometheus metrics for the duration of the run")
	cmd.MarkFlagRequired("config")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	settings := config.LoadSettings()
	setupLogging(settings)

	if opts.prepareOnly && opts.extractOnly || opts.rescoreOnly && (opts.prepareOnly || opts.extractOnly) {
		return apperrors.Configuration("mode", "prepare-only, extract-only and rescore-only are mutually exclusive")
	}
	outDir := opts.outDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(opts.baseDir, outDir)
	}

	cfg, err := config.LoadRun(opts.configFile)
	if err != nil {
		return err
	}

	if opts.rescoreOnly {
		return inspectRun(outDir)
	}
	if opts.receptor == "" || opts.ligand == "" {
		return apperrors.Configuration("inputs", "receptor (-r) and ligand (-l) are required")
	}

	var metrics *observability.Metrics
	if opts.serveMetrics {
		m, handler, err := observability.NewMetrics(ctx)
		if err != nil {
			return err
		}
		metrics = m
		stopMetrics := serveMetrics(settings.MetricsPort, handler)
		defer stopMetrics()
	}

	scriptRunner, closeRunner, err := buildRunner(cfg, settings)
	if err != nil {
		return err
	}
	defer closeRunner()

	engines := engine.Factory(scriptRunner, dock.Passthrough{})
	mode := dock.ParseMode(opts.prepareOnly, opts.extractOnly)

	// Runner readiness only matters when engines actually get invoked.
	var readiness preflight.ReadinessChecker
	if mode == dock.ModeExecute {
		readiness = scriptRunner
	}
	checker := preflight.NewChecker(opts.receptor, opts.ligand, cfg.Instances, engines, readiness)
	resp := checker.Run(ctx)
	if opts.check {
		return printChecks(resp)
	}
	if err := resp.Err(); err != nil {
		return err
	}

	notify, drain := buildNotifier(cfg, settings, metrics)
	defer drain()

	svc, err := dock.NewService(dock.Config{
		Sites:     cfg.Sites,
		Instances: cfg.Instances,
		Receptor:  opts.receptor,
		Ligand:    opts.ligand,
		BaseDir:   opts.baseDir,
		Policy:    cfg.Policy(),
		Minimize:  cfg.Docking.Minimize,
		Cleanup:   cfg.Docking.Cleanup,
		Engines:   engines,
		Finalize: func(context.Context) (int, []int, error) {
			m, err := finalize.Run(finalize.Request{
				Sites:     cfg.Sites,
				Instances: cfg.Instances,
				BaseDir:   opts.baseDir,
				OutDir:    outDir,
				Receptor:  opts.receptor,
			})
			if err != nil {
				return 0, nil, err
			}
			return m.TotalPoses(), m.Shifts, nil
		},
		Metrics: metrics,
		Notify:  notify,
		Events:  dock.NewEventBuilder(runSubject(opts.ligand), "rundock"),
	})
	if err != nil {
		return err
	}

	report, err := svc.Run(ctx, mode)
	if err != nil {
		return err
	}

	for _, pair := range report.Failed() {
		slog.Warn("Pair did not complete", "pair", pair.String(), "error", pair.Err)
	}
	if mode != dock.ModePrepareOnly {
		slog.Info("Consolidated output written", "dir", outDir, "poses", report.Poses)
	}
	return nil
}

// inspectRun loads an existing consolidated run and summarizes it. Rescoring
// itself happens outside this tool; this validates the manifest it consumes.
func inspectRun(outDir string) error {
	m, err := finalize.Load(filepath.Join(outDir, finalize.ManifestFile))
	if err != nil {
		return apperrors.Consolidation("load manifest", err)
	}
	slog.Info("Consolidated run loaded",
		"dir", outDir,
		"poses", m.TotalPoses(),
		"groups", len(m.Rows),
		"sites", len(m.Shifts)-1,
	)
	for _, row := range m.Rows {
		slog.Info("Manifest group",
			"instance", row.Program,
			"site", row.Site,
			"nposes", row.NPoses,
			"firstidx", row.FirstIdx,
		)
	}
	return nil
}

func setupLogging(settings *config.Settings) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if settings.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildRunner creates the script runner the configuration asks for and a
// release function for it.
func buildRunner(cfg *config.RunConfig, settings *config.Settings) (runner.Runner, func(), error) {
	switch cfg.Runner.Type {
	case config.RunnerDocker:
		timeout := cfg.Runner.Timeout
		if timeout <= 0 {
			timeout = settings.DockTimeout
		}
		d, err := runner.NewDocker(runner.DockerConfig{
			Image:   cfg.Runner.Image,
			Timeout: timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, func() {
			if err := d.Close(); err != nil {
				slog.Warn("Docker client close failed", "error", err)
			}
		}, nil
	default:
		local := runner.NewLocal()
		if cfg.Runner.Shell != "" {
			local.Shell = cfg.Runner.Shell
		}
		return local, func() {}, nil
	}
}

// buildNotifier wires the callback dispatcher when a notify block is
// configured. The returned drain function delivers queued events before exit.
func buildNotifier(cfg *config.RunConfig, settings *config.Settings, metrics *observability.Metrics) (dock.NotifyFunc, func()) {
	if cfg.Notify == nil {
		return nil, func() {}
	}

	var recorder dispatcher.MetricsRecorder
	if metrics != nil {
		recorder = metrics
	}
	d := dispatcher.NewMemory(dispatcher.LoadConfigFromEnv(), recorder)

	key := settings.CallbackKey
	if key == "" {
		key = cfg.Notify.Key
	}
	notify := func(e *cloudevent.CloudEvent) {
		if !dock.FilteredEvents(e.Type, cfg.Notify.Events) {
			return
		}
		if err := d.Dispatch(&dispatcher.Event{
			Payload:     e,
			Destination: cfg.Notify.URL,
			SigningKey:  key,
		}); err != nil {
			slog.Warn("Event dropped", "type", e.Type, "error", err)
		}
	}
	drain := func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.Close(drainCtx); err != nil {
			slog.Warn("Dispatcher shutdown error", "error", err)
		}
		stats := d.Stats()
		slog.Debug("Dispatcher stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}
	return notify, drain
}

func serveMetrics(port string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting metrics server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics server shutdown error", "error", err)
		}
	}
}

func printChecks(resp *preflight.Response) error {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if resp.Status != preflight.StatusHealthy {
		return fmt.Errorf("preflight failed")
	}
	return nil
}

// runSubject derives the event subject from the ligand file base name.
func runSubject(ligand string) string {
	base := filepath.Base(ligand)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
