// Package config provides run configuration loading from YAML files and
// service settings from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rundock/internal/apperrors"
	"rundock/internal/dock"
)

// Runner type selectors for RunnerConfig.Type.
const (
	RunnerLocal  = "local"
	RunnerDocker = "docker"
)

// RunConfig is the parsed run configuration file: the binding site set, the
// engine instance list and the global docking options for one run.
type RunConfig struct {
	Sites     []dock.BindingSite `yaml:"sites"`
	Instances []dock.Instance    `yaml:"instances"`
	Docking   DockingOptions     `yaml:"docking"`
	Runner    RunnerConfig       `yaml:"runner"`
	Notify    *dock.Callback     `yaml:"notify,omitempty"`
}

// DockingOptions are the global options applied to every (instance, site) pair.
type DockingOptions struct {
	// Minimize requests ligand minimization before docking where the engine
	// supports it.
	Minimize bool `yaml:"minimize"`

	// Cleanup removes intermediate native artifacts after extraction.
	Cleanup bool `yaml:"cleanup"`

	// Extract selects the extraction policy: "lowest" or "all".
	Extract string `yaml:"extract"`
}

// RunnerConfig selects how engine scripts are executed.
type RunnerConfig struct {
	Type    string        `yaml:"type"`              // "local" or "docker"
	Image   string        `yaml:"image,omitempty"`   // docker only
	Shell   string        `yaml:"shell,omitempty"`   // local only
	Timeout time.Duration `yaml:"timeout,omitempty"` // docker only
}

// LoadRun reads and validates a run configuration file. Unknown keys are
// rejected so a typoed option never silently falls back to a default.
func LoadRun(path string) (*RunConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Configuration("file", fmt.Sprintf("cannot open %s: %v", path, err))
	}
	defer f.Close()

	cfg := &RunConfig{
		Docking: DockingOptions{Extract: string(dock.ExtractAll)},
		Runner:  RunnerConfig{Type: RunnerLocal},
	}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, apperrors.Configuration("file", fmt.Sprintf("cannot parse %s: %v", path, err))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *RunConfig) validate() error {
	if len(c.Sites) == 0 {
		return apperrors.Configuration("sites", "at least one binding site is required")
	}
	if len(c.Instances) == 0 {
		return apperrors.Configuration("instances", "at least one docking instance is required")
	}

	// Site labels may be empty only in the single-site case: with several
	// sites the label disambiguates working directory names.
	if len(c.Sites) > 1 {
		seen := make(map[string]bool, len(c.Sites))
		for _, s := range c.Sites {
			if s.Label == "" {
				return apperrors.Configuration("sites", "multi-site runs require a label on every site")
			}
			if seen[s.Label] {
				return apperrors.Configuration("sites", "duplicate site label "+s.Label)
			}
			seen[s.Label] = true
		}
	}

	seen := make(map[string]bool, len(c.Instances))
	for _, inst := range c.Instances {
		if inst.Name == "" {
			return apperrors.Configuration("instances", "instance without a name")
		}
		if inst.Program == "" {
			return apperrors.Configuration("instances", "instance "+inst.Name+" without a program")
		}
		if seen[inst.Name] {
			return apperrors.Configuration("instances", "duplicate instance name "+inst.Name)
		}
		seen[inst.Name] = true
	}

	if _, err := dock.ParseExtractPolicy(c.Docking.Extract); err != nil {
		return apperrors.Configuration("docking.extract", err.Error())
	}

	switch c.Runner.Type {
	case RunnerLocal:
	case RunnerDocker:
		if c.Runner.Image == "" {
			return apperrors.Configuration("runner.image", "docker runner requires an image")
		}
	default:
		return apperrors.Configuration("runner.type", fmt.Sprintf("unknown runner type %q", c.Runner.Type))
	}

	if c.Notify != nil && c.Notify.URL == "" {
		return apperrors.Configuration("notify.url", "notify block requires a url")
	}
	return nil
}

// Policy returns the validated extraction policy.
func (c *RunConfig) Policy() dock.ExtractPolicy {
	p, _ := dock.ParseExtractPolicy(c.Docking.Extract)
	return p
}

// Settings holds service-level settings loaded from environment variables.
type Settings struct {
	MetricsPort string
	LogLevel    string
	LogFormat   string        // "json" or "text"
	CallbackKey string        // overrides the key from the notify block
	DockTimeout time.Duration // per-pair docker execution timeout
}

// LoadSettings loads service settings from the environment.
func LoadSettings() *Settings {
	return &Settings{
		MetricsPort: GetEnv("RUNDOCK_METRICS_PORT", "9090"),
		LogLevel:    GetEnv("RUNDOCK_LOG_LEVEL", "info"),
		LogFormat:   GetEnv("RUNDOCK_LOG_FORMAT", "text"),
		CallbackKey: GetSecretFile(GetEnv("RUNDOCK_CALLBACK_KEY_FILE", "")),
		DockTimeout: GetDurationEnv("RUNDOCK_DOCKER_TIMEOUT", 2*time.Hour),
	}
}
