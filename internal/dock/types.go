package dock

import (
	"fmt"
	"strings"
)

// Mode selects how far each (instance, site) pair is taken.
type Mode string

const (
	// ModePrepareOnly generates engine scripts and inputs without invoking
	// any external process. No consolidation afterwards.
	ModePrepareOnly Mode = "prepare_only"

	// ModeExecute runs the full pair: prepare, invoke the engine, extract.
	ModeExecute Mode = "execute"

	// ModeExtractOnly re-extracts poses from native output already on disk,
	// skipping invocation. Used to recover partial runs or for debugging.
	ModeExtractOnly Mode = "extract_only"
)

// ExtractPolicy selects which native poses survive extraction.
type ExtractPolicy string

const (
	// ExtractLowest keeps only the best-ranked pose.
	ExtractLowest ExtractPolicy = "lowest"

	// ExtractAll keeps every pose, renumbered 1..K with native gaps collapsed.
	ExtractAll ExtractPolicy = "all"
)

// BindingSite is one candidate region on the receptor. Sites are immutable
// once loaded and addressed by 1-based declaration order. The geometry is
// passed through to engine adapters untouched.
type BindingSite struct {
	Label  string     `yaml:"label"`
	Center [3]float64 `yaml:"center"`
	Size   [3]float64 `yaml:"size"`
}

// Instance is one configured (engine program, options) pairing, replayed
// against every binding site in the set.
type Instance struct {
	Name    string            `yaml:"name"`
	Program string            `yaml:"program"`
	Options map[string]string `yaml:"options"`
}

// WorkDir returns the working directory name for this instance against the
// given site: the instance name, suffixed with "." and the site label when
// the label is non-empty.
func (i Instance) WorkDir(site BindingSite) string {
	if site.Label == "" {
		return i.Name
	}
	return i.Name + "." + site.Label
}

// RunInput carries the per-pair inputs handed to an engine adapter. The
// receptor and ligand paths are already validated and preprocessed by the
// caller; adapters treat them as opaque structure files.
type RunInput struct {
	Receptor string
	Ligand   string
	Site     BindingSite
	Policy   ExtractPolicy
	Minimize bool
}

// Pair state constants.
const (
	StateCompleted = "completed"
	StateFailed    = "failed"
	StatePrepared  = "prepared"
)

// PairResult records the outcome of one (instance, site) pair.
type PairResult struct {
	Instance string
	Site     string
	Program  string
	State    string
	Poses    int
	Err      error
}

// String renders a compact pair identifier for logs.
func (p PairResult) String() string {
	if p.Site == "" {
		return p.Instance
	}
	return p.Instance + "." + p.Site
}

// ParseMode converts flag-level mode selectors into a Mode.
func ParseMode(prepareOnly, extractOnly bool) Mode {
	switch {
	case prepareOnly:
		return ModePrepareOnly
	case extractOnly:
		return ModeExtractOnly
	default:
		return ModeExecute
	}
}

// ParseExtractPolicy validates a policy string from configuration.
func ParseExtractPolicy(s string) (ExtractPolicy, error) {
	switch ExtractPolicy(strings.ToLower(s)) {
	case ExtractLowest:
		return ExtractLowest, nil
	case ExtractAll:
		return ExtractAll, nil
	default:
		return "", fmt.Errorf("unknown extraction policy %q (want %q or %q)", s, ExtractLowest, ExtractAll)
	}
}
