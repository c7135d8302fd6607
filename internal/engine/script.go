package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"rundock/internal/dock"
	"rundock/internal/runner"
)

// scriptEngine carries what every adapter shares: the program identifier,
// instance options, the injected command runner, and the command builder
// that applies license gating.
type scriptEngine struct {
	program string
	options map[string]string
	runner  runner.Runner
	builder dock.CommandBuilder
}

func (e *scriptEngine) Program() string { return e.program }

// scriptName is the generated run script for this adapter.
func (e *scriptEngine) scriptName() string {
	return "run_" + e.program + ".sh"
}

// Execute invokes the generated script through the injected runner and
// blocks until the external engine exits.
func (e *scriptEngine) Execute(ctx context.Context, dir string, _ dock.RunInput) error {
	return e.runner.Run(ctx, dir, e.scriptName())
}

// opt returns an instance option with a default.
func (e *scriptEngine) opt(key, def string) string {
	if v, ok := e.options[key]; ok && v != "" {
		return v
	}
	return def
}

// eval builds a ready-to-run command line for an external tool.
func (e *scriptEngine) eval(line string) string {
	if e.builder == nil {
		return line
	}
	return e.builder.Eval(line, e.program)
}

// writeFile writes a generated input or script into the pair directory.
func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o755)
}

// writePoses writes extracted pose blocks as lig-1..lig-K plus the parallel
// score file, returning K. Scores beyond the pose count are dropped; missing
// trailing scores leave shorter score files rather than failing extraction.
func writePoses(dir string, poses []string, scores []string) (int, error) {
	for k, content := range poses {
		if err := writeFile(dir, dock.PoseFile(k+1), content); err != nil {
			return 0, err
		}
	}
	if len(scores) > len(poses) {
		scores = scores[:len(poses)]
	}
	if len(scores) > 0 {
		content := strings.Join(scores, "\n") + "\n"
		if err := writeFile(dir, dock.ScoreFile, content); err != nil {
			return 0, err
		}
	}
	return len(poses), nil
}

// globIndexed lists files matching prefix<N>suffix in dir and returns their
// native indices in ascending numeric order.
func globIndexed(dir, prefix, suffix string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var idxs []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		idx, err := strconv.Atoi(mid)
		if err != nil {
			continue
		}
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	return idxs, nil
}

// removeGlob deletes native intermediates matching the pattern inside dir.
func removeGlob(dir, pattern string) error {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return err
		}
	}
	return nil
}

// formatFloat renders one coordinate the way engine input decks expect.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatTriplet renders xyz values the way engine input decks expect.
func formatTriplet(v [3]float64, sep string) string {
	parts := make([]string, 3)
	for i, x := range v {
		parts[i] = formatFloat(x)
	}
	return strings.Join(parts, sep)
}
