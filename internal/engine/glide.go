package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rundock/internal/dock"
	"rundock/internal/runner"
)

// Glide adapts the Schrodinger Glide suite. The run script stages the
// receptor with prepwizard, builds the grid, docks, then sorts and converts
// the pose viewer file so extraction only has to read PDB frames.
type Glide struct {
	scriptEngine

	// sentinelFrames is the number of leading native frames that are not
	// poses: glide_sort writes the receptor-only entry as frame 1, so the
	// first real pose is native frame 2.
	sentinelFrames int
}

// NewGlide creates the glide adapter.
func NewGlide(options map[string]string, r runner.Runner, b dock.CommandBuilder) *Glide {
	return &Glide{
		scriptEngine: scriptEngine{
			program: ProgramGlide,
			options: options,
			runner:  r,
			builder: b,
		},
		sentinelFrames: 1,
	}
}

// Prepare writes grid.in, dock.in and the run script. Idempotent: every
// call rewrites the same three files from the instance options and site
// geometry.
func (g *Glide) Prepare(_ context.Context, dir string, in dock.RunInput) error {
	gridCenter := formatTriplet(in.Site.Center, ", ")
	outerBox := formatTriplet(in.Site.Size, ", ")

	gridIn := fmt.Sprintf(`USECOMPMAE YES
INNERBOX %s
ACTXRANGE %s
ACTYRANGE %s
ACTZRANGE %s
GRID_CENTER %s
OUTERBOX %s
ENTRYTITLE target
GRIDFILE grid.zip
RECEP_FILE target.mae
`,
		g.opt("innerbox", "10, 10, 10"),
		formatFloat(in.Site.Size[0]),
		formatFloat(in.Site.Size[1]),
		formatFloat(in.Site.Size[2]),
		gridCenter,
		outerBox,
	)
	if err := writeFile(dir, "grid.in", gridIn); err != nil {
		return err
	}

	dockIn := fmt.Sprintf(`WRITEREPT YES
USECOMPMAE YES
DOCKING_METHOD confgen
SAMPLE_RINGS False
POSES_PER_LIG %s
POSE_RMSD %s
GRIDFILE $PWD/grid.zip
LIGANDFILE $PWD/lig.mae
PRECISION %s
`,
		g.opt("poses_per_lig", "10"),
		g.opt("pose_rmsd", "0.5"),
		g.opt("precision", "SP"),
	)
	if err := writeFile(dir, "dock.in", dockIn); err != nil {
		return err
	}

	tmpdirLine := ""
	if tmpdir := g.opt("tmpdir", ""); tmpdir != "" {
		tmpdirLine = "export SCHRODINGER_TMPDIR=" + tmpdir + "\n"
	}

	script := fmt.Sprintf(`#!/bin/bash
%s
# (A) Prepare receptor
%s

# (B) Prepare grid
%s

# (C) Convert ligand to maestro format
%s

# (D) Perform docking
%s

# (E) Sort and convert poses
%s
%s
`,
		tmpdirLine,
		g.eval(fmt.Sprintf("prepwizard -WAIT -fix %s target.mae", in.Receptor)),
		g.eval("glide -WAIT grid.in"),
		g.eval(fmt.Sprintf("structconvert %s lig.mae", in.Ligand)),
		g.eval("glide -WAIT dock.in"),
		g.eval("glide_sort -r sort.rept dock_pv.maegz -o dock_sorted.mae"),
		g.eval("pdbconvert -brief -imae dock_sorted.mae -opdb dock_sorted.pdb"),
	)
	return writeFile(dir, g.scriptName(), script)
}

// Extract standardizes dock_sorted-<N>.pdb frames. Frames up to
// sentinelFrames are skipped before local indices are assigned; gaps in the
// native numbering collapse so local indices stay contiguous.
func (g *Glide) Extract(_ context.Context, dir string, in dock.RunInput) (int, error) {
	idxs, err := globIndexed(dir, "dock_sorted-", ".pdb")
	if err != nil {
		return 0, err
	}

	var kept []int
	for _, idx := range idxs {
		if idx > g.sentinelFrames {
			kept = append(kept, idx)
		}
	}
	if len(kept) == 0 {
		return 0, nil
	}
	if in.Policy == dock.ExtractLowest {
		kept = kept[:1]
	}

	poses := make([]string, 0, len(kept))
	for _, idx := range kept {
		name := fmt.Sprintf("dock_sorted-%d.pdb", idx)
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return 0, err
		}
		model, err := trimToModel(string(content))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		poses = append(poses, model)
	}

	scores, err := g.parseScores(dir, in.Policy)
	if err != nil {
		return 0, err
	}
	return writePoses(dir, poses, scores)
}

// parseScores reads docking scores from dock.rept. The report lists one
// pose per line after the ==== separator, score in the third column.
func (g *Glide) parseScores(dir string, policy dock.ExtractPolicy) ([]string, error) {
	file, err := os.Open(filepath.Join(dir, "dock.rept"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	inTable := false
	var scores []string
	for scanner.Scan() {
		line := scanner.Text()
		if !inTable {
			if strings.HasPrefix(line, "====") {
				inTable = true
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("dock.rept: malformed score line %q", line)
		}
		scores = append(scores, fields[2])
		if policy == dock.ExtractLowest {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !inTable {
		return nil, fmt.Errorf("dock.rept: score table separator not found")
	}
	return scores, nil
}

// Cleanup removes the converted PDB frames; the standardized poses and
// score file stay.
func (g *Glide) Cleanup(dir string) error {
	return removeGlob(dir, "dock_sorted*.pdb")
}

// trimToModel returns the file content starting at its first MODEL record.
func trimToModel(content string) (string, error) {
	offset := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		if strings.HasPrefix(line, "MODEL") {
			return content[offset:], nil
		}
		offset += len(line)
	}
	return "", fmt.Errorf("no MODEL record found")
}

var _ dock.Engine = (*Glide)(nil)
