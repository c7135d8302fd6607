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

// Vina adapts AutoDock Vina. The run script converts receptor and ligand to
// PDBQT with the AutoDockTools prepare scripts, then docks against the box
// described by the site geometry. All poses land in a single multi-MODEL
// output file, best score first, with no sentinel frames.
type Vina struct {
	scriptEngine
}

// NewVina creates the vina adapter.
func NewVina(options map[string]string, r runner.Runner, b dock.CommandBuilder) *Vina {
	return &Vina{
		scriptEngine: scriptEngine{
			program: ProgramVina,
			options: options,
			runner:  r,
			builder: b,
		},
	}
}

// Prepare writes the vina config and the run script.
func (v *Vina) Prepare(_ context.Context, dir string, in dock.RunInput) error {
	conf := fmt.Sprintf(`receptor = target.pdbqt
ligand = lig.pdbqt
center_x = %s
center_y = %s
center_z = %s
size_x = %s
size_y = %s
size_z = %s
num_modes = %s
energy_range = %s
cpu = %s
`,
		formatFloat(in.Site.Center[0]),
		formatFloat(in.Site.Center[1]),
		formatFloat(in.Site.Center[2]),
		formatFloat(in.Site.Size[0]),
		formatFloat(in.Site.Size[1]),
		formatFloat(in.Site.Size[2]),
		v.opt("num_modes", "9"),
		v.opt("energy_range", "3"),
		v.opt("cpu", "1"),
	)
	if err := writeFile(dir, "vina.in", conf); err != nil {
		return err
	}

	script := fmt.Sprintf(`#!/bin/bash

# (A) Prepare receptor
%s

# (B) Prepare ligand
%s

# (C) Perform docking
%s
`,
		v.eval(fmt.Sprintf("prepare_receptor4.py -r %s -o target.pdbqt", in.Receptor)),
		v.eval(fmt.Sprintf("prepare_ligand4.py -l %s -o lig.pdbqt", in.Ligand)),
		v.eval("vina --config vina.in --out lig_out.pdbqt --log vina.log"),
	)
	return writeFile(dir, v.scriptName(), script)
}

// Extract splits lig_out.pdbqt into standardized poses. Vina writes models
// best-score-first, so policy lowest keeps MODEL 1 only. Scores come from
// the REMARK VINA RESULT line inside each model.
func (v *Vina) Extract(_ context.Context, dir string, in dock.RunInput) (int, error) {
	file, err := os.Open(filepath.Join(dir, "lig_out.pdbqt"))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var poses []string
	var scores []string
	var current strings.Builder
	inModel := false

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MODEL"):
			inModel = true
			current.Reset()
			current.WriteString(line + "\n")
		case strings.HasPrefix(line, "ENDMDL"):
			if !inModel {
				return 0, fmt.Errorf("lig_out.pdbqt: ENDMDL without MODEL")
			}
			current.WriteString(line + "\n")
			poses = append(poses, current.String())
			inModel = false
		case inModel:
			current.WriteString(line + "\n")
			if strings.HasPrefix(line, "REMARK VINA RESULT:") {
				fields := strings.Fields(line)
				if len(fields) < 4 {
					return 0, fmt.Errorf("lig_out.pdbqt: malformed result line %q", line)
				}
				scores = append(scores, fields[3])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if len(poses) == 0 {
		return 0, fmt.Errorf("lig_out.pdbqt: no MODEL records")
	}

	if in.Policy == dock.ExtractLowest {
		poses = poses[:1]
	}
	return writePoses(dir, poses, scores)
}

// Cleanup removes the native PDBQT artifacts.
func (v *Vina) Cleanup(dir string) error {
	for _, pattern := range []string{"lig_out.pdbqt", "target.pdbqt", "lig.pdbqt"} {
		if err := removeGlob(dir, pattern); err != nil {
			return err
		}
	}
	return nil
}

var _ dock.Engine = (*Vina)(nil)
