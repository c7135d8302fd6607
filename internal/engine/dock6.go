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

// Dock6 adapts UCSF DOCK 6. The run script generates spheres and the
// scoring grid around the site, then docks. Ranked poses come back in one
// multi-record mol2 file with Grid_Score comment lines, best first, no
// sentinel frames.
type Dock6 struct {
	scriptEngine
}

// NewDock6 creates the dock6 adapter.
func NewDock6(options map[string]string, r runner.Runner, b dock.CommandBuilder) *Dock6 {
	return &Dock6{
		scriptEngine: scriptEngine{
			program: ProgramDock6,
			options: options,
			runner:  r,
			builder: b,
		},
	}
}

// Prepare writes the dock6 input deck and the run script.
func (d *Dock6) Prepare(_ context.Context, dir string, in dock.RunInput) error {
	boxIn := fmt.Sprintf(`Y
%s
%s
box.pdb
`,
		formatTriplet(in.Site.Center, " "),
		formatTriplet(in.Site.Size, " "),
	)
	if err := writeFile(dir, "box.in", boxIn); err != nil {
		return err
	}

	gridIn := fmt.Sprintf(`compute_grids yes
grid_spacing %s
output_molecule no
bump_filter yes
energy_score yes
receptor_file %s
box_file box.pdb
score_grid_prefix grid
`,
		d.opt("grid_spacing", "0.3"),
		in.Receptor,
	)
	if err := writeFile(dir, "grid.in", gridIn); err != nil {
		return err
	}

	dockIn := fmt.Sprintf(`ligand_atom_file lig.mol2
receptor_site_file selected_spheres.sph
grid_score_grid_prefix grid
max_orientations %s
num_scored_conformers %s
scored_conformer_output_override dock_out
write_orientations no
`,
		d.opt("max_orientations", "1000"),
		d.opt("nposes", "20"),
	)
	if err := writeFile(dir, "dock.in", dockIn); err != nil {
		return err
	}

	script := fmt.Sprintf(`#!/bin/bash

# (A) Generate spheres around the site
%s
%s

# (B) Build the site box and scoring grid
%s
%s

# (C) Perform docking
%s
`,
		d.eval(fmt.Sprintf("sphgen -i %s -o rec.sph", in.Receptor)),
		d.eval("sphere_selector rec.sph box.in "+d.opt("sphere_radius", "10.0")),
		d.eval("showbox < box.in"),
		d.eval("grid -i grid.in -o grid.out"),
		d.eval("dock6 -i dock.in -o dock.out"),
	)
	return writeFile(dir, d.scriptName(), script)
}

// Extract splits dock_out_scored.mol2 into standardized poses. Records are
// delimited by @<TRIPOS>MOLECULE; the Grid Score rides in a ##########
// comment line at the top of each record.
func (d *Dock6) Extract(_ context.Context, dir string, in dock.RunInput) (int, error) {
	file, err := os.Open(filepath.Join(dir, "dock_out_scored.mol2"))
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
	started := false

	flush := func() {
		if started {
			poses = append(poses, current.String())
			current.Reset()
		}
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "@<TRIPOS>MOLECULE") {
			flush()
			started = true
		}
		if strings.HasPrefix(line, "##########") && strings.Contains(line, "Grid_Score:") {
			fields := strings.Fields(line)
			scores = append(scores, fields[len(fields)-1])
			continue // score comments stay out of the pose file
		}
		if started {
			current.WriteString(line + "\n")
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	flush()

	if len(poses) == 0 {
		return 0, fmt.Errorf("dock_out_scored.mol2: no @<TRIPOS>MOLECULE records")
	}

	if in.Policy == dock.ExtractLowest {
		poses = poses[:1]
	}
	return writePoses(dir, poses, scores)
}

// Cleanup removes the ranked native output and grid intermediates.
func (d *Dock6) Cleanup(dir string) error {
	for _, pattern := range []string{"dock_out_scored.mol2", "grid.nrg", "grid.bmp", "rec.sph", "selected_spheres.sph"} {
		if err := removeGlob(dir, pattern); err != nil {
			return err
		}
	}
	return nil
}

var _ dock.Engine = (*Dock6)(nil)
