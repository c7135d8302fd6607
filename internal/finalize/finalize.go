// Package finalize consolidates per-pair pose files into a single globally
// indexed output directory with a run manifest. The output directory is
// rebuilt from scratch on every call, so rerunning consolidation over the
// same work directories always produces an identical result.
package finalize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"rundock/internal/apperrors"
	"rundock/internal/dock"
)

// Request describes one consolidation pass over a run's work directories.
type Request struct {
	// Sites and Instances in declaration order; iteration is sites outer,
	// instances inner, matching the order work directories were produced.
	Sites     []dock.BindingSite
	Instances []dock.Instance

	// BaseDir is the run root containing the per-pair work directories.
	BaseDir string

	// OutDir is the unified output directory. It is removed and recreated.
	OutDir string

	// Receptor is the path of the receptor file to copy alongside the poses.
	Receptor string
}

// Run gathers every local pose file into Request.OutDir under a continuous
// global numbering and writes the manifest and receptor copy. Groups with no
// poses still get a manifest row with a zero count. A work directory that
// does not exist contributes nothing; any other filesystem failure aborts.
func Run(req Request) (*Manifest, error) {
	if err := os.RemoveAll(req.OutDir); err != nil {
		return nil, apperrors.Consolidation("reset output directory", err)
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, apperrors.Consolidation("create output directory", err)
	}

	cursor := 1
	shifts := []int{1}
	var rows []Row

	for _, site := range req.Sites {
		for _, inst := range req.Instances {
			dir := filepath.Join(req.BaseDir, inst.WorkDir(site))

			indices, err := localPoseIndices(dir)
			if err != nil {
				return nil, apperrors.Consolidation(fmt.Sprintf("list poses in %s", dir), err)
			}

			first := cursor
			for _, local := range indices {
				src := filepath.Join(dir, dock.PoseFile(local))
				dst := filepath.Join(req.OutDir, dock.PoseFile(cursor))
				if err := copyFile(src, dst); err != nil {
					return nil, apperrors.Consolidation(fmt.Sprintf("copy pose %s", src), err)
				}
				cursor++
			}

			rows = append(rows, Row{
				Program:  inst.Name,
				NPoses:   len(indices),
				FirstIdx: first,
				Site:     site.Label,
			})
		}
		shifts = append(shifts, cursor)
	}

	m := &Manifest{Shifts: shifts, Rows: rows}
	if err := m.WriteFile(filepath.Join(req.OutDir, ManifestFile)); err != nil {
		return nil, apperrors.Consolidation("write manifest", err)
	}
	if err := copyFile(req.Receptor, filepath.Join(req.OutDir, ReceptorFile)); err != nil {
		return nil, apperrors.Consolidation("copy receptor", err)
	}
	return m, nil
}

// localPoseIndices returns the numeric indices of the pose files in dir,
// sorted ascending. Sorting is numeric: lig-10 follows lig-9.
func localPoseIndices(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var indices []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if idx, ok := dock.PoseIndex(e.Name()); ok {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
