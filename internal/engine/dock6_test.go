package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rundock/internal/dock"
)

const dock6Output = `##########    Grid_Score:    -42.18
@<TRIPOS>MOLECULE
lig_1
@<TRIPOS>ATOM
1 C 0.0 0.0 0.0
##########    Grid_Score:    -39.55
@<TRIPOS>MOLECULE
lig_2
@<TRIPOS>ATOM
1 C 1.0 1.0 1.0
`

func TestDock6_Prepare(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	d := NewDock6(map[string]string{"nposes": "50"}, &fakeRunner{}, dock.Passthrough{})

	in := dock.RunInput{
		Receptor: "/in/rec.pdb",
		Ligand:   "/in/lig.mol2",
		Site: dock.BindingSite{
			Center: [3]float64{1.5, 2.5, 3.5},
			Size:   [3]float64{20, 20, 20},
		},
	}
	if err := d.Prepare(context.Background(), dir, in); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	boxIn, err := os.ReadFile(filepath.Join(dir, "box.in"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(boxIn), "1.5 2.5 3.5") {
		t.Errorf("box.in missing site center:\n%s", boxIn)
	}

	gridIn, err := os.ReadFile(filepath.Join(dir, "grid.in"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(gridIn), "box_file box.pdb") {
		t.Errorf("grid.in missing box reference:\n%s", gridIn)
	}

	dockIn, err := os.ReadFile(filepath.Join(dir, "dock.in"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(dockIn), "num_scored_conformers 50") {
		t.Errorf("dock.in missing option override:\n%s", dockIn)
	}
}

func TestDock6_Extract_All(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dock_out_scored.mol2"), []byte(dock6Output), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDock6(nil, &fakeRunner{}, dock.Passthrough{})
	n, err := d.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractAll})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Extract() = %d poses, want 2", n)
	}

	pose2, err := os.ReadFile(filepath.Join(dir, dock.PoseFile(2)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(pose2), "@<TRIPOS>MOLECULE") || !strings.Contains(string(pose2), "lig_2") {
		t.Errorf("pose 2 should be the second mol2 record:\n%s", pose2)
	}
	if strings.Contains(string(pose2), "Grid_Score") {
		t.Error("score comment lines must not leak into pose files")
	}

	scores, err := os.ReadFile(filepath.Join(dir, dock.ScoreFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(scores) != "-42.18\n-39.55\n" {
		t.Errorf("unexpected scores: %q", scores)
	}
}

func TestDock6_Extract_Lowest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dock_out_scored.mol2"), []byte(dock6Output), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDock6(nil, &fakeRunner{}, dock.Passthrough{})
	n, err := d.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractLowest})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Extract() = %d poses, want 1", n)
	}
}

func TestDock6_Extract_NoNativeOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	d := NewDock6(nil, &fakeRunner{}, dock.Passthrough{})
	n, err := d.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractAll})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Extract() = %d poses, want 0", n)
	}
}

func TestDock6_Extract_Malformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dock_out_scored.mol2"), []byte("not a mol2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDock6(nil, &fakeRunner{}, dock.Passthrough{})
	if _, err := d.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractAll}); err == nil {
		t.Fatal("expected error for output without molecule records")
	}
}
