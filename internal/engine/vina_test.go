package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rundock/internal/dock"
)

const vinaOutput = `MODEL 1
REMARK VINA RESULT:    -9.3      0.000      0.000
ATOM      1  C   LIG
ENDMDL
MODEL 2
REMARK VINA RESULT:    -8.7      1.902      2.433
ATOM      1  C   LIG
ENDMDL
MODEL 3
REMARK VINA RESULT:    -8.1      2.511      3.910
ATOM      1  C   LIG
ENDMDL
`

func TestVina_Prepare(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	v := NewVina(map[string]string{"num_modes": "20"}, &fakeRunner{}, dock.Passthrough{})

	in := dock.RunInput{
		Receptor: "/in/rec.pdb",
		Ligand:   "/in/lig.mol2",
		Site: dock.BindingSite{
			Center: [3]float64{0, 0, -5},
			Size:   [3]float64{25, 25, 25},
		},
	}
	if err := v.Prepare(context.Background(), dir, in); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	conf, err := os.ReadFile(filepath.Join(dir, "vina.in"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"center_z = -5", "size_x = 25", "num_modes = 20"} {
		if !strings.Contains(string(conf), want) {
			t.Errorf("vina.in missing %q:\n%s", want, conf)
		}
	}

	script, err := os.ReadFile(filepath.Join(dir, "run_vina.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(script), "vina --config vina.in --out lig_out.pdbqt") {
		t.Errorf("script missing docking command:\n%s", script)
	}
}

func TestVina_Extract_All(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lig_out.pdbqt"), []byte(vinaOutput), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewVina(nil, &fakeRunner{}, dock.Passthrough{})
	n, err := v.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractAll})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Extract() = %d poses, want 3", n)
	}

	pose1, err := os.ReadFile(filepath.Join(dir, dock.PoseFile(1)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(pose1), "MODEL 1") || !strings.Contains(string(pose1), "ENDMDL") {
		t.Errorf("pose 1 should be a complete model block:\n%s", pose1)
	}

	scores, err := os.ReadFile(filepath.Join(dir, dock.ScoreFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(scores) != "-9.3\n-8.7\n-8.1\n" {
		t.Errorf("unexpected scores: %q", scores)
	}
}

func TestVina_Extract_Lowest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lig_out.pdbqt"), []byte(vinaOutput), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewVina(nil, &fakeRunner{}, dock.Passthrough{})
	n, err := v.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractLowest})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Extract() = %d poses, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, dock.PoseFile(2))); err == nil {
		t.Error("policy lowest must keep only the best pose")
	}
}

func TestVina_Extract_NoNativeOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	v := NewVina(nil, &fakeRunner{}, dock.Passthrough{})
	n, err := v.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractAll})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Extract() = %d poses, want 0", n)
	}
}

func TestVina_Extract_Malformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lig_out.pdbqt"), []byte("garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewVina(nil, &fakeRunner{}, dock.Passthrough{})
	if _, err := v.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractAll}); err == nil {
		t.Fatal("expected error for output without MODEL records")
	}
}

func TestVina_Cleanup_KeepsPoses(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lig_out.pdbqt"), []byte(vinaOutput), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewVina(nil, &fakeRunner{}, dock.Passthrough{})
	if _, err := v.Extract(context.Background(), dir, dock.RunInput{Policy: dock.ExtractAll}); err != nil {
		t.Fatal(err)
	}
	if err := v.Cleanup(dir); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "lig_out.pdbqt")); !os.IsNotExist(err) {
		t.Error("expected native output to be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, dock.PoseFile(3))); err != nil {
		t.Error("cleanup must keep standardized poses")
	}
}
