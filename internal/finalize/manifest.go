package finalize

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Files written into the unified output directory.
const (
	// ManifestFile maps every global pose index back to its origin.
	ManifestFile = "info.dat"

	// ReceptorFile is the fixed name of the receptor copy.
	ReceptorFile = "rec.pdb"
)

// manifestHeader is the tabular column schema, consumed by rescoring.
const manifestHeader = "program,nposes,firstidx,site"

// Row is one manifest entry, one per (instance, site) pair in processing
// order. FirstIdx is the global cursor value before the group's first copy;
// it is only meaningful when NPoses > 0.
type Row struct {
	Program  string
	NPoses   int
	FirstIdx int
	Site     string
}

// Manifest is the consolidated run index. Shifts holds the global index at
// which each site's poses begin, with a leading sentinel of 1 and a final
// entry one past the last pose: len(Shifts) == number of sites + 1.
type Manifest struct {
	Shifts []int
	Rows   []Row
}

// TotalPoses returns the number of globally indexed poses.
func (m *Manifest) TotalPoses() int {
	if len(m.Shifts) == 0 {
		return 0
	}
	return m.Shifts[len(m.Shifts)-1] - 1
}

// SiteOf maps a global pose index to its 1-based site position.
func (m *Manifest) SiteOf(globalIdx int) (int, bool) {
	for k := 0; k+1 < len(m.Shifts); k++ {
		if globalIdx >= m.Shifts[k] && globalIdx < m.Shifts[k+1] {
			return k + 1, true
		}
	}
	return 0, false
}

// encode renders the manifest: one comment-marked shift line, the column
// header, then one CSV row per group.
func (m *Manifest) encode() string {
	var b strings.Builder

	shifts := make([]string, len(m.Shifts))
	for i, s := range m.Shifts {
		shifts[i] = strconv.Itoa(s)
	}
	b.WriteString("#" + strings.Join(shifts, ",") + "\n")
	b.WriteString(manifestHeader + "\n")

	for _, row := range m.Rows {
		fmt.Fprintf(&b, "%s,%d,%d,%s\n", row.Program, row.NPoses, row.FirstIdx, row.Site)
	}
	return b.String()
}

// WriteFile writes the manifest to path.
func (m *Manifest) WriteFile(path string) error {
	return os.WriteFile(path, []byte(m.encode()), 0o644)
}

// Load parses a manifest written by WriteFile. Rescoring consumers and
// recovery tooling use this to map global indices back to origin.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("%s: truncated manifest", path)
	}
	if !strings.HasPrefix(lines[0], "#") {
		return nil, fmt.Errorf("%s: missing shift line", path)
	}

	m := &Manifest{}
	for _, field := range strings.Split(strings.TrimPrefix(lines[0], "#"), ",") {
		shift, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("%s: bad shift entry %q", path, field)
		}
		m.Shifts = append(m.Shifts, shift)
	}

	if lines[1] != manifestHeader {
		return nil, fmt.Errorf("%s: unexpected header %q", path, lines[1])
	}

	for _, line := range lines[2:] {
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("%s: bad row %q", path, line)
		}
		nposes, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s: bad nposes in %q", path, line)
		}
		firstIdx, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%s: bad firstidx in %q", path, line)
		}
		m.Rows = append(m.Rows, Row{
			Program:  fields[0],
			NPoses:   nposes,
			FirstIdx: firstIdx,
			Site:     fields[3],
		})
	}
	return m, nil
}
