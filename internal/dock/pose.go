package dock

import (
	"fmt"
	"regexp"
	"strconv"
)

// Standardized per-pair output layout. Engine adapters write these files
// during extraction; the consolidator and downstream rescoring read them.
const (
	// ScoreFile holds one score per line, parallel to the pose files.
	ScoreFile = "score.out"
)

var posePattern = regexp.MustCompile(`^lig-(\d+)\.mol2$`)

// PoseFile returns the standardized pose file name for a local or global
// index.
func PoseFile(idx int) string {
	return fmt.Sprintf("lig-%d.mol2", idx)
}

// PoseIndex parses the index out of a standardized pose file name.
// Indices are not zero-padded, so callers must sort numerically.
func PoseIndex(name string) (int, bool) {
	m := posePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return idx, true
}
