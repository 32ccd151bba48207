package tracking

import (
	"github.com/aymanbagabas/go-udiff"
)

// DefaultSimilarityThreshold is the dedup cutoff from spec.md §4.3/§8:
// bundles whose canonical JSON serializations have a similarity ratio
// above this value are treated as the same submission.
const DefaultSimilarityThreshold = 0.90

// Similar reports whether a and b's canonical serializations are similar
// enough to be treated as the same submission. Exact hash equality is
// checked first as a fast path; otherwise a diff-ratio derived from
// go-udiff's edit script is compared against threshold, matching the
// teacher's only other go-udiff consumer, pkg/tui/components/tool/diff.go.
func Similar(a, b Bundle, threshold float64) (bool, error) {
	canonA, err := Canonical(a)
	if err != nil {
		return false, err
	}
	canonB, err := Canonical(b)
	if err != nil {
		return false, err
	}
	if canonA == canonB {
		return true, nil
	}
	return similarityRatio(canonA, canonB) > threshold, nil
}

// similarityRatio derives a 0..1 similarity from go-udiff's edit script: 1
// minus the fraction of the two texts' combined length, in bytes, that the
// edit script touches (inserted or deleted). Two identical texts score 1;
// two texts sharing no content score 0.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}

	edits := udiff.Strings(a, b)
	if len(edits) == 0 {
		return 1
	}

	changed := 0
	for _, e := range edits {
		changed += len(e.New) + (e.End - e.Start)
	}

	total := len(a) + len(b)
	if total == 0 {
		return 1
	}

	ratio := 1 - float64(changed)/float64(total)
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}
