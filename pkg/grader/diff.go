package grader

import (
	"strings"

	"github.com/coderena/validator/pkg/patch"
)

// unifiedDiffForPatch converts p into the combined unified diff the
// grading harness applies, per spec.md §4.5 steps 1-3: changed files whose
// path contains "test" are stripped (submissions may not alter tests),
// then each remaining file is rendered as a 3-line-context unified diff
// and concatenated.
func unifiedDiffForPatch(p patch.Patch, snapshot map[string]string) (string, error) {
	changed := p.ChangedFiles(snapshot)

	var b strings.Builder
	for _, cf := range changed {
		if strings.Contains(cf.File, "test") {
			continue
		}
		diff, err := patch.UnifiedDiff(cf.File, cf.OldContent, cf.NewContent, contextLines)
		if err != nil {
			return "", err
		}
		b.WriteString(diff)
	}
	return b.String(), nil
}
