package grader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderena/validator/pkg/patch"
)

func TestUnifiedDiffForPatchStripsTestPaths(t *testing.T) {
	snapshot := map[string]string{
		"src/foo.py":          "a\nb\nc\n",
		"tests/test_foo.py":   "t1\nt2\n",
	}
	p := patch.Patch{
		{FileName: "src/foo.py", LineNumber: 1, LineContent: "b", NewLineContent: "B"},
		{FileName: "tests/test_foo.py", LineNumber: 0, LineContent: "t1", NewLineContent: "T1"},
	}

	diff, err := unifiedDiffForPatch(p, snapshot)
	require.NoError(t, err)
	assert.Contains(t, diff, "src/foo.py")
	assert.NotContains(t, diff, "tests/test_foo.py")
}

func TestUnifiedDiffForPatchEmptyWhenNoOp(t *testing.T) {
	snapshot := map[string]string{"a.py": "x\n"}
	diff, err := unifiedDiffForPatch(patch.Patch{}, snapshot)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestResolvedDetectsReport(t *testing.T) {
	assert.True(t, resolved(`some output\nswe-bench-report: {"resolved": true}\n`))
	assert.False(t, resolved(`swe-bench-report: {"resolved": false}`))
	assert.False(t, resolved("no report line at all"))
}
