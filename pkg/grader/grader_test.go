package grader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderena/validator/pkg/patch"
	"github.com/coderena/validator/pkg/task"
)

func TestGradeEmptyPatchReturnsZeroWithoutContainer(t *testing.T) {
	g := New(nil)
	score, reason, err := g.Grade(context.Background(), patch.Patch{}, task.Task{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, "empty patch", reason)
}

func TestGradeNoOpPatchReturnsZeroWithoutContainer(t *testing.T) {
	g := New(nil)
	tk := task.Task{Snapshot: map[string]string{"a.py": "x = 1\n"}}
	p := patch.Patch{{FileName: "a.py", LineNumber: 0, LineContent: "x = 1", NewLineContent: "x = 1"}}

	score, reason, err := g.Grade(context.Background(), p, tk)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Contains(t, reason, "no-op")
}
