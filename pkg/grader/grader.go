// Package grader implements the Grader (SPEC_FULL.md §4.5): it converts a
// candidate Patch into a unified diff, applies it inside a fresh container
// from the task's evaluation image, runs the vendored grading script, and
// reduces the result to a 0/1 score.
package grader

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coderena/validator/pkg/dockerutil"
	"github.com/coderena/validator/pkg/patch"
	"github.com/coderena/validator/pkg/task"
)

// GradeTimeout bounds the in-container eval.sh run (spec.md §4.5).
const GradeTimeout = 300 * time.Second

// contextLines is the amount of unified-diff context around each hunk,
// per spec.md §4.5 step 3.
const contextLines = 3

// Grader applies a candidate Patch inside a task's evaluation image and
// scores it 0/1.
type Grader struct {
	Orchestrator *dockerutil.Orchestrator
}

func New(o *dockerutil.Orchestrator) *Grader {
	return &Grader{Orchestrator: o}
}

// Grade returns 1 if p resolves t, 0 otherwise. Any failure along the way
// (patch apply, grading timeout, runtime error) yields 0 rather than an
// error, per spec.md §4.5 step 6 — except failures to build the unified
// diff, to start the container, or to exec the eval script, which are
// returned as errors since they indicate an infrastructure problem rather
// than a bad submission.
func (g *Grader) Grade(ctx context.Context, p patch.Patch, t task.Task) (float64, string, error) {
	if p.IsEmpty() {
		return 0, "empty patch", nil
	}

	diff, err := unifiedDiffForPatch(p, t.Snapshot)
	if err != nil {
		return 0, "", fmt.Errorf("building unified diff: %w", err)
	}
	if strings.TrimSpace(diff) == "" {
		return 0, "patch is a no-op against the task snapshot", nil
	}

	name := fmt.Sprintf("swe-grade-%s", uuid.NewString())
	c, err := g.Orchestrator.Run(ctx, t.ImageName, name, nil, []string{"sleep", "infinity"}, nil)
	if err != nil {
		return 0, "", fmt.Errorf("starting grading container: %w", err)
	}
	defer g.Orchestrator.Remove(ctx, c)

	if err := g.writeContainerFile(ctx, c, "/tmp/patch.diff", diff); err != nil {
		return 0, fmt.Sprintf("failed to stage patch: %v", err), nil
	}

	if !g.applyPatch(ctx, c) {
		return 0, "patch did not apply under any strategy", nil
	}

	evalScript := t.Row["eval_script"]
	script, _ := evalScript.(string)
	if script == "" {
		script = defaultEvalScript
	}
	if err := g.writeContainerFile(ctx, c, "/tmp/eval.sh", script); err != nil {
		return 0, fmt.Sprintf("failed to stage eval script: %v", err), nil
	}

	result, err := g.Orchestrator.Exec(ctx, c, []string{"bash", "/tmp/eval.sh"}, GradeTimeout)
	if err != nil {
		return 0, "", fmt.Errorf("running eval script: %w", err)
	}
	if result.TimedOut {
		return 0, "grading timed out", nil
	}

	if resolved(result.Stdout) {
		return 1, "", nil
	}
	return 0, "tests did not resolve the issue", nil
}

// defaultEvalScript is used when a task's raw benchmark row doesn't supply
// its own eval_script field — it runs pytest in /testbed and reports
// resolved true or false from pytest's exit status, in the report format
// this grader parses (resolved()).
const defaultEvalScript = `#!/bin/bash
set -x
cd /testbed
python3 -m pytest 2>&1
echo "swe-bench-report: {\"resolved\": $([ $? -eq 0 ] && echo true || echo false)}"
`

func (g *Grader) writeContainerFile(ctx context.Context, c dockerutil.ContainerHandle, destPath, content string) error {
	dir, err := writeTempFileTree(destPath, content)
	if err != nil {
		return err
	}
	defer dir.cleanup()
	return g.Orchestrator.CopyInto(ctx, c, dir.srcPath, destPath)
}

// applyPatch tries each of the three patch-apply strategies spec.md §4.5
// step 4 lists, in order, stopping at the first that exits 0.
func (g *Grader) applyPatch(ctx context.Context, c dockerutil.ContainerHandle) bool {
	// patch(1) takes its input via shell redirection in the spec's shell
	// form; docker exec has no redirection of its own, so every strategy
	// runs through sh -c and a trailing marker echo distinguishes a
	// nonzero exit from stdout that happens to be empty.
	strategies := []string{
		"cd /testbed && git apply --verbose /tmp/patch.diff",
		"cd /testbed && git apply --verbose --reject /tmp/patch.diff",
		"cd /testbed && patch --batch --fuzz=8 -p1 -l < /tmp/patch.diff",
	}

	for _, shellCmd := range strategies {
		result, err := g.Orchestrator.Exec(ctx, c, []string{"sh", "-c", shellCmd + " || echo " + applyFailureMarker}, 30*time.Second)
		if err == nil && !result.TimedOut && !strings.Contains(result.Stdout, applyFailureMarker) {
			return true
		}
	}
	return false
}

const applyFailureMarker = "__PATCH_APPLY_FAILED__"

var resolvedNeedle = []byte(`"resolved": true`)

// resolved reports whether the harness's grading report in stdout marks
// this run as resolving the issue.
func resolved(stdout string) bool {
	return bytes.Contains([]byte(stdout), resolvedNeedle)
}
