// Package evaluator implements the Evaluator (SPEC_FULL.md §4.4): for each
// tracker in metagraph-UID order, it runs every task through a bounded
// worker pool, launching a sandboxed container per (tracker, task) pair,
// invoking the in-container runner, parsing its patch output, and handing
// the result to the Grader.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coderena/validator/pkg/dockerutil"
	"github.com/coderena/validator/pkg/grader"
	"github.com/coderena/validator/pkg/patch"
	"github.com/coderena/validator/pkg/task"
	"github.com/coderena/validator/pkg/tracking"
)

// WorkerLimit bounds per-tracker task concurrency, spec.md §4.4/§5.
const WorkerLimit = 8

// RunnerTimeout bounds the in-container runner invocation, spec.md §4.4.
const RunnerTimeout = 600 * time.Second

// LLMProxy is the subset of the proxy's control surface the Evaluator
// drives directly (the in-container runner talks to the proxy's /call
// etc. itself; the pipeline only needs to key/unkey and reset counters).
type LLMProxy interface {
	InitKey(ctx context.Context, hotkey string) error
	Reset(ctx context.Context, hotkey string) error
}

// Evaluator grades trackers against a fixed task set.
type Evaluator struct {
	Orchestrator *dockerutil.Orchestrator
	Grader       *grader.Grader
	Proxy        LLMProxy
	Registry     *tracking.Registry

	CompetitionID int
	WorkerLimit   int
	RunnerTimeout time.Duration

	// HostIP and OpenRouterAPIKey are forwarded into each task container's
	// environment, per spec.md §4.4 step 4a.
	HostIP           string
	OpenRouterAPIKey string

	// Progress, if set, receives live start/complete notifications for
	// each tracker as Evaluate runs.
	Progress *Progress
}

func New(o *dockerutil.Orchestrator, g *grader.Grader, proxy LLMProxy, reg *tracking.Registry, competitionID int) *Evaluator {
	return &Evaluator{
		Orchestrator:  o,
		Grader:        g,
		Proxy:         proxy,
		Registry:      reg,
		CompetitionID: competitionID,
		WorkerLimit:   WorkerLimit,
		RunnerTimeout: RunnerTimeout,
	}
}

// Evaluate grades every tracker in trackers (caller-supplied, already in
// metagraph-UID order) against tasks. graded accumulates already-scored
// trackers this run, for the dedup fast path; it is updated in place as
// each tracker completes.
func (e *Evaluator) Evaluate(ctx context.Context, trackers []tracking.TrackingInfo, tasks []task.Task, currentBlock int) error {
	var graded []tracking.TrackingInfo

	if e.Progress != nil {
		e.Progress.Start(len(trackers))
		defer e.Progress.Stop()
	}

	for i := range trackers {
		tr := trackers[i]

		if len(tr.Logic) == 0 || !e.Registry.Eligible(&tr, currentBlock) {
			if len(tr.Logic) == 0 {
				tr.Score = 0
			}
			tr.ScoreTimestamps = append(tr.ScoreTimestamps, currentBlock)
			if err := e.Registry.Store.Upsert(tr); err != nil {
				return fmt.Errorf("persisting ineligible tracker %s: %w", tr.Hotkey, err)
			}
			graded = append(graded, tr)
			if e.Progress != nil {
				e.Progress.Complete(tr.Hotkey, false)
			}
			continue
		}

		if dup, err := e.Registry.FindDuplicate(&tr, graded); err != nil {
			return err
		} else if dup != nil {
			tr.Score = dup.Score
			tr.ScoreTimestamps = append(tr.ScoreTimestamps, currentBlock)
			if err := e.Registry.Store.Upsert(tr); err != nil {
				return fmt.Errorf("persisting deduped tracker %s: %w", tr.Hotkey, err)
			}
			graded = append(graded, tr)
			if e.Progress != nil {
				e.Progress.Complete(tr.Hotkey, tr.Score > 0)
			}
			continue
		}

		if e.Progress != nil {
			e.Progress.SetRunning(tr.Hotkey)
		}

		score, err := e.evaluateOne(ctx, &tr, tasks)
		if err != nil {
			return err
		}

		tr.Score = score
		tr.ScoreTimestamps = append(tr.ScoreTimestamps, currentBlock)
		if err := e.Registry.Store.Upsert(tr); err != nil {
			return fmt.Errorf("persisting tracker %s: %w", tr.Hotkey, err)
		}
		graded = append(graded, tr)
		if e.Progress != nil {
			e.Progress.Complete(tr.Hotkey, score > 0)
		}
	}

	return nil
}

// evaluateOne runs every task for one tracker through the bounded worker
// pool and returns the arithmetic mean of per-task scores.
func (e *Evaluator) evaluateOne(ctx context.Context, tr *tracking.TrackingInfo, tasks []task.Task) (float64, error) {
	if err := e.Proxy.InitKey(ctx, tr.Hotkey); err != nil {
		return 0, fmt.Errorf("initializing proxy key for %s: %w", tr.Hotkey, err)
	}

	scores := make([]float64, len(tasks))

	type workItem struct {
		index int
		task  task.Task
	}

	work := make(chan workItem, len(tasks))
	for i, t := range tasks {
		work <- workItem{index: i, task: t}
	}
	close(work)

	limit := e.WorkerLimit
	if limit <= 0 {
		limit = WorkerLimit
	}
	if limit > len(tasks) {
		limit = max(len(tasks), 1)
	}

	var wg sync.WaitGroup
	for range limit {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				scores[item.index] = e.runTask(ctx, tr, item.task, item.index)
			}
		}()
	}
	wg.Wait()

	if err := e.Proxy.Reset(ctx, tr.Hotkey); err != nil {
		slog.Warn("failed to reset proxy counter", "hotkey", tr.Hotkey, "error", err)
	}

	if len(scores) == 0 {
		return 0, nil
	}
	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores)), nil
}

// runTask performs spec.md §4.4 step 4's a-g: any failure anywhere yields
// score 0 for this task only.
func (e *Evaluator) runTask(ctx context.Context, tr *tracking.TrackingInfo, t task.Task, taskIndex int) float64 {
	name := fmt.Sprintf("swe-logic-%s-%d-%d", tr.Hotkey, e.CompetitionID, taskIndex)

	env := map[string]string{
		"HOST_IP":            e.HostIP,
		"ISSUE_DESCRIPTION":  t.ProblemStatement,
		"OPENROUTER_API_KEY": e.OpenRouterAPIKey,
	}

	c, err := e.Orchestrator.Run(ctx, t.ImageName, name, env, nil, nil)
	if err != nil {
		slog.Warn("failed to start logic container", "hotkey", tr.Hotkey, "task", taskIndex, "error", err)
		return 0
	}
	defer e.Orchestrator.Remove(ctx, c)

	if _, err := e.Orchestrator.Exec(ctx, c, []string{"git", "-C", "/testbed", "reset", "--hard", t.BaseCommit}, 60*time.Second); err != nil {
		slog.Warn("failed to reset working tree", "hotkey", tr.Hotkey, "task", taskIndex, "error", err)
		return 0
	}

	codeDir, cleanup, err := materializeBundle(tr.Logic)
	if err != nil {
		slog.Warn("failed to materialize logic bundle", "hotkey", tr.Hotkey, "task", taskIndex, "error", err)
		return 0
	}
	defer cleanup()

	if err := e.Orchestrator.CopyInto(ctx, c, codeDir, "/app/code"); err != nil {
		slog.Warn("failed to copy logic into container", "hotkey", tr.Hotkey, "task", taskIndex, "error", err)
		return 0
	}

	result, err := e.Orchestrator.Exec(ctx, c, []string{"python3", "-u", "/app/code/runner.py"}, e.effectiveRunnerTimeout())
	if err != nil {
		slog.Warn("runner exec failed", "hotkey", tr.Hotkey, "task", taskIndex, "error", err)
		return 0
	}
	if result.TimedOut {
		slog.Info("runner timed out", "hotkey", tr.Hotkey, "task", taskIndex)
		return 0
	}

	line, ok := patch.ExtractPatchLine(result.Stdout)
	if !ok {
		slog.Info("no Patch: line in runner output", "hotkey", tr.Hotkey, "task", taskIndex)
		return 0
	}

	p, err := patch.ParsePayload(line)
	if err != nil {
		slog.Info("failed to parse patch payload", "hotkey", tr.Hotkey, "task", taskIndex, "error", err)
		return 0
	}

	score, _, err := e.Grader.Grade(ctx, p, t)
	if err != nil {
		slog.Warn("grading error", "hotkey", tr.Hotkey, "task", taskIndex, "error", err)
		return 0
	}

	return score
}

func (e *Evaluator) effectiveRunnerTimeout() time.Duration {
	if e.RunnerTimeout <= 0 {
		return RunnerTimeout
	}
	return e.RunnerTimeout
}

// materializeBundle writes a logic Bundle to a fresh temp directory so it
// can be handed to Orchestrator.CopyInto, which operates on host paths.
func materializeBundle(b tracking.Bundle) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "validator-bundle-*")
	if err != nil {
		return "", nil, err
	}
	cleanup = func() { os.RemoveAll(dir) }

	for relPath, content := range b {
		dest := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			cleanup()
			return "", nil, err
		}
		if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
			cleanup()
			return "", nil, err
		}
	}

	return dir, cleanup, nil
}
