// Package pipeline implements spec.md's FinetunePipeline: the outer
// coordinator that ties the Task Builder (pkg/task), Submission Registry
// (pkg/tracking), Evaluator (pkg/evaluator) and Docker Orchestrator
// (pkg/dockerutil) together behind the single entrypoint an outer
// scheduler drives, Evaluate(ctx, n).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/coderena/validator/pkg/dendrite"
	"github.com/coderena/validator/pkg/evaluator"
	"github.com/coderena/validator/pkg/metagraph"
	"github.com/coderena/validator/pkg/task"
	"github.com/coderena/validator/pkg/tracking"
)

// Pipeline is the arena that owns a competition's trackers and tasks by
// stable identifier (hotkey, content hash), per the "cyclic graphs in
// source" design note in spec.md §9: there is a single owner (Pipeline)
// holding everything else by reference, rather than trackers and tasks
// pointing back at it.
type Pipeline struct {
	CompetitionID int

	TaskStore   *task.Store
	TaskBuilder *task.Builder
	Dataset     task.Dataset

	Registry  *tracking.Registry
	Evaluator *evaluator.Evaluator
	Metagraph metagraph.Metagraph
	Dendrite  dendrite.Client

	// NumKeep and NumWanted govern task-list rotation, spec.md §4.2: on a
	// RefreshTasks call, the first NumKeep existing tasks are dropped, then
	// fresh generations are appended until the list has NumWanted entries.
	NumKeep   int
	NumWanted int

	// SendResults, when true, delivers a per-miner scoring summary over the
	// optional ResultSynapse feedback channel (spec.md §6) after each
	// Evaluate round. Best-effort: a delivery failure is logged, never
	// fatal.
	SendResults bool

	// History, if set, receives a score-history sample per tracker after
	// each round, backing `validator tracking inspect`. Nil disables it.
	History *tracking.History
}

// New returns a Pipeline wiring the given collaborators for one
// competition era.
func New(competitionID int, taskStore *task.Store, builder *task.Builder, dataset task.Dataset, reg *tracking.Registry, eval *evaluator.Evaluator, mg metagraph.Metagraph, dc dendrite.Client) *Pipeline {
	return &Pipeline{
		CompetitionID: competitionID,
		TaskStore:     taskStore,
		TaskBuilder:   builder,
		Dataset:       dataset,
		Registry:      reg,
		Evaluator:     eval,
		Metagraph:     mg,
		Dendrite:      dc,
		NumWanted:     -1, // disabled unless explicitly set
	}
}

// RefreshTasks performs the (NumKeep, NumWanted) rotation described in
// spec.md §4.2. It is a no-op when NumWanted is negative (rotation
// disabled — the caller manages the task list entirely out of band) or
// when the store already holds at least NumWanted tasks and NumKeep
// would not drop anything.
func (p *Pipeline) RefreshTasks(ctx context.Context) error {
	if p.NumWanted < 0 {
		return nil
	}

	existing := p.TaskStore.Tasks()

	keep := p.NumKeep
	if keep < 0 {
		keep = 0
	}
	if keep > len(existing) {
		keep = len(existing)
	}
	// Cleanup hook for the dropped prefix (spec.md §4.2): the clone
	// directory is already removed at build time (pkg/task.Builder.BuildTask
	// defers os.RemoveAll on its own clone dir), so nothing remains to free
	// here beyond letting the dropped Task values fall out of scope; image
	// cleanup is independent and handled out-of-band by registry GC.
	remaining := append([]task.Task(nil), existing[keep:]...)

	for len(remaining) < p.NumWanted {
		rec, ok, err := p.Dataset.Next()
		if err != nil {
			return fmt.Errorf("reading next dataset record: %w", err)
		}
		if !ok {
			slog.Warn("dataset exhausted before reaching NumWanted tasks", "have", len(remaining), "wanted", p.NumWanted)
			break
		}

		t, err := p.TaskBuilder.BuildTask(ctx, rec)
		if err != nil {
			slog.Warn("failed to build task, skipping record", "repo", rec.Repo, "base_commit", rec.BaseCommit, "error", err)
			continue
		}
		remaining = append(remaining, t)
	}

	return p.TaskStore.ReplaceAll(remaining)
}

// Evaluate runs n scoring rounds: each round discovers the current miner
// set over dendrite, then grades every eligible tracker against the
// current task list. An outer scheduler (the CLI's `run` loop) calls this
// repeatedly; spec.md §2 describes the overall control flow this method
// implements end to end.
func (p *Pipeline) Evaluate(ctx context.Context, n int) error {
	for round := 0; round < n; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		slog.Info("evaluation round starting", "competition", p.CompetitionID, "round", round)

		if err := p.Registry.Discover(ctx); err != nil {
			return fmt.Errorf("discovering miners: %w", err)
		}

		block, err := p.Metagraph.CurrentBlock(ctx)
		if err != nil {
			return fmt.Errorf("reading current block: %w", err)
		}

		trackers := sortedByUID(p.Registry.Store.All())
		tasks := p.TaskStore.Tasks()

		if err := p.Evaluator.Evaluate(ctx, trackers, tasks, block); err != nil {
			return fmt.Errorf("evaluating round %d: %w", round, err)
		}

		if p.History != nil {
			for _, tr := range sortedByUID(p.Registry.Store.All()) {
				if err := p.History.Record(ctx, tr, block); err != nil {
					slog.Warn("failed to record score history", "hotkey", tr.Hotkey, "error", err)
				}
			}
		}

		if p.SendResults {
			p.sendResults(ctx, sortedByUID(p.Registry.Store.All()))
		}

		slog.Info("evaluation round complete", "competition", p.CompetitionID, "round", round, "trackers", len(trackers), "tasks", len(tasks))
	}

	return nil
}

// sendResults delivers each tracker's scoring summary over the optional
// ResultSynapse feedback channel, spec.md §6. Failures are logged only:
// this channel is informational, never load-bearing for scoring.
func (p *Pipeline) sendResults(ctx context.Context, trackers []tracking.TrackingInfo) {
	if p.Dendrite == nil {
		return
	}
	for _, tr := range trackers {
		summary := fmt.Sprintf("score=%.4f evaluations=%d", tr.Score, len(tr.ScoreTimestamps))
		if _, err := p.Dendrite.SendResult(ctx, tr.UID, dendrite.ResultSynapseRequest{Summary: summary}); err != nil {
			slog.Debug("failed to deliver result feedback", "hotkey", tr.Hotkey, "uid", tr.UID, "error", err)
		}
	}
}

// sortedByUID returns trackers in metagraph-UID order, spec.md §5's
// "Trackers are graded in the order produced by C3 (which is metagraph-UID
// order)" ordering guarantee — Store.All returns map iteration order, so
// callers that care about this guarantee must sort explicitly.
func sortedByUID(trackers []tracking.TrackingInfo) []tracking.TrackingInfo {
	sort.Slice(trackers, func(i, j int) bool { return trackers[i].UID < trackers[j].UID })
	return trackers
}
