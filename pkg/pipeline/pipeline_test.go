package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderena/validator/pkg/dendrite"
	"github.com/coderena/validator/pkg/evaluator"
	"github.com/coderena/validator/pkg/metagraph"
	"github.com/coderena/validator/pkg/task"
	"github.com/coderena/validator/pkg/tracking"
)

type fakeProxy struct{}

func (fakeProxy) InitKey(context.Context, string) error { return nil }
func (fakeProxy) Reset(context.Context, string) error   { return nil }

func newTestPipeline(t *testing.T) (*Pipeline, *metagraph.Fake, *dendrite.Fake) {
	t.Helper()
	dir := t.TempDir()

	taskStore, err := task.NewStore(dir, 1)
	require.NoError(t, err)

	trackingStore, err := tracking.NewStore(dir, 1)
	require.NoError(t, err)

	mg := &metagraph.Fake{
		UIDList: []int{2, 1},
		Hotkeys: map[int]string{1: "hk1", 2: "hk2"},
		Block:   1000,
	}
	dc := &dendrite.Fake{
		Responses: map[int]dendrite.LogicSynapseResponse{
			1: {Logic: nil},
			2: {Logic: nil},
		},
	}

	reg := tracking.NewRegistry(trackingStore, mg, dc, tracking.NewValidator(nil))
	ev := evaluator.New(nil, nil, fakeProxy{}, reg, 1)

	p := New(1, taskStore, nil, nil, reg, ev, mg, dc)
	return p, mg, dc
}

func TestEvaluateScoresEmptyBundlesZeroAndAppendsTimestamp(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	err := p.Evaluate(context.Background(), 1)
	require.NoError(t, err)

	trackers := p.Registry.Store.All()
	require.Len(t, trackers, 2)

	for _, tr := range trackers {
		assert.Equal(t, []int{1000}, tr.ScoreTimestamps)
		assert.Equal(t, float64(0), tr.Score)
	}
}

func TestEvaluateMultipleRoundsAppendsTimestampsMonotonically(t *testing.T) {
	p, mg, _ := newTestPipeline(t)

	require.NoError(t, p.Evaluate(context.Background(), 1))
	mg.Block = 2000
	require.NoError(t, p.Evaluate(context.Background(), 1))

	tr, ok := p.Registry.Store.Get("hk1")
	require.True(t, ok)
	assert.Equal(t, []int{1000, 2000}, tr.ScoreTimestamps)
}

func TestRefreshTasksNoopWhenRotationDisabled(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	// NumWanted defaults to -1 (disabled) via New.
	require.NoError(t, p.RefreshTasks(context.Background()))
	assert.Empty(t, p.TaskStore.Tasks())
}

func TestRefreshTasksDropsPrefixAndStopsWhenDatasetExhausted(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	require.NoError(t, p.TaskStore.Add(
		task.Task{RepoOwner: "a", RepoName: "one"},
		task.Task{RepoOwner: "a", RepoName: "two"},
		task.Task{RepoOwner: "a", RepoName: "three"},
	))

	p.NumKeep = 1
	p.NumWanted = 5
	p.Dataset = task.NewSliceDataset(nil) // exhausted immediately
	p.TaskBuilder = nil                   // must not be called: no records to build

	require.NoError(t, p.RefreshTasks(context.Background()))

	remaining := p.TaskStore.Tasks()
	require.Len(t, remaining, 2, "dropped the first NumKeep=1 task, dataset had nothing to append")
	assert.Equal(t, "two", remaining[0].RepoName)
	assert.Equal(t, "three", remaining[1].RepoName)
}

func TestSendResultsDeliversFeedbackWithoutFailingRound(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.SendResults = true

	// dendrite.Fake.SendResult always acknowledges; this exercises the
	// best-effort feedback path without needing a failure injection point.
	require.NoError(t, p.Evaluate(context.Background(), 1))
}

func TestEvaluateRecordsScoreHistoryWhenConfigured(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	history, err := tracking.OpenHistory(t.TempDir(), 1)
	require.NoError(t, err)
	defer history.Close()
	p.History = history

	require.NoError(t, p.Evaluate(context.Background(), 1))

	samples, err := history.Recent(context.Background(), "hk1", 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1000, samples[0].Block)
}
