package evaluator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderena/validator/pkg/task"
	"github.com/coderena/validator/pkg/tracking"
)

func TestMaterializeBundleWritesFiles(t *testing.T) {
	dir, cleanup, err := materializeBundle(tracking.Bundle{
		"runner.py":        "print('hi')\n",
		"sub/helper.py":    "x = 1\n",
	})
	require.NoError(t, err)
	defer cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "runner.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "sub", "helper.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))
}

type fakeProxy struct {
	initCalls  []string
	resetCalls []string
}

func (p *fakeProxy) InitKey(_ context.Context, hotkey string) error {
	p.initCalls = append(p.initCalls, hotkey)
	return nil
}

func (p *fakeProxy) Reset(_ context.Context, hotkey string) error {
	p.resetCalls = append(p.resetCalls, hotkey)
	return nil
}

func TestEvaluateSkipsIneligibleTrackerWithoutProxyInit(t *testing.T) {
	dir := t.TempDir()
	store, err := tracking.NewStore(dir, 1)
	require.NoError(t, err)

	reg := tracking.NewRegistry(store, nil, nil, tracking.NewValidator(nil))

	proxy := &fakeProxy{}
	ev := &Evaluator{Registry: reg, Proxy: proxy}

	trackers := []tracking.TrackingInfo{
		{Hotkey: "h1", Logic: nil}, // empty bundle: ineligible path
	}

	err = ev.Evaluate(context.Background(), trackers, []task.Task{}, 100)
	require.NoError(t, err)

	assert.Empty(t, proxy.initCalls, "an ineligible/empty-bundle tracker must not reach InitKey")

	stored, ok := store.Get("h1")
	require.True(t, ok)
	assert.Equal(t, []int{100}, stored.ScoreTimestamps)
}

func TestEvaluateDedupSkipsReEvaluation(t *testing.T) {
	dir := t.TempDir()
	store, err := tracking.NewStore(dir, 1)
	require.NoError(t, err)

	reg := tracking.NewRegistry(store, nil, nil, tracking.NewValidator(nil))
	proxy := &fakeProxy{}
	ev := &Evaluator{Registry: reg, Proxy: proxy}

	bundle := tracking.Bundle{"runner.py": "print('Patch: []')\n"}

	// Seed two trackers with identical bundles; the first will still try to
	// run tasks (no tasks configured, so the worker pool is a no-op and
	// mean-of-zero scores is 0), the second should dedup against it.
	two := []tracking.TrackingInfo{
		{Hotkey: "h1", Logic: bundle},
		{Hotkey: "h2", Logic: bundle},
	}

	err = ev.Evaluate(context.Background(), two, []task.Task{}, 100)
	require.NoError(t, err)

	h1, _ := store.Get("h1")
	h2, _ := store.Get("h2")
	assert.Equal(t, h1.Score, h2.Score)
	assert.Equal(t, []string{"h1"}, proxy.initCalls, "a deduped tracker must not re-invoke InitKey")
}
