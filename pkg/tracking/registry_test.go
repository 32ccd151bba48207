package tracking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderena/validator/pkg/dendrite"
	"github.com/coderena/validator/pkg/metagraph"
)

func TestRegistryDiscoverCreatesTrackerPerUID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 1)
	require.NoError(t, err)

	mg := &metagraph.Fake{
		UIDList: []int{1, 2},
		Hotkeys: map[int]string{1: "hotkey-1", 2: "hotkey-2"},
		Block:   1000,
	}
	client := &dendrite.Fake{
		Responses: map[int]dendrite.LogicSynapseResponse{
			1: {Logic: map[string]string{"a.py": "x = 1\n"}},
		},
		Errors: map[int]error{
			2: assertErr{},
		},
	}

	reg := NewRegistry(store, mg, client, NewValidator(&fakeJudge{allowed: true}))
	require.NoError(t, reg.Discover(context.Background()))

	t1, ok := store.Get("hotkey-1")
	require.True(t, ok)
	assert.Equal(t, 1, t1.UID)
	assert.NotEmpty(t, t1.Logic)

	t2, ok := store.Get("hotkey-2")
	require.True(t, ok)
	assert.Empty(t, t2.Logic, "non-responder should get an empty bundle")
}

func TestRegistryDiscoverClearsInvalidBundle(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 1)
	require.NoError(t, err)

	mg := &metagraph.Fake{UIDList: []int{1}, Hotkeys: map[int]string{1: "hotkey-1"}, Block: 1}
	client := &dendrite.Fake{
		Responses: map[int]dendrite.LogicSynapseResponse{
			1: {Logic: map[string]string{"cheats.dat": "whatever"}},
		},
	}

	reg := NewRegistry(store, mg, client, NewValidator(&fakeJudge{allowed: true}))
	require.NoError(t, reg.Discover(context.Background()))

	tracker, ok := store.Get("hotkey-1")
	require.True(t, ok)
	assert.Empty(t, tracker.Logic)
}

func TestEligibleSkipsWindowCheckForEmptyBundle(t *testing.T) {
	tr := &TrackingInfo{ScoreTimestamps: []int{100, 200, 300}}
	assert.True(t, tr.Eligible(301, DefaultRateLimitBlocks, DefaultRateLimitMaxEval))
}

func TestEligibleEnforcesMaxEvalsWithinWindow(t *testing.T) {
	tr := &TrackingInfo{
		Logic:           Bundle{"a.py": "x=1\n"},
		ScoreTimestamps: []int{100, 200, 300},
	}
	assert.False(t, tr.Eligible(301, 1000, 3))
	assert.True(t, tr.Eligible(301, 1000, 4))
}

func TestFindDuplicateReturnsMatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 1)
	require.NoError(t, err)
	reg := NewRegistry(store, &metagraph.Fake{}, &dendrite.Fake{}, NewValidator(&fakeJudge{allowed: true}))

	t1 := TrackingInfo{Hotkey: "h1", Logic: Bundle{"a.py": "x = 1\ny = 2\nz = 3\n"}, Score: 0.5}
	t2 := TrackingInfo{Hotkey: "h2", Logic: Bundle{"a.py": "x = 1\ny = 2\nz = 3\n"}}

	dup, err := reg.FindDuplicate(&t2, []TrackingInfo{t1})
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "h1", dup.Hotkey)
}

type assertErr struct{}

func (assertErr) Error() string { return "miner did not respond" }
