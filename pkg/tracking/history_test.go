package tracking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryRecordsAndQueriesRecentSamples(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHistory(dir, 1)
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.Record(ctx, TrackingInfo{Hotkey: "hk1", UID: 1, Score: 0.5}, 100))
	require.NoError(t, h.Record(ctx, TrackingInfo{Hotkey: "hk1", UID: 1, Score: 0.75}, 200))

	samples, err := h.Recent(ctx, "hk1", 10)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, 200, samples[0].Block)
	require.Equal(t, 0.75, samples[0].Score)
}

func TestHistoryLeaderboardOrdersByScoreDescending(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHistory(dir, 1)
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.Record(ctx, TrackingInfo{Hotkey: "hk1", UID: 1, Score: 0.2}, 100))
	require.NoError(t, h.Record(ctx, TrackingInfo{Hotkey: "hk2", UID: 2, Score: 0.9}, 100))

	board, err := h.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, "hk2", board[0].Hotkey)
}

func TestOpenHistoryReopensExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	h1, err := OpenHistory(dir, 7)
	require.NoError(t, err)
	require.NoError(t, h1.Record(context.Background(), TrackingInfo{Hotkey: "hk1", UID: 1, Score: 1}, 1))
	require.NoError(t, h1.Close())

	h2, err := OpenHistory(dir, 7)
	require.NoError(t, err)
	defer h2.Close()

	samples, err := h2.Recent(context.Background(), "hk1", 5)
	require.NoError(t, err)
	require.Len(t, samples, 1)
}
