package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testTask(repo string) Task {
	return Task{RepoOwner: "acme", RepoName: repo, BaseCommit: "deadbeef"}
}

func TestStoreAddAndReload(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir, 1)
	require.NoError(t, err)
	require.Empty(t, s.Tasks())

	require.NoError(t, s.Add(testTask("foo"), testTask("bar")))
	require.Len(t, s.Tasks(), 2)

	reloaded, err := NewStore(dir, 1)
	require.NoError(t, err)
	require.Len(t, reloaded.Tasks(), 2)
	require.Equal(t, "foo", reloaded.Tasks()[0].RepoName)
}

func TestStoreRotateArchivesPreviousCompetition(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Add(testTask("foo")))

	next, err := s.Rotate(2)
	require.NoError(t, err)
	require.Empty(t, next.Tasks())

	require.NoError(t, next.Add(testTask("baz")))

	archived, err := NewStore(dir, 1)
	require.NoError(t, err)
	require.Empty(t, archived.Tasks(), "rotating should leave competition 1's live file empty")

	current, err := NewStore(dir, 2)
	require.NoError(t, err)
	require.Len(t, current.Tasks(), 1)
	require.Equal(t, "baz", current.Tasks()[0].RepoName)
}

func TestStoreTrimKeepsMostRecent(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Add(testTask("a"), testTask("b"), testTask("c")))

	require.NoError(t, s.Trim(2))
	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	require.Equal(t, "b", tasks[0].RepoName)
	require.Equal(t, "c", tasks[1].RepoName)
}

func TestStoreTrimNoopWhenUnderLimit(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Add(testTask("a")))

	require.NoError(t, s.Trim(5))
	require.Len(t, s.Tasks(), 1)
}
