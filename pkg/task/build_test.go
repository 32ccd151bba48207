package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRepo(t *testing.T) {
	owner, name, err := splitRepo("django/django")
	require.NoError(t, err)
	assert.Equal(t, "django", owner)
	assert.Equal(t, "django", name)

	_, _, err = splitRepo("not-a-repo")
	assert.Error(t, err)

	_, _, err = splitRepo("owner/")
	assert.Error(t, err)
}

func TestDockerfileDataRendersBaseImage(t *testing.T) {
	out := dockerfileData("swe-env-django-4.1:latest")
	assert.Contains(t, out, "FROM swe-env-django-4.1:latest")
	assert.Contains(t, out, "COPY repo /testbed")
	assert.Contains(t, out, "WORKDIR /testbed")
}

func TestSnapshotDirSkipsBinaryAndGit(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin.dat"), []byte{0x00, 0x01, 0xff, 0x00}, 0o644))

	snap, err := snapshotDir(dir)
	require.NoError(t, err)

	assert.Contains(t, snap, "main.go")
	assert.NotContains(t, snap, ".git/HEAD")
	assert.NotContains(t, snap, "bin.dat")
}

func TestCopyTreePreservesStructure(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("hello"), 0o644))

	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, copyTree(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
