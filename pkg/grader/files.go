package grader

import (
	"os"
	"path/filepath"
)

// stagedFile is a scratch directory holding a single file, named so that
// Orchestrator.CopyInto's `docker cp` places it at the right destination
// basename inside the container.
type stagedFile struct {
	srcPath string
	dir     string
}

func (s stagedFile) cleanup() {
	os.RemoveAll(s.dir)
}

// writeTempFileTree stages content on the host at a temp path whose
// basename matches destPath's basename, since `docker cp src dst` uses
// src's basename when dst is a directory-shaped target and otherwise
// requires an exact file->file mapping.
func writeTempFileTree(destPath, content string) (stagedFile, error) {
	dir, err := os.MkdirTemp("", "validator-stage-*")
	if err != nil {
		return stagedFile{}, err
	}

	src := filepath.Join(dir, filepath.Base(destPath))
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		os.RemoveAll(dir)
		return stagedFile{}, err
	}

	return stagedFile{srcPath: src, dir: dir}, nil
}
