// Package task implements the Task Builder (SPEC_FULL.md §4.2): it turns
// streamed benchmark records into immutable Task records backed by a
// prebuilt evaluation image, and persists the resulting task list.
package task

import "github.com/coderena/validator/pkg/dockerutil"

// Task is immutable after creation. It is read-only for the lifetime of a
// competition and rotated in batches by pipeline.RefreshTasks, which
// writes the new list through Store.ReplaceAll.
type Task struct {
	RepoOwner        string `json:"repo_owner"`
	RepoName         string `json:"repo_name"`
	BaseCommit       string `json:"base_commit"`
	ProblemStatement string `json:"problem_statement"`
	ExpectedPatch    string `json:"expected_patch"`
	ImageName        dockerutil.ImageRef `json:"image_name"`

	// Snapshot maps each tracked file's repo-relative path to its content
	// at BaseCommit, used by the Grader to resolve a candidate Patch's
	// old_content without re-cloning.
	Snapshot map[string]string `json:"snapshot"`

	// Row is the raw benchmark record, forwarded verbatim to the Grader,
	// which needs dataset-specific fields (e.g. test patch, FAIL_TO_PASS
	// lists) that this package does not interpret.
	Row map[string]any `json:"row"`
}

// Repo returns "owner/name".
func (t Task) Repo() string {
	return t.RepoOwner + "/" + t.RepoName
}
