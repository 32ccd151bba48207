package task

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/coderena/validator/pkg/dockerutil"
	"github.com/coderena/validator/pkg/environment"
)

//go:embed Dockerfile.template
var dockerfileTmpl string

var dockerfileTemplate = template.Must(template.New("Dockerfile").Parse(dockerfileTmpl))

// maxSnapshotFileBytes caps how much of any single tracked file is read into
// a Task's in-memory snapshot. Binary assets and generated lockfiles in a
// real SWE-Bench repo can be large; the Grader only ever needs source files
// a candidate patch touches.
const maxSnapshotFileBytes = 1 << 20 // 1MiB

// Builder materializes Task records from streamed benchmark Records: it
// clones the target repo at base_commit, derives a per-task evaluation
// image from a vendored base family, and records the full benchmark row.
type Builder struct {
	Orchestrator    *dockerutil.Orchestrator
	Env             environment.Provider
	BaseImageFamily func(repo string) string // e.g. "swe-env-<repo>-<version>:latest"
	PushImages      bool
}

func dockerfileData(baseImage string) string {
	var buf bytes.Buffer
	_ = dockerfileTemplate.Execute(&buf, struct{ BaseImage string }{baseImage})
	return buf.String()
}

// BuildTask clones rec.Repo at rec.BaseCommit, derives and builds the eval
// image, and returns the resulting Task. The clone is made in a temporary
// directory that BuildTask removes itself before returning, since only the
// image and the snapshot — not the clone directory — are needed once the
// Task exists.
func (b *Builder) BuildTask(ctx context.Context, rec Record) (Task, error) {
	owner, name, err := splitRepo(rec.Repo)
	if err != nil {
		return Task{}, err
	}

	cloneDir, err := os.MkdirTemp("", "validator-clone-*")
	if err != nil {
		return Task{}, fmt.Errorf("creating clone dir: %w", err)
	}

	if err := b.clone(ctx, rec.Repo, rec.BaseCommit, cloneDir); err != nil {
		os.RemoveAll(cloneDir)
		return Task{}, fmt.Errorf("cloning %s at %s: %w", rec.Repo, rec.BaseCommit, err)
	}
	defer os.RemoveAll(cloneDir)

	snapshot, err := snapshotDir(cloneDir)
	if err != nil {
		return Task{}, fmt.Errorf("snapshotting %s: %w", rec.Repo, err)
	}

	baseImage := b.BaseImageFamily(rec.Repo)
	evalTag := dockerutil.ImageRef(strings.Replace(baseImage, "swe-env-", "swe-eval-", 1))

	buildCtx, err := os.MkdirTemp("", "validator-buildctx-*")
	if err != nil {
		return Task{}, fmt.Errorf("creating build context: %w", err)
	}
	defer os.RemoveAll(buildCtx)

	repoDest := filepath.Join(buildCtx, "repo")
	if err := copyTree(cloneDir, repoDest); err != nil {
		return Task{}, fmt.Errorf("assembling build context: %w", err)
	}

	dockerfile := dockerfileData(baseImage)
	if err := os.WriteFile(filepath.Join(buildCtx, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return Task{}, fmt.Errorf("writing Dockerfile: %w", err)
	}

	image, err := b.Orchestrator.Build(ctx, buildCtx, evalTag, b.PushImages)
	if err != nil {
		return Task{}, fmt.Errorf("building eval image for %s: %w", rec.Repo, err)
	}

	return Task{
		RepoOwner:        owner,
		RepoName:         name,
		BaseCommit:       rec.BaseCommit,
		ProblemStatement: rec.ProblemStatement,
		ExpectedPatch:    rec.Patch,
		ImageName:        image,
		Snapshot:         snapshot,
		Row:              rec.Row,
	}, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed repo %q, expected owner/name", repo)
	}
	return parts[0], parts[1], nil
}

func (b *Builder) clone(ctx context.Context, repo, baseCommit, dest string) error {
	url := "https://github.com/" + repo + ".git"

	opts := &git.CloneOptions{
		URL:          url,
		SingleBranch: false,
		Depth:        1,
	}

	if token, ok := b.Env.Get(ctx, "GITHUB_TOKEN"); ok && token != "" {
		opts.Auth = &http.BasicAuth{Username: "x-access-token", Password: token}
	}

	repoObj, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		return fmt.Errorf("clone: %w", err)
	}

	worktree, err := repoObj.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	checkoutErr := worktree.Checkout(&git.CheckoutOptions{
		Hash:  plumbing.NewHash(baseCommit),
		Force: true,
	})
	if checkoutErr != nil {
		// base_commit isn't reachable from the shallow history; fall back
		// to a full fetch so any commit on the repo's history is checkable.
		if err := repoObj.FetchContext(ctx, &git.FetchOptions{Depth: 0}); err != nil {
			return fmt.Errorf("deepening clone for checkout of %s: %w", baseCommit, err)
		}
		if err := worktree.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(baseCommit), Force: true}); err != nil {
			return fmt.Errorf("checkout %s: %w", baseCommit, err)
		}
	}

	return nil
}

// snapshotDir reads every UTF-8-looking file under dir (excluding .git)
// into a relative-path -> content map, skipping anything that looks binary
// or exceeds maxSnapshotFileBytes.
func snapshotDir(dir string) (map[string]string, error) {
	snapshot := make(map[string]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Size() > maxSnapshotFileBytes {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil // unreadable file (broken symlink, permissions): skip, not fatal
		}
		if !utf8.Valid(data) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		snapshot[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
