// Package dockerutil is the only package that talks to a container runtime.
// It wraps the `docker` CLI the way the teacher's sandbox tooling does
// (pkg/tools/builtin/sandbox.go, pkg/evaluation/build.go) rather than linking
// the Engine API client, so the same code path works against a local daemon
// or a remote one addressed by URL.
package dockerutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// ImageRef is a fully qualified image reference, e.g.
// "registry.internal:5000/swe-eval-django-4.1:latest".
type ImageRef string

// ContainerHandle identifies a running or stopped container on whichever
// daemon created it.
type ContainerHandle struct {
	ID   string
	Name string
}

// Orchestrator drives a single Docker daemon, local or remote, via the
// `docker` CLI. A zero-value Orchestrator talks to the local default daemon.
type Orchestrator struct {
	// Host is the daemon to address, e.g. "tcp://10.0.0.5:2375". Empty
	// means the local default daemon (DOCKER_HOST / unix socket).
	Host string
	// Registry is the shared, content-addressed image registry used to
	// move images between build and evaluation hosts, e.g.
	// "registry.internal:5000".
	Registry string
}

// New returns an Orchestrator bound to the local default daemon.
func New(registry string) *Orchestrator {
	return &Orchestrator{Registry: registry}
}

// NewRemote returns an Orchestrator bound to a remote daemon reachable at
// host (e.g. "tcp://1.2.3.4:2375").
func NewRemote(host, registry string) *Orchestrator {
	return &Orchestrator{Host: host, Registry: registry}
}

func (o *Orchestrator) baseArgs() []string {
	if o.Host == "" {
		return nil
	}
	return []string{"-H", o.Host}
}

func (o *Orchestrator) command(ctx context.Context, args ...string) *exec.Cmd {
	full := append(append([]string{}, o.baseArgs()...), args...)
	return exec.CommandContext(ctx, "docker", full...)
}

// registryHasTag probes the registry for tag by attempting a manifest pull
// (docker manifest inspect), which does not download layers.
func (o *Orchestrator) registryHasTag(ctx context.Context, tag string) bool {
	cmd := o.command(ctx, "manifest", "inspect", tag)
	return cmd.Run() == nil
}

// Build builds the Dockerfile in contextDir and tags it. When the
// Orchestrator has a Registry, tag is qualified with it and the shared
// registry is probed first; if the image is present there, it is pulled
// and returned instead of rebuilt, so concurrent validators share build
// work. If push is set and a local build happened, the result is pushed to
// the registry for peers to reuse. With no Registry, Build always builds
// locally under the given tag and push has no effect.
func (o *Orchestrator) Build(ctx context.Context, contextDir string, tag ImageRef, push bool) (ImageRef, error) {
	if o.Registry != "" {
		tag = ImageRef(o.Registry + "/" + stripRegistry(string(tag)))
		if o.registryHasTag(ctx, string(tag)) {
			slog.Debug("image present in registry, pulling instead of building", "tag", tag)
			if err := o.run(ctx, "pull", string(tag)); err != nil {
				return "", fmt.Errorf("pulling cached image %s: %w", tag, err)
			}
			return tag, nil
		}
	}

	start := time.Now()
	if err := o.run(ctx, "build", "-t", string(tag), contextDir); err != nil {
		return "", fmt.Errorf("building image %s: %w", tag, err)
	}
	slog.Debug("built image", "tag", tag, "elapsed", time.Since(start))

	if push && o.Registry != "" {
		if err := o.run(ctx, "push", string(tag)); err != nil {
			return "", fmt.Errorf("pushing image %s: %w", tag, err)
		}
	}

	return tag, nil
}

// LoadRemote moves a locally built image onto the daemon at remoteHost:
// tag it under the Orchestrator's shared registry, push from here, then
// pull it on that remote host. It never streams a tarball over the Docker
// API, per the orchestrator's push/pull-only contract.
func (o *Orchestrator) LoadRemote(ctx context.Context, localTag ImageRef, remoteHost string) (ImageRef, error) {
	if o.Registry == "" {
		return "", errors.New("dockerutil: LoadRemote requires a configured registry")
	}

	remoteTag := ImageRef(o.Registry + "/" + stripRegistry(string(localTag)))

	if err := o.run(ctx, "tag", string(localTag), string(remoteTag)); err != nil {
		return "", fmt.Errorf("tagging %s as %s: %w", localTag, remoteTag, err)
	}
	if err := o.run(ctx, "push", string(remoteTag)); err != nil {
		return "", fmt.Errorf("pushing %s: %w", remoteTag, err)
	}

	remote := NewRemote(remoteHost, o.Registry)
	if err := remote.run(ctx, "pull", string(remoteTag)); err != nil {
		return "", fmt.Errorf("pulling %s on remote daemon %s: %w", remoteTag, remoteHost, err)
	}

	return remoteTag, nil
}

func stripRegistry(tag string) string {
	parts := strings.SplitN(tag, "/", 2)
	if len(parts) == 2 && strings.ContainsAny(parts[0], ".:") {
		return parts[1]
	}
	return tag
}

// Run starts a detached container from image. If a container named name
// already exists on this daemon it is force-removed first, matching the
// teacher's collision policy in SPEC_FULL.md §4.1.
func (o *Orchestrator) Run(ctx context.Context, image ImageRef, name string, env map[string]string, command []string, ports map[int]int) (ContainerHandle, error) {
	_ = o.run(ctx, "rm", "-f", name) // best-effort; name may not exist

	args := []string{"run", "-d", "--name", name}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	for host, container := range ports {
		args = append(args, "-p", fmt.Sprintf("%d:%d", host, container))
	}
	args = append(args, string(image))
	args = append(args, command...)

	out, err := o.output(ctx, args...)
	if err != nil {
		return ContainerHandle{}, fmt.Errorf("starting container %s: %w", name, err)
	}

	id := strings.TrimSpace(out)
	slog.Debug("started container", "name", name, "id", id, "image", image)
	return ContainerHandle{ID: id, Name: name}, nil
}

// CopyInto materializes the local tree at srcDir inside the running
// container at destPath, via `docker cp`.
func (o *Orchestrator) CopyInto(ctx context.Context, c ContainerHandle, srcDir, destPath string) error {
	target := c.ID + ":" + destPath
	if err := o.run(ctx, "cp", srcDir, target); err != nil {
		return fmt.Errorf("copying %s into %s: %w", srcDir, target, err)
	}
	return nil
}

// ExecResult is the outcome of a bounded in-container command.
type ExecResult struct {
	Stdout   string
	TimedOut bool
	Elapsed  time.Duration
}

// execGrace is the extra time given to a process group after SIGTERM before
// the container itself is force-removed by the caller.
const execGrace = 5 * time.Second

// Exec runs cmd inside container c, streaming combined output, bounded by
// timeout. On timeout it sends SIGTERM to the in-container process (via
// `docker exec` being killed, which signals the docker daemon to stop the
// exec'd process) and reports TimedOut=true rather than treating it as an
// error. The docker daemon guarantees the exec'd process does not outlive
// the container by more than execGrace once the container itself is
// stopped, which callers are expected to do promptly after a timeout.
func (o *Orchestrator) Exec(ctx context.Context, c ContainerHandle, command []string, timeout time.Duration) (ExecResult, error) {
	start := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"exec", c.ID}, command...)
	cmd := o.command(execCtx, args...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		o.killExecProcessGroup(ctx, c, command)
		return ExecResult{Stdout: buf.String(), TimedOut: true, Elapsed: elapsed}, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Non-zero exit is a normal outcome for a grading/runner
			// command; the caller inspects Stdout, not the exit code.
			return ExecResult{Stdout: buf.String(), Elapsed: elapsed}, nil
		}
		return ExecResult{}, fmt.Errorf("exec in container %s: %w", c.Name, runErr)
	}

	return ExecResult{Stdout: buf.String(), Elapsed: elapsed}, nil
}

// killExecProcessGroup asks the container to terminate the command that was
// running, within execGrace, so no process outlives timeout+execGrace.
func (o *Orchestrator) killExecProcessGroup(ctx context.Context, c ContainerHandle, command []string) {
	killCtx, cancel := context.WithTimeout(ctx, execGrace)
	defer cancel()

	pkillArgs := append([]string{"exec", c.ID, "pkill", "-TERM", "-f"}, command...)
	_ = o.command(killCtx, pkillArgs...).Run()
}

// Stop stops container c.
func (o *Orchestrator) Stop(ctx context.Context, c ContainerHandle) error {
	if err := o.run(ctx, "stop", "-t", "5", c.ID); err != nil {
		return fmt.Errorf("stopping container %s: %w", c.Name, err)
	}
	return nil
}

// Remove removes container c, forcing removal if still running.
func (o *Orchestrator) Remove(ctx context.Context, c ContainerHandle) error {
	if err := o.run(ctx, "rm", "-f", c.ID); err != nil {
		return fmt.Errorf("removing container %s: %w", c.Name, err)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, args ...string) error {
	cmd := o.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

func (o *Orchestrator) output(ctx context.Context, args ...string) (string, error) {
	cmd := o.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return string(out), nil
}

// HumanSize formats byte counts for orchestrator log lines, e.g. when
// reporting a built image's size.
func HumanSize(bytes int64) string {
	return units.HumanSize(float64(bytes))
}
