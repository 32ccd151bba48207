// Package config holds the validator's RuntimeConfig: the merged view of
// CLI flags and environment variables, following the shape of the teacher's pkg/config/runtime.go.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/coderena/validator/pkg/environment"
)

// Environment variable names, spec.md §6 "Environment variables (validator
// host)".
const (
	EnvRemoteDockerHost = "REMOTE_DOCKER_HOST"
	EnvDockerHostIP     = "DOCKER_HOST_IP"
	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
	EnvLLMAuthKey       = "LLM_AUTH_KEY"
	EnvGitHubToken      = "GITHUB_TOKEN"
	EnvHFAccessToken    = "HF_ACCESS_TOKEN"
)

// RuntimeConfig is the merged runtime configuration for a validator
// process, mirroring the teacher's RuntimeConfig: a flat struct populated
// by flag-registration helpers and read through an explicit EnvProvider
// accessor rather than direct os.Getenv calls, so tests can substitute a
// fixed environment.
type RuntimeConfig struct {
	DefaultEnvProvider environment.Provider

	// CompetitionID selects which Task/TrackingInfo blob this run operates
	// on, spec.md §3.
	CompetitionID int

	// RemoteDockerHost, when set, is the docker daemon this run builds and
	// runs containers against instead of the local daemon, spec.md §4.1/C1.
	RemoteDockerHost string
	// ImageRegistry is the shared, content-addressed registry host used to
	// move built images between build and evaluation hosts (spec.md §4.1's
	// "shared registry"), e.g. "registry.internal:5000". Empty disables
	// push/pull reuse; Build falls back to always building locally.
	ImageRegistry string
	// HostIP is forwarded into every task container as HOST_IP so the
	// in-container runner can reach the LLM Proxy, spec.md §4.4 step 4a.
	HostIP string

	OpenRouterAPIKey string
	LLMAuthKey       string
	GitHubToken      string
	HFAccessToken    string

	// ModelRegistryFile, if set, is hot-reloaded via fsnotify and its
	// contents replace the proxy server's model registry (initially
	// llmproxy.DefaultRegistry) through Server.SetRegistry, SPEC_FULL.md §4.6.
	ModelRegistryFile string

	// WorkerLimit and RunnerTimeoutSeconds override the Evaluator's
	// defaults (spec.md §4.4/§5) when nonzero.
	WorkerLimit        int
	RunnerTimeoutSeconds int

	// DataDir is where Task/TrackingInfo/validation-cache blobs persist,
	// spec.md §3/§7.
	DataDir string
}

// EnvProvider returns the environment lookup chain for this config,
// defaulting to the process environment (environment.NewDefaultProvider)
// when DefaultEnvProvider is unset, matching the teacher's lazy-default
// accessor pattern.
func (c *RuntimeConfig) EnvProvider() environment.Provider {
	if c.DefaultEnvProvider == nil {
		c.DefaultEnvProvider = environment.NewDefaultProvider()
	}
	return c.DefaultEnvProvider
}

// LoadSecrets populates the API-key/token fields from the environment,
// overriding flag-set values only when they are empty — CLI flags win over
// environment variables, matching the teacher's flags.go precedence
// comment ("CLI flag > environment variable > user config").
func (c *RuntimeConfig) LoadSecrets(ctx context.Context) {
	env := c.EnvProvider()
	fill := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if v, ok := env.Get(ctx, name); ok {
			*dst = v
		}
	}
	fill(&c.RemoteDockerHost, EnvRemoteDockerHost)
	fill(&c.HostIP, EnvDockerHostIP)
	fill(&c.OpenRouterAPIKey, EnvOpenRouterAPIKey)
	fill(&c.LLMAuthKey, EnvLLMAuthKey)
	fill(&c.GitHubToken, EnvGitHubToken)
	fill(&c.HFAccessToken, EnvHFAccessToken)
}

// Validate enforces spec.md §7's "Config: missing env var, bad path: fatal,
// abort process" rule for the handful of settings nothing can sensibly run
// without.
func (c *RuntimeConfig) Validate() error {
	if c.LLMAuthKey == "" {
		return fmt.Errorf("%s is required", EnvLLMAuthKey)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if info, err := os.Stat(c.DataDir); err == nil && !info.IsDir() {
		return fmt.Errorf("data directory %q is not a directory", c.DataDir)
	}
	return nil
}
