package root

import (
	"github.com/spf13/cobra"

	"github.com/coderena/validator/pkg/config"
)

// addRuntimeConfigFlags registers the flags shared by every subcommand that
// needs a RuntimeConfig, following the teacher's addGatewayFlags pattern:
// flags win over environment variables, which RuntimeConfig.LoadSecrets
// applies in each subcommand's RunE before use.
func addRuntimeConfigFlags(cmd *cobra.Command, runConfig *config.RuntimeConfig) {
	cmd.PersistentFlags().IntVar(&runConfig.CompetitionID, "competition", 1, "Competition id scoping persisted Task/TrackingInfo state")
	cmd.PersistentFlags().StringVar(&runConfig.DataDir, "data-dir", "./data", "Directory holding tasks_<id>.json/trackers_<id>.json/models_<id>.json")
	cmd.PersistentFlags().StringVar(&runConfig.RemoteDockerHost, "remote-docker-host", "", "Remote Docker daemon URL (overrides REMOTE_DOCKER_HOST)")
	cmd.PersistentFlags().StringVar(&runConfig.ImageRegistry, "image-registry", "", "Shared registry host used to move built images between hosts")
	cmd.PersistentFlags().StringVar(&runConfig.HostIP, "host-ip", "", "Host IP forwarded into task containers as HOST_IP (overrides DOCKER_HOST_IP)")
	cmd.PersistentFlags().StringVar(&runConfig.ModelRegistryFile, "model-registry-file", "", "YAML file of llm_name -> {provider,model,max_tokens}, hot-reloaded")
	cmd.PersistentFlags().IntVar(&runConfig.WorkerLimit, "worker-limit", 0, "Override the per-tracker task worker pool size (0 = spec default of 8)")
	cmd.PersistentFlags().IntVar(&runConfig.RunnerTimeoutSeconds, "runner-timeout", 0, "Override the in-container runner wall-clock timeout in seconds (0 = spec default of 600)")
}
