package root

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coderena/validator/pkg/config"
	"github.com/coderena/validator/pkg/dockerutil"
	"github.com/coderena/validator/pkg/evaluator"
	"github.com/coderena/validator/pkg/grader"
	"github.com/coderena/validator/pkg/llmproxy"
	"github.com/coderena/validator/pkg/pipeline"
	"github.com/coderena/validator/pkg/task"
	"github.com/coderena/validator/pkg/tracking"
)

func newRunCmd(runConfig *config.RuntimeConfig) *cobra.Command {
	var (
		fleetFile       string
		datasetFile     string
		proxyListenAddr string
		pushImages      bool
		rounds          int
		roundInterval   time.Duration
		numKeep         int
		numWanted       int
		judgeModel      string
		showProgress    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the evaluation loop (spec.md §2)",
		Long:  "Discover miner submissions, validate and dedup them, grade them against a fixed task set in Docker containers, and persist scores.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			runConfig.LoadSecrets(ctx)
			if err := runConfig.Validate(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return RuntimeError{Err: err}
			}
			if fleetFile == "" {
				err := fmt.Errorf("--fleet-file is required")
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return RuntimeError{Err: err}
			}

			orchestrator := newOrchestrator(runConfig)

			forwarder := llmproxy.NewProviderForwarder()
			proxy := llmproxy.New(runConfig.LLMAuthKey, runConfig.OpenRouterAPIKey, forwarder)
			if runConfig.ModelRegistryFile != "" {
				watcher := config.NewRegistryWatcher(proxy.SetRegistry)
				if err := watcher.Watch(runConfig.ModelRegistryFile); err != nil {
					err = fmt.Errorf("watching model registry file: %w", err)
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					return RuntimeError{Err: err}
				}
				defer watcher.Stop()
			}

			// The proxy's HTTP surface must be reachable from inside task
			// containers (via HOST_IP); the same *llmproxy.Server also
			// satisfies evaluator.LLMProxy in-process, bypassing HTTP for
			// the pipeline's own InitKey/Reset calls (spec.md §4.4 step 3,
			// 4f), per server.go's doc comment on that split.
			httpServer := &http.Server{
				Addr:              proxyListenAddr,
				Handler:           proxy.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("llm proxy server stopped unexpectedly", "error", err)
				}
			}()
			defer httpServer.Close()

			grdr := grader.New(orchestrator)

			trackingStore, err := tracking.NewStore(runConfig.DataDir, runConfig.CompetitionID)
			if err != nil {
				return RuntimeError{Err: err}
			}

			judge := tracking.NewLLMJudge(runConfig.OpenRouterAPIKey, judgeModel)
			validator := tracking.NewValidator(judge)
			validator.LoadCache(trackingStore.ValidationCache())

			mg, dc, err := loadFleet(fleetFile)
			if err != nil {
				return RuntimeError{Err: err}
			}

			reg := tracking.NewRegistry(trackingStore, mg, dc, validator)

			ev := evaluator.New(orchestrator, grdr, proxy, reg, runConfig.CompetitionID)
			if runConfig.WorkerLimit > 0 {
				ev.WorkerLimit = runConfig.WorkerLimit
			}
			if runConfig.RunnerTimeoutSeconds > 0 {
				ev.RunnerTimeout = time.Duration(runConfig.RunnerTimeoutSeconds) * time.Second
			}
			ev.HostIP = runConfig.HostIP
			ev.OpenRouterAPIKey = runConfig.OpenRouterAPIKey
			if showProgress {
				ev.Progress = evaluator.NewProgress(cmd.OutOrStdout())
			}

			taskStore, err := task.NewStore(runConfig.DataDir, runConfig.CompetitionID)
			if err != nil {
				return RuntimeError{Err: err}
			}

			var dataset task.Dataset
			if datasetFile != "" {
				ds, err := loadDataset(datasetFile)
				if err != nil {
					return RuntimeError{Err: err}
				}
				dataset = ds
			}

			builder := &task.Builder{
				Orchestrator:    orchestrator,
				Env:             runConfig.EnvProvider(),
				BaseImageFamily: evalImageFamily,
				PushImages:      pushImages,
			}

			pl := pipeline.New(runConfig.CompetitionID, taskStore, builder, dataset, reg, ev, mg, dc)
			pl.NumKeep = numKeep
			pl.NumWanted = numWanted

			history, err := tracking.OpenHistory(runConfig.DataDir, runConfig.CompetitionID)
			if err != nil {
				return RuntimeError{Err: err}
			}
			defer history.Close()
			pl.History = history

			for round := 0; rounds <= 0 || round < rounds; round++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				if dataset != nil && pl.NumWanted >= 0 {
					if err := pl.RefreshTasks(ctx); err != nil {
						return RuntimeError{Err: fmt.Errorf("refreshing tasks: %w", err)}
					}
				}

				if err := pl.Evaluate(ctx, 1); err != nil {
					return RuntimeError{Err: err}
				}
				if err := trackingStore.SaveValidationCache(validator.Cache()); err != nil {
					return RuntimeError{Err: err}
				}

				if rounds > 0 && round == rounds-1 {
					break
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(roundInterval):
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&fleetFile, "fleet-file", "", "YAML file describing the miner set to grade (see SPEC_FULL.md §6)")
	cmd.Flags().StringVar(&datasetFile, "dataset", "", "YAML file of benchmark records used to (re)build the task list")
	cmd.Flags().StringVar(&proxyListenAddr, "proxy-listen", ":8080", "Address the in-process LLM Proxy listens on for container callbacks")
	cmd.Flags().BoolVar(&pushImages, "push-images", false, "Push built eval images to the shared registry for peer validators to reuse")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "Number of evaluation rounds to run (<=0 runs until cancelled)")
	cmd.Flags().DurationVar(&roundInterval, "round-interval", time.Minute, "Delay between evaluation rounds")
	cmd.Flags().IntVar(&numKeep, "num-keep", 0, "Rotation: number of oldest tasks to drop before refreshing (spec.md §4.2)")
	cmd.Flags().IntVar(&numWanted, "num-wanted", -1, "Rotation: target task-list length after refreshing (-1 disables rotation)")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "Model name the anti-hardcoding LLM judge calls (default gpt-4o-mini)")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Render a live progress bar for each evaluation round")

	return cmd
}

// newOrchestrator returns a local or remote dockerutil.Orchestrator
// depending on whether RemoteDockerHost is set, spec.md §4.1's two-backend
// requirement.
func newOrchestrator(runConfig *config.RuntimeConfig) *dockerutil.Orchestrator {
	registry := strings.TrimSpace(runConfig.ImageRegistry)
	if runConfig.RemoteDockerHost != "" {
		return dockerutil.NewRemote(runConfig.RemoteDockerHost, registry)
	}
	return dockerutil.New(registry)
}

// evalImageFamily derives the vendored base-image family tag for repo as
// swe-env-<repo>:latest, with "/" replaced by "-" and lowercased. The tag
// has no <version> segment, since the benchmark record does not carry a
// separate harness version field in this implementation.
func evalImageFamily(repo string) string {
	sanitized := strings.ToLower(strings.ReplaceAll(repo, "/", "-"))
	return fmt.Sprintf("swe-env-%s:latest", sanitized)
}
