package root

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/coderena/validator/pkg/config"
	"github.com/coderena/validator/pkg/llmproxy"
)

func newProxyCmd(runConfig *config.RuntimeConfig) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the LLM Proxy (SPEC_FULL.md §4.6)",
		Long:  "Run the standalone HTTP service task containers use for metered, credentialed calls to external chat models.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			runConfig.LoadSecrets(ctx)

			if runConfig.LLMAuthKey == "" {
				err := fmt.Errorf("%s is required", config.EnvLLMAuthKey)
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return RuntimeError{Err: err}
			}

			forwarder := llmproxy.NewProviderForwarder()
			srv := llmproxy.New(runConfig.LLMAuthKey, runConfig.OpenRouterAPIKey, forwarder)

			if runConfig.ModelRegistryFile != "" {
				watcher := config.NewRegistryWatcher(srv.SetRegistry)
				if err := watcher.Watch(runConfig.ModelRegistryFile); err != nil {
					err = fmt.Errorf("watching model registry file: %w", err)
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					return RuntimeError{Err: err}
				}
				defer watcher.Stop()
			}

			httpServer := &http.Server{
				Addr:              listenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("llm proxy listening", "addr", listenAddr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					return
				}
				errCh <- nil
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return RuntimeError{Err: err}
				}
				return ctx.Err()
			case err := <-errCh:
				if err != nil {
					return RuntimeError{Err: err}
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Address the LLM proxy listens on")

	return cmd
}
