// Package root wires the validator's cobra command tree: `validator run`
// drives the evaluation loop, `validator proxy` serves the LLM Proxy, and
// `validator version` prints build metadata. Grounded on the teacher's
// cmd/root/root.go (PersistentPreRunE logging setup, RuntimeError wrapping,
// SilenceErrors/SilenceUsage convention), trimmed of the concerns that
// don't apply to a headless batch validator: no CLI-plugin mode, no TUI,
// no telemetry banner.
package root

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coderena/validator/pkg/config"
	"github.com/coderena/validator/pkg/logging"
)

type rootFlags struct {
	debugMode     bool
	logFilePath   string
	logMaxSizeMB  int64
	logMaxBackups int
	logFile       io.Closer
}

// NewRootCmd builds the validator command tree.
func NewRootCmd() *cobra.Command {
	var flags rootFlags
	runConfig := &config.RuntimeConfig{}

	cmd := &cobra.Command{
		Use:   "validator",
		Short: "validator - SWE-Bench-style coding-agent competition evaluator",
		Long:  "validator gathers miner submissions, grades them against a fixed benchmark task set inside Docker containers, and emits per-tracker scores.",
		Example: `  validator run --competition 1 --data-dir ./state
  validator proxy --listen :8080
  validator version`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.setupLogging(); err != nil {
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: func() slog.Level {
						if flags.debugMode {
							return slog.LevelDebug
						}
						return slog.LevelInfo
					}(),
				})))
			}
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if flags.logFile != nil {
				if err := flags.logFile.Close(); err != nil {
					slog.Error("failed to close log file", "error", err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: <user cache dir>/coderena-validator/validator.debug.log; only used with --debug)")
	cmd.PersistentFlags().Int64Var(&flags.logMaxSizeMB, "log-max-size-mb", 10, "Debug log file size, in MB, before it rotates")
	cmd.PersistentFlags().IntVar(&flags.logMaxBackups, "log-max-backups", logging.DefaultMaxBackups, "Number of compressed debug log generations to retain")

	addRuntimeConfigFlags(cmd, runConfig)

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd(runConfig))
	cmd.AddCommand(newProxyCmd(runConfig))
	cmd.AddCommand(newTrackingCmd(runConfig))

	return cmd
}

// Execute runs the validator CLI against args, writing to the given
// streams, and returns the (possibly wrapped) error for the caller to
// translate into a process exit code.
func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return processErr(ctx, err, stderr, rootCmd)
	}
	return nil
}

func processErr(ctx context.Context, err error, stderr io.Writer, rootCmd *cobra.Command) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var runtimeErr RuntimeError
	if errors.As(err, &runtimeErr) {
		// Runtime errors have already been logged by the command itself.
		return err
	}

	fmt.Fprintln(stderr, err)
	fmt.Fprintln(stderr)
	if strings.HasPrefix(err.Error(), "unknown command ") || strings.HasPrefix(err.Error(), "accepts ") {
		_ = rootCmd.Usage()
	}

	return err
}

// setupLogging configures slog. With --debug it writes to a rotating file
// (validator.debug.log under os.UserCacheDir()/coderena-validator by
// default, or --log-file); without it, logs are discarded. If the log file
// cannot be opened, the PersistentPreRunE in NewRootCmd installs a plain
// stderr text handler instead.
func (f *rootFlags) setupLogging() error {
	if !f.debugMode {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil
	}

	dataDir, err := os.UserCacheDir()
	if err != nil {
		dataDir = "."
	}
	dataDir = filepath.Join(dataDir, "coderena-validator")

	path := cmp.Or(strings.TrimSpace(f.logFilePath), filepath.Join(dataDir, "validator.debug.log"))

	logFile, err := logging.NewRotatingFile(path,
		logging.WithMaxSize(f.logMaxSizeMB*1024*1024),
		logging.WithMaxBackups(f.logMaxBackups),
	)
	if err != nil {
		return err
	}
	f.logFile = logFile

	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})))

	return nil
}

// RuntimeError wraps an error a command has already logged/printed itself,
// so processErr knows not to print it a second time, matching the
// teacher's root.go convention.
type RuntimeError struct {
	Err error
}

func (e RuntimeError) Error() string { return e.Err.Error() }
func (e RuntimeError) Unwrap() error { return e.Err }
