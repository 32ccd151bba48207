package root

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version, Commit and BuildTime are overridden at build time via
// -ldflags "-X github.com/coderena/validator/cmd/root.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Display the validator's version, build time, and commit hash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "validator version %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Build time: %s\n", BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", Commit)
			return nil
		},
	}
}
