package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmueller/voxscribe/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "voxscribe v%s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
			return nil
		},
	}
}
