package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech model assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := app.newModelManager()
			if err != nil {
				return err
			}

			name := app.cfg.Whisper.Model
			app.log().Info("checking model", zap.String("model", name), zap.String("dir", models.Dir()))

			resolved, downloaded, err := models.Install(cmd.Context(), name)
			if err != nil {
				return err
			}

			if !downloaded {
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", resolved.Name, resolved.Path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", resolved.Name, resolved.Path)
			return nil
		},
	}
}
