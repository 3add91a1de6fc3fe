package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/whisper"
)

func newModelsCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List speech models and whether they are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var statuses []transcribe.ModelStatus
			if app.localModels() {
				models, err := app.newModelManager()
				if err != nil {
					return err
				}
				statuses = models.Status()
			} else {
				for _, model := range whisper.Models() {
					statuses = append(statuses, transcribe.ModelStatus{Model: model, Available: true})
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tSTATUS")
			for _, status := range statuses {
				state := "not installed"
				switch {
				case !app.localModels():
					state = "remote"
				case status.Available:
					state = "installed"
				}
				marker := ""
				if status.Name == app.cfg.Whisper.Model {
					marker = " (default)"
				}
				fmt.Fprintf(w, "%s%s\t%d MB\t%s\n", status.Name, marker, status.SizeMB, state)
			}
			return w.Flush()
		},
	}
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported language codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tLANGUAGE")
			for _, lang := range whisper.Languages() {
				fmt.Fprintf(w, "%s\t%s\n", lang.Code, lang.Name)
			}
			return w.Flush()
		},
	}
}
