package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
)

type transcribeFlags struct {
	task       string
	timestamps bool
	format     string
	output     string
}

func newTranscribeCmd(app *appState) *cobra.Command {
	flags := transcribeFlags{}

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe or translate an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audioPath := filepath.Clean(args[0])
			if _, err := os.Stat(audioPath); err != nil {
				return fmt.Errorf("audio file not found: %w", err)
			}

			format, err := transcript.ParseFormat(flags.format)
			if err != nil {
				return err
			}

			svc, err := app.newService(true)
			if err != nil {
				return err
			}

			// The service reports a bad task; the label only needs a best guess.
			task, _ := whisper.ParseTask(flags.task)
			stopSpinner := startSpinner(app.progressEnabled(), cmd.ErrOrStderr(), jobLabel(task, audioPath))
			t, err := svc.Transcribe(cmd.Context(), transcribe.Job{
				AudioPath:  audioPath,
				Task:       flags.task,
				Timestamps: flags.timestamps,
			})
			stopSpinner()
			if err != nil {
				return err
			}

			if t.Blank() {
				app.log().Warn(noSpeechHint())
			}

			body, err := transcript.Render(t, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, flags.output, t, format, body, app.log())
		},
	}

	cmd.Flags().StringVar(&flags.task, "task", "transcribe", "Task: transcribe|translate (translation targets English)")
	cmd.Flags().BoolVar(&flags.timestamps, "timestamps", false, "Prefix each segment with its start and end time")
	cmd.Flags().StringVar(&flags.format, "format", string(transcript.FormatText), "Output format: txt|srt|vtt")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write to this file, or into this directory when it ends with a separator; default stdout")
	return cmd
}

// writeOutput prints body to stdout, or writes it to a file. A directory
// target gets the same file name the web download uses.
func writeOutput(cmd *cobra.Command, target string, t transcript.Transcript, format transcript.Format, body string, logger *zap.Logger) error {
	if strings.TrimSpace(target) == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), body)
		return err
	}

	if strings.HasSuffix(target, string(os.PathSeparator)) || isDir(target) {
		target = filepath.Join(target, transcript.DownloadName(t, format))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	logger.Info("transcript written", zap.String("path", target))
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func noSpeechHint() string {
	return "No speech detected. Check that the recording is audible and the language setting matches, then try again."
}
