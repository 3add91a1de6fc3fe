package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/fmueller/voxscribe/internal/config"
	"github.com/fmueller/voxscribe/internal/logging"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/version"
	"github.com/fmueller/voxscribe/internal/whisper"
)

type appState struct {
	configFile string
	noProgress bool

	cfg    config.Config
	logger *zap.Logger

	newEngine func(cfg config.Config, logger *zap.Logger) (whisper.Engine, error)
	download  transcribe.DownloadFunc
}

func newAppState() *appState {
	return &appState{
		cfg:       config.Default(),
		newEngine: buildEngine,
	}
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:           "voxscribe",
		Short:         "Transcribe and translate audio files with whisper models from the browser",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.serve(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&app.configFile, "config", "", "Config file (default: ./voxscribe.yaml or the user config directory)")
	pf.String("log-level", defaults.Log.Level, "Log level: debug|info|warn|error")
	pf.Bool("verbose", defaults.Log.Verbose, "Enable verbose logs")
	pf.Bool("json", defaults.Log.JSON, "Enable JSON logging")
	pf.BoolVar(&app.noProgress, "no-progress", false, "Disable progress indicators")
	bindEngineFlags(pf, defaults)

	bindServerFlags(cmd.Flags(), defaults)

	cmd.AddCommand(newServeCmd(app, defaults))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newLanguagesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindEngineFlags(fs *pflag.FlagSet, defaults config.Config) {
	fs.String("engine", defaults.Whisper.Engine, "Transcription engine: bundled|openai")
	fs.String("model", defaults.Whisper.Model, "Model name or model file path")
	fs.String("model-dir", defaults.Whisper.ModelDir, "Directory where models are stored")
	fs.String("language", defaults.Whisper.Language, "Language code (auto|en|de|...) for transcription")
	fs.Bool("auto-download", defaults.Whisper.AutoDownload, "Automatically download missing models")
	fs.String("whisper-path", defaults.Whisper.Executable, "Path to the whisper-cli executable")
	fs.String("ffmpeg-path", defaults.Whisper.FFmpeg, "ffmpeg used to convert m4a audio for the bundled engine")
	fs.Int("threads", defaults.Whisper.Threads, "Inference threads for the bundled engine; 0 uses the engine default")
	fs.String("openai-base-url", defaults.OpenAI.BaseURL, "Base URL of an OpenAI compatible speech API")
	fs.String("openai-model", defaults.OpenAI.Model, "Remote model name; empty sends whisper-1 for built-in model sizes")
	fs.Bool("silence-gate", defaults.Silence.Enabled, "Detect near-silent WAV audio and skip transcription")
	fs.Float64("silence-threshold-dbfs", defaults.Silence.ThresholdDBFS, "Silence gate threshold in dBFS")
}

func bindServerFlags(fs *pflag.FlagSet, defaults config.Config) {
	fs.String("host", defaults.Server.Host, "Address to listen on")
	fs.Int("port", defaults.Server.Port, "Port to listen on")
	fs.Int64("max-upload-mb", defaults.Server.MaxUploadMB, "Largest accepted upload in MB")
	fs.Int64("max-concurrent", defaults.Whisper.MaxConcurrent, "Transcriptions allowed to run at once")
	fs.Duration("transcript-ttl", defaults.Transcripts.TTL, "How long finished transcripts stay downloadable")
	fs.Int("max-transcripts", defaults.Transcripts.MaxEntries, "Finished transcripts kept in memory at most")
}

// init resolves the configuration for the running command and sets up
// logging from it.
func (a *appState) init(flags *pflag.FlagSet) error {
	cfg, err := config.Load(config.LoadOptions{File: a.configFile, Flags: flags})
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

func buildEngine(cfg config.Config, logger *zap.Logger) (whisper.Engine, error) {
	switch cfg.Whisper.Engine {
	case whisper.OpenAIEngineName:
		return whisper.NewOpenAIEngine(whisper.OpenAIOptions{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
			Logger:  logger,
		}), nil
	case whisper.BundledEngineName:
		return whisper.NewBundledEngine(whisper.BundledOptions{
			Executable: cfg.Whisper.Executable,
			FFmpeg:     cfg.Whisper.FFmpeg,
			Threads:    cfg.Whisper.Threads,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Whisper.Engine)
	}
}

func (a *appState) localModels() bool {
	return a.cfg.Whisper.Engine == whisper.BundledEngineName
}

// newService wires the configured engine into a transcription service.
// allowCustomModel lets callers pass a ggml file path instead of a name.
func (a *appState) newService(allowCustomModel bool) (*transcribe.Service, error) {
	engine, err := a.newEngine(a.cfg, a.log())
	if err != nil {
		return nil, err
	}

	opts := transcribe.Options{
		Engine:           engine,
		LocalModels:      a.localModels(),
		DefaultModel:     a.cfg.Whisper.Model,
		DefaultLanguage:  a.cfg.Whisper.Language,
		AutoDownload:     a.cfg.Whisper.AutoDownload,
		AllowCustomModel: allowCustomModel,
		SilenceGate:      a.cfg.Silence.Enabled,
		SilenceDBFS:      a.cfg.Silence.ThresholdDBFS,
		MaxConcurrent:    a.cfg.Whisper.MaxConcurrent,
		NoProgress:       !a.progressEnabled(),
		Download:         a.download,
		Logger:           a.log(),
	}
	if opts.LocalModels {
		if opts.ModelDir, err = a.modelStorageDir(); err != nil {
			return nil, err
		}
	}
	return transcribe.New(opts)
}

func (a *appState) newModelManager() (*transcribe.ModelManager, error) {
	dir, err := a.modelStorageDir()
	if err != nil {
		return nil, err
	}
	return transcribe.NewModelManager(transcribe.ModelManagerOptions{
		Dir:          dir,
		AutoDownload: a.cfg.Whisper.AutoDownload,
		NoProgress:   !a.progressEnabled(),
		Download:     a.download,
		Logger:       a.log(),
	})
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.cfg.Whisper.ModelDir)
	if err != nil {
		return "", err
	}
	return platform.EnsureDir(dir)
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
