package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
)

type DownloadFunc func(ctx context.Context, opts download.Options) error

type Options struct {
	Engine whisper.Engine
	// LocalModels is set for engines that read ggml files from ModelDir.
	LocalModels      bool
	ModelDir         string
	DefaultModel     string
	DefaultLanguage  string
	AutoDownload     bool
	AllowCustomModel bool
	SilenceGate      bool
	SilenceDBFS      float64
	MaxConcurrent    int64
	NoProgress       bool
	TempDir          string
	Download         DownloadFunc
	Logger           *zap.Logger
}

// Job is one transcription request. Exactly one of Audio or AudioPath is set.
type Job struct {
	FileName   string
	Audio      io.Reader
	AudioPath  string
	Model      string
	Language   string
	Task       string
	Timestamps bool
}

type ModelStatus struct {
	whisper.Model
	Available bool `json:"available"`
}

type Service struct {
	opts   Options
	slots  *semaphore.Weighted
	models *ModelManager
	logger *zap.Logger
}

func New(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, errors.New("transcription engine is required")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = whisper.DefaultModel
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = whisper.AutoLanguage
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Service{
		opts:   opts,
		slots:  semaphore.NewWeighted(opts.MaxConcurrent),
		logger: opts.Logger,
	}
	if opts.LocalModels {
		models, err := NewModelManager(ModelManagerOptions{
			Dir:          opts.ModelDir,
			AutoDownload: opts.AutoDownload,
			NoProgress:   opts.NoProgress,
			Download:     opts.Download,
			Logger:       opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		s.models = models
	}
	return s, nil
}

func (s *Service) EngineName() string { return s.opts.Engine.Name() }

func (s *Service) DefaultModel() string { return s.opts.DefaultModel }

func (s *Service) DefaultLanguage() string { return s.opts.DefaultLanguage }

// Transcribe runs job through the engine. Uploaded audio is spooled to a
// temporary file that is removed before Transcribe returns.
func (s *Service) Transcribe(ctx context.Context, job Job) (transcript.Transcript, error) {
	fileName := job.FileName
	if fileName == "" && job.AudioPath != "" {
		fileName = filepath.Base(job.AudioPath)
	}

	ext, err := audio.ValidateExtension(fileName)
	if err != nil {
		return transcript.Transcript{}, err
	}

	task, err := whisper.ParseTask(job.Task)
	if err != nil {
		return transcript.Transcript{}, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	language := job.Language
	if strings.TrimSpace(language) == "" {
		language = s.opts.DefaultLanguage
	}
	language, err = whisper.NormalizeLanguage(language)
	if err != nil {
		return transcript.Transcript{}, fmt.Errorf("%w: %v", ErrUnsupportedLanguage, err)
	}

	modelName, err := s.modelName(job.Model)
	if err != nil {
		return transcript.Transcript{}, err
	}

	audioPath, cleanup, err := s.stage(job, ext)
	if err != nil {
		return transcript.Transcript{}, err
	}
	defer cleanup()

	out := transcript.Transcript{
		FileName:   filepath.Base(fileName),
		Model:      modelName,
		Engine:     s.opts.Engine.Name(),
		Language:   language,
		Task:       task,
		Timestamps: job.Timestamps,
	}

	if s.silent(audioPath, ext) {
		out.Text = transcript.BlankAudioToken
		out.Skipped = true
		return out, nil
	}

	req := whisper.Request{AudioPath: audioPath, ModelName: modelName, Language: language, Task: task}
	if s.opts.LocalModels {
		model, err := s.EnsureModel(ctx, modelName)
		if err != nil {
			return transcript.Transcript{}, err
		}
		req.ModelPath = model.Path
		out.Model = model.Name
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return transcript.Transcript{}, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer s.slots.Release(1)

	s.logger.Info("transcribing...",
		zap.String("file", out.FileName),
		zap.String("engine", out.Engine),
		zap.String("model", out.Model),
		zap.String("language", language),
		zap.String("task", string(task)),
	)
	started := time.Now()
	result, err := s.opts.Engine.Transcribe(ctx, req)
	out.Elapsed = time.Since(started)
	if err != nil {
		s.logger.Warn("transcription failed", zap.Duration("elapsed", out.Elapsed), zap.Error(err))
		return transcript.Transcript{}, err
	}
	s.logger.Info("transcription finished", zap.Duration("elapsed", out.Elapsed), zap.Int("segments", len(result.Segments)))

	out.Text = strings.TrimSpace(result.Text)
	if out.Text == "" {
		out.Text = transcript.BlankAudioToken
	}
	out.Segments = result.Segments
	if result.Language != "" && language == whisper.AutoLanguage {
		out.Language = result.Language
	}
	return out, nil
}

func (s *Service) modelName(requested string) (string, error) {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = s.opts.DefaultModel
	}

	if model, ok := whisper.LookupModel(name); ok {
		return model.Name, nil
	}
	if s.opts.AllowCustomModel {
		return name, nil
	}
	return "", fmt.Errorf("%w %q (known models: %s)", whisper.ErrUnknownModel, name, strings.Join(whisper.ModelNames(), ", "))
}

// stage returns a path the engine can read plus a cleanup func.
func (s *Service) stage(job Job, ext string) (string, func(), error) {
	noop := func() {}

	if job.Audio == nil {
		path := filepath.Clean(job.AudioPath)
		info, err := os.Stat(path)
		if err != nil {
			return "", noop, fmt.Errorf("audio file not found: %w", err)
		}
		if info.Size() == 0 {
			return "", noop, ErrEmptyUpload
		}
		return path, noop, nil
	}

	f, err := os.CreateTemp(s.opts.TempDir, "voxscribe-upload-*"+ext)
	if err != nil {
		return "", noop, fmt.Errorf("create upload file: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}

	written, err := io.Copy(f, job.Audio)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("store upload: %w", err)
	}
	if written == 0 {
		cleanup()
		return "", noop, ErrEmptyUpload
	}

	s.logger.Debug("upload staged", zap.String("path", path), zap.Int64("bytes", written))
	return path, cleanup, nil
}

func (s *Service) silent(path, ext string) bool {
	if !s.opts.SilenceGate || ext != ".wav" {
		return false
	}

	silent, levels, err := audio.IsSilentWAV(path, s.opts.SilenceDBFS)
	if err != nil {
		s.logger.Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", path))
		return false
	}
	if !silent {
		return false
	}

	s.logger.Info(
		"audio considered silent; skipping transcription",
		zap.Float64("rms_dbfs", levels.RMSdBFS),
		zap.Float64("peak_dbfs", levels.PeakdBFS),
		zap.Float64("threshold_dbfs", s.opts.SilenceDBFS),
		zap.Duration("duration", levels.Duration),
	)
	return true
}
