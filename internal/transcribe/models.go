package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/whisper"
)

type ModelManagerOptions struct {
	Dir          string
	AutoDownload bool
	NoProgress   bool
	Download     DownloadFunc
	Logger       *zap.Logger
}

// ModelManager owns the ggml files in one model directory.
type ModelManager struct {
	opts      ModelManagerOptions
	downloads singleflight.Group
	logger    *zap.Logger
}

func NewModelManager(opts ModelManagerOptions) (*ModelManager, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("model directory is required for local models")
	}
	if opts.Download == nil {
		opts.Download = download.DownloadFile
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ModelManager{opts: opts, logger: opts.Logger}, nil
}

func (m *ModelManager) Dir() string { return m.opts.Dir }

// Ensure resolves name in the model directory and downloads it when missing
// and auto-download is on. Concurrent callers share one download.
func (m *ModelManager) Ensure(ctx context.Context, name string) (whisper.ResolvedModel, error) {
	resolved, err := whisper.ResolveModel(name, m.opts.Dir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !m.opts.AutoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("%w: %q expected at %s; run `voxscribe setup --model %s` or enable auto-download", ErrModelMissing, resolved.Name, resolved.Path, resolved.Name)
	}

	shared, err := m.shared(ctx, resolved, false)
	if err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}
	if shared {
		m.logger.Debug("joined in-flight model download", zap.String("model", resolved.Name))
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

// Install makes sure a named model is present and intact, replacing a copy
// whose checksum does not match. It reports whether a download happened.
func (m *ModelManager) Install(ctx context.Context, name string) (whisper.ResolvedModel, bool, error) {
	resolved, err := whisper.ResolveModel(name, m.opts.Dir)
	if err != nil {
		return whisper.ResolvedModel{}, false, err
	}
	if resolved.IsCustomPath {
		return whisper.ResolvedModel{}, false, fmt.Errorf("setup expects a named model; got custom path %s", resolved.Path)
	}

	if !resolved.NeedsDownload {
		err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256)
		if err == nil {
			return resolved, false, nil
		}
		if !errors.Is(err, download.ErrChecksumMismatch) {
			return whisper.ResolvedModel{}, false, err
		}
		m.logger.Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
	}

	if _, err := m.shared(ctx, resolved, true); err != nil {
		return whisper.ResolvedModel{}, false, fmt.Errorf("download model %s: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, true, nil
}

// shared runs one download per model path, detached from the caller that
// started it. Each caller stops waiting when its own context ends. Unless
// replace is set, a file that appeared in the meantime counts as done.
func (m *ModelManager) shared(ctx context.Context, model whisper.ResolvedModel, replace bool) (bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.downloads.DoChan(model.Path, func() (any, error) {
		if !replace {
			if _, err := os.Stat(model.Path); err == nil {
				return nil, nil
			}
		}
		return nil, m.fetch(detached, model)
	})

	select {
	case res := <-ch:
		return res.Shared, res.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Status lists the registry with whether each model is on disk.
func (m *ModelManager) Status() []ModelStatus {
	models := whisper.Models()
	out := make([]ModelStatus, 0, len(models))
	for _, model := range models {
		status := ModelStatus{Model: model}
		if resolved, err := whisper.ResolveModel(model.Name, m.opts.Dir); err == nil {
			status.Available = !resolved.NeedsDownload
		}
		out = append(out, status)
	}
	return out
}

func (m *ModelManager) fetch(ctx context.Context, model whisper.ResolvedModel) error {
	m.logger.Info("model not found, downloading", zap.String("model", model.Name), zap.String("destination", model.Path))

	lastDecile := int64(-1)
	return m.opts.Download(ctx, download.Options{
		URL:            model.URL,
		Destination:    model.Path,
		ExpectedSHA256: model.SHA256,
		NoProgress:     m.opts.NoProgress,
		Logger:         m.logger,
		OnProgress: func(written, total int64) {
			if total <= 0 {
				return
			}
			if decile := written * 10 / total; decile != lastDecile {
				lastDecile = decile
				m.logger.Debug("model download progress", zap.String("model", model.Name), zap.Int64("percent", decile*10))
			}
		},
	})
}

// EnsureModel makes the named model available to the local engine.
func (s *Service) EnsureModel(ctx context.Context, name string) (whisper.ResolvedModel, error) {
	if s.models == nil {
		return whisper.ResolvedModel{}, fmt.Errorf("engine %s does not use local models", s.EngineName())
	}
	return s.models.Ensure(ctx, name)
}

func (s *Service) InstallModel(ctx context.Context, name string) (whisper.ResolvedModel, bool, error) {
	if s.models == nil {
		return whisper.ResolvedModel{}, false, fmt.Errorf("engine %s does not use local models", s.EngineName())
	}
	return s.models.Install(ctx, name)
}

// Models lists the registry with availability for the configured engine.
// Remote engines fetch nothing locally, so every model counts as available.
func (s *Service) Models() []ModelStatus {
	if s.models != nil {
		return s.models.Status()
	}
	models := whisper.Models()
	out := make([]ModelStatus, 0, len(models))
	for _, model := range models {
		out = append(out, ModelStatus{Model: model, Available: true})
	}
	return out
}
