package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	BundledEngineName = "bundled"
	executableEnv     = "VOXSCRIBE_WHISPER_PATH"
)

type BundledOptions struct {
	// Executable overrides engine discovery. VOXSCRIBE_WHISPER_PATH wins over it.
	Executable string
	// FFmpeg converts containers whisper-cli cannot decode. Empty looks up
	// ffmpeg on PATH.
	FFmpeg  string
	Threads int
	Logger  *zap.Logger
}

// BundledEngine drives a whisper.cpp command line binary per request.
type BundledEngine struct {
	Executable string
	// Converter is the ffmpeg binary; empty when none was found.
	Converter string
	Threads   int
	Logger    *zap.Logger
}

func NewBundledEngine(opts BundledOptions) (*BundledEngine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	executable, err := locateExecutable(opts.Executable)
	if err != nil {
		return nil, err
	}

	converter := locateConverter(opts.FFmpeg)
	if converter == "" {
		logger.Debug("ffmpeg not found; m4a uploads will be rejected by the bundled engine")
	}

	return &BundledEngine{Executable: executable, Converter: converter, Threads: opts.Threads, Logger: logger}, nil
}

func locateExecutable(configured string) (string, error) {
	if override := strings.TrimSpace(os.Getenv(executableEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("%s is not executable: %w", executableEnv, err)
		}
		return override, nil
	}

	if configured = strings.TrimSpace(configured); configured != "" {
		if err := ensureExecutable(configured); err != nil {
			return "", fmt.Errorf("configured whisper executable is not usable: %w", err)
		}
		return configured, nil
	}

	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve voxscribe executable path: %w", err)
	}

	if path, err := ResolveBundledEnginePath(self); err == nil {
		return path, nil
	}

	if path, err := exec.LookPath(engineBinaryName()); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("whisper engine not found near %s or on PATH; install whisper.cpp, set %s, or expected at ../libexec/whisper/%s", self, executableEnv, engineBinaryName())
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("bundled whisper engine not found near %s", selfExecutable)
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := fmt.Sprintf("%s_%s", runtime.GOOS, normalizeArch(runtime.GOARCH))

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (b *BundledEngine) Name() string { return BundledEngineName }

func (b *BundledEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return Result{}, errors.New("model path is required")
	}
	if err := ensureExecutable(b.Executable); err != nil {
		return Result{}, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	outDir, err := os.MkdirTemp("", "voxscribe-out-")
	if err != nil {
		return Result{}, fmt.Errorf("create whisper output directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	if needsConversion(req.AudioPath) {
		converted, err := b.convertToWAV(ctx, req.AudioPath, outDir)
		if err != nil {
			return Result{}, err
		}
		req.AudioPath = converted
	}

	outBase := filepath.Join(outDir, "transcript")
	args := b.buildArgs(req, outBase)

	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	started := time.Now()
	b.Logger.Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("whisper transcribe interrupted: %w", ctxErr)
		}
		return Result{}, b.describeFailure(err, strings.TrimSpace(stderr.String()))
	}
	b.Logger.Debug("whisper engine finished", zap.Duration("elapsed", time.Since(started)))

	content, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}

	result, err := parseCppOutput(content)
	if err != nil {
		return Result{}, err
	}
	if result.Language == "" && req.Language != AutoLanguage {
		result.Language = req.Language
	}
	return result, nil
}

func (b *BundledEngine) buildArgs(req Request, outBase string) []string {
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = AutoLanguage
	}

	args := []string{"-m", req.ModelPath, "-f", req.AudioPath, "-np", "-oj", "-of", outBase, "-l", lang}
	if req.Task == TaskTranslate {
		args = append(args, "-tr")
	}
	if b.Threads > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", b.Threads))
	}
	return args
}

func (b *BundledEngine) describeFailure(err error, errText string) error {
	if isMissingSharedLibraryError(errText) {
		return fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
	}
	if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
		return fmt.Errorf("whisper engine crashed with an illegal CPU instruction; " +
			"your CPU may lack required instruction set extensions; " +
			"set " + executableEnv + " to a whisper-cli binary built for your CPU")
	}
	return fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
}

// cppOutput mirrors the subset of whisper.cpp's -oj document we consume.
type cppOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseCppOutput(content []byte) (Result, error) {
	var doc cppOutput
	if err := json.Unmarshal(content, &doc); err != nil {
		return Result{}, fmt.Errorf("decode whisper output: %w", err)
	}

	segments := make([]Segment, 0, len(doc.Transcription))
	for _, item := range doc.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Start: time.Duration(item.Offsets.From) * time.Millisecond,
			End:   time.Duration(item.Offsets.To) * time.Millisecond,
			Text:  text,
		})
	}

	return Result{
		Text:     joinSegments(segments),
		Language: doc.Result.Language,
		Segments: segments,
	}, nil
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	for _, pattern := range []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	} {
		if strings.Contains(value, pattern) {
			return true
		}
	}
	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}

func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}
