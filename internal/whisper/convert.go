package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrConverterMissing is returned when an upload needs ffmpeg and none is
// configured or on PATH.
var ErrConverterMissing = errors.New("ffmpeg is required to decode this audio format")

const converterBinary = "ffmpeg"

// whisper.cpp decodes these itself; everything else goes through ffmpeg.
var nativeExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
}

func needsConversion(audioPath string) bool {
	return !nativeExtensions[strings.ToLower(filepath.Ext(audioPath))]
}

// locateConverter resolves a configured path or command name, falling back to
// ffmpeg on PATH. An empty result means conversion is unavailable.
func locateConverter(configured string) string {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = converterBinary
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

// convertToWAV writes 16 kHz mono PCM into dir and returns its path.
func (b *BundledEngine) convertToWAV(ctx context.Context, input, dir string) (string, error) {
	if b.Converter == "" {
		return "", fmt.Errorf("%w: %s input cannot be read by whisper-cli", ErrConverterMissing, strings.ToLower(filepath.Ext(input)))
	}
	if err := ensureExecutable(b.Converter); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConverterMissing, err)
	}

	output := filepath.Join(dir, "input.wav")
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		output,
	}

	cmd := exec.CommandContext(ctx, b.Converter, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	b.Logger.Debug("converting audio for whisper engine", zap.String("converter", b.Converter), zap.String("input", filepath.Base(input)))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("audio conversion interrupted: %w", ctxErr)
		}
		return "", fmt.Errorf("convert audio with ffmpeg: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return output, nil
}
