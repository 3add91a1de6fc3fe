package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Containers are accepted by file extension only; decoding is left to the engine.
var supportedExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg"}

func SupportedExtensions() []string {
	out := make([]string, len(supportedExtensions))
	copy(out, supportedExtensions)
	return out
}

func ValidateExtension(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	for _, candidate := range supportedExtensions {
		if ext == candidate {
			return ext, nil
		}
	}

	if ext == "" {
		return "", fmt.Errorf("%w: %q has no file extension (supported: %s)", ErrUnsupportedFormat, name, strings.Join(supportedExtensions, ", "))
	}
	return "", fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(supportedExtensions, ", "))
}

// AcceptAttribute renders the extensions for an HTML file input.
func AcceptAttribute() string {
	return strings.Join(supportedExtensions, ",")
}
