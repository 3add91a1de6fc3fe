package transcribe

import (
	"errors"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/whisper"
)

var (
	ErrEmptyUpload         = errors.New("uploaded audio is empty")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrInvalidTask         = errors.New("invalid task")
	ErrModelMissing        = errors.New("model is not installed")
	ErrBusy                = errors.New("transcription queue is busy")
)

// IsInvalidInput reports errors caused by the request rather than the server.
func IsInvalidInput(err error) bool {
	for _, target := range []error{
		ErrEmptyUpload,
		ErrUnsupportedLanguage,
		ErrInvalidTask,
		whisper.ErrUnknownModel,
		audio.ErrUnsupportedFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
