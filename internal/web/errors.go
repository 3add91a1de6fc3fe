package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
)

var (
	errMissingAudio = errors.New("audio file is required")
	errBadRequest   = errors.New("bad request")
)

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, multipart.ErrMessageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errMissingAudio), errors.Is(err, errBadRequest), transcribe.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, transcript.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, whisper.ErrConverterMissing):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, transcribe.ErrModelMissing), errors.Is(err, transcribe.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the error text shown in the page or the JSON body. Server
// side failures get a fixed text; the detail only goes to the request log.
func userMessage(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return fmt.Sprintf("upload exceeds the %d MB limit", tooLarge.Limit>>20)
	case errors.Is(err, multipart.ErrMessageTooLarge):
		return "upload is too large"
	case errors.Is(err, whisper.ErrConverterMissing):
		return "this server cannot decode that audio format; try mp3, wav, flac or ogg"
	case errors.Is(err, transcribe.ErrModelMissing):
		return "the selected model is not installed on this server"
	case errors.Is(err, transcribe.ErrBusy):
		return "the server is busy, please try again shortly"
	}
	if statusFor(err) >= http.StatusInternalServerError {
		return "transcription failed on the server"
	}
	return err.Error()
}
