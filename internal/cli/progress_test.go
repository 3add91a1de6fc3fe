package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fmueller/voxscribe/internal/whisper"
)

func TestJobLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Transcribing memo.m4a", jobLabel(whisper.TaskTranscribe, "/tmp/in/memo.m4a"))
	require.Equal(t, "Transcribing memo.m4a", jobLabel("", "memo.m4a"))
	require.Equal(t, "Translating talk.ogg", jobLabel(whisper.TaskTranslate, "talk.ogg"))
}

func TestStartSpinnerStopsOnce(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	stop := startSpinner(true, &out, "Transcribing memo.m4a")
	stop()
	stop()
}

func TestStartSpinnerDisabledWritesNothing(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	stop := startSpinner(false, &out, "Transcribing memo.m4a")
	stop()
	require.Zero(t, out.Len())

	startSpinner(true, nil, "Transcribing memo.m4a")()
}
