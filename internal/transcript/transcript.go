package transcript

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/whisper"
)

// BlankAudioToken is what whisper emits, and what voxscribe returns, for
// audio without speech.
const BlankAudioToken = "[BLANK_AUDIO]"

type Transcript struct {
	ID         string            `json:"id"`
	FileName   string            `json:"file_name"`
	Model      string            `json:"model"`
	Engine     string            `json:"engine"`
	Language   string            `json:"language"`
	Task       whisper.Task      `json:"task"`
	Timestamps bool              `json:"timestamps"`
	Text       string            `json:"text"`
	Segments   []whisper.Segment `json:"segments,omitempty"`
	Skipped    bool              `json:"skipped,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
	CreatedAt  time.Time         `json:"created_at"`
}

func IsBlank(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == "" || strings.EqualFold(trimmed, BlankAudioToken)
}

func (t Transcript) Blank() bool {
	return IsBlank(t.Text)
}

// DownloadName derives "<audio base name>.<format>" for the attachment.
func DownloadName(t Transcript, format Format) string {
	base := strings.TrimSuffix(filepath.Base(t.FileName), filepath.Ext(t.FileName))
	base = sanitizeFileName(base)
	if base == "" || base == "." {
		base = "transcript"
	}
	if t.Task == whisper.TaskTranslate {
		base += ".en"
	}
	return base + "." + string(format)
}

func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\' || r == '/' || r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
