package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"sizeLabel": func(mb int) string {
		if mb >= 1024 {
			return fmt.Sprintf("%.1f GB", float64(mb)/1024)
		}
		return fmt.Sprintf("%d MB", mb)
	},
}

type formValues struct {
	Model      string
	Language   string
	Task       string
	Timestamps bool
}

type pageData struct {
	Version     string
	Engine      string
	Accept      string
	MaxUploadMB int64
	Models      []transcribe.ModelStatus
	Languages   []whisper.Language
	Form        formValues
	Error       string
	Result      *resultView
}

type downloadLink struct {
	Label string
	URL   string
}

type resultView struct {
	ID           string
	FileName     string
	Model        string
	Engine       string
	Language     string
	LanguageName string
	Task         string
	Text         string
	Blank        bool
	Skipped      bool
	Elapsed      string
	Downloads    []downloadLink
}

func newResultView(t transcript.Transcript) *resultView {
	links := make([]downloadLink, 0, 3)
	for _, f := range availableFormats(t) {
		label := "Plain text (.txt)"
		switch f {
		case transcript.FormatSRT:
			label = "Subtitles (.srt)"
		case transcript.FormatVTT:
			label = "WebVTT (.vtt)"
		}
		links = append(links, downloadLink{Label: label, URL: downloadURL(t.ID, f)})
	}

	return &resultView{
		ID:           t.ID,
		FileName:     t.FileName,
		Model:        t.Model,
		Engine:       t.Engine,
		Language:     t.Language,
		LanguageName: whisper.LanguageName(t.Language),
		Task:         string(t.Task),
		Text:         transcript.DisplayText(t),
		Blank:        t.Blank(),
		Skipped:      t.Skipped,
		Elapsed:      t.Elapsed.Round(10 * time.Millisecond).String(),
		Downloads:    links,
	}
}

func availableFormats(t transcript.Transcript) []transcript.Format {
	if len(t.Segments) == 0 {
		return []transcript.Format{transcript.FormatText}
	}
	return []transcript.Format{transcript.FormatText, transcript.FormatSRT, transcript.FormatVTT}
}

func downloadURL(id string, format transcript.Format) string {
	return "/transcripts/" + url.PathEscape(id) + "/download?format=" + string(format)
}
