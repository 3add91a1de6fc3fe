package transcript

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/whisper"
)

type Format string

const (
	FormatText Format = "txt"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
)

var ErrNoSegments = errors.New("transcript has no timed segments")

func ParseFormat(input string) (Format, error) {
	switch Format(strings.TrimPrefix(strings.TrimSpace(strings.ToLower(input)), ".")) {
	case "", FormatText, "text":
		return FormatText, nil
	case FormatSRT:
		return FormatSRT, nil
	case FormatVTT:
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected txt, srt or vtt)", input)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render produces the file body for format. Plain text carries timestamps only
// when the transcript was requested with them; subtitle formats always do and
// need segments.
func Render(t Transcript, format Format) (string, error) {
	switch format {
	case FormatText:
		return renderText(t), nil
	case FormatSRT:
		if len(t.Segments) == 0 {
			return "", ErrNoSegments
		}
		return renderSRT(t.Segments), nil
	case FormatVTT:
		if len(t.Segments) == 0 {
			return "", ErrNoSegments
		}
		return renderVTT(t.Segments), nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

// DisplayText is the text shown in the browser.
func DisplayText(t Transcript) string {
	return strings.TrimSuffix(renderText(t), "\n")
}

func renderText(t Transcript) string {
	if !t.Timestamps || len(t.Segments) == 0 {
		return strings.TrimSpace(t.Text) + "\n"
	}

	var b strings.Builder
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "[%s --> %s]  %s\n", clock(seg.Start, '.'), clock(seg.End, '.'), seg.Text)
	}
	return b.String()
}

func renderSRT(segments []whisper.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, clock(seg.Start, ','), clock(seg.End, ','), seg.Text)
	}
	return b.String()
}

func renderVTT(segments []whisper.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "\n%s --> %s\n%s\n", clock(seg.Start, '.'), clock(seg.End, '.'), seg.Text)
	}
	return b.String()
}

// clock formats d as hh:mm:ss<sep>mmm.
func clock(d time.Duration, sep byte) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", ms/3_600_000, (ms/60_000)%60, (ms/1000)%60, sep, ms%1000)
}
