package whisper

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

func ParseTask(input string) (Task, error) {
	switch Task(strings.TrimSpace(strings.ToLower(input))) {
	case "", TaskTranscribe:
		return TaskTranscribe, nil
	case TaskTranslate:
		return TaskTranslate, nil
	default:
		return "", fmt.Errorf("unknown task %q (expected transcribe or translate)", input)
	}
}

type Request struct {
	AudioPath string
	ModelPath string
	ModelName string
	Language  string
	Task      Task
}

type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Engine turns an audio file into text. Implementations must honour ctx
// cancellation.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// joinSegments builds the flat transcript from segment texts.
func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
