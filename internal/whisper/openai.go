package whisper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const OpenAIEngineName = "openai"

type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	// Model pins the remote model. When empty, the model chosen per request is
	// forwarded, except registry sizes which only exist as ggml files.
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// OpenAIEngine sends audio to an OpenAI compatible speech endpoint.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIEngine(opts OpenAIOptions) *OpenAIEngine {
	cfg := openai.DefaultConfig(strings.TrimSpace(opts.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  strings.TrimSpace(opts.Model),
		logger: logger,
	}
}

func (o *OpenAIEngine) Name() string { return OpenAIEngineName }

func (o *OpenAIEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}

	f, err := os.Open(req.AudioPath)
	if err != nil {
		return Result{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	model := o.remoteModel(req.ModelName)
	audioReq := openai.AudioRequest{
		Model:    model,
		FilePath: filepath.Base(req.AudioPath),
		Reader:   f,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	call := o.client.CreateTranscription
	if req.Task == TaskTranslate {
		call = o.client.CreateTranslation
	} else if req.Language != "" && req.Language != AutoLanguage {
		audioReq.Language = req.Language
	}

	o.logger.Debug("sending audio to remote engine", zap.String("model", model), zap.String("task", string(req.Task)))
	resp, err := call(ctx, audioReq)
	if err != nil {
		return Result{}, fmt.Errorf("remote %s failed: %w", taskOrDefault(req.Task), err)
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Start: secondsToDuration(seg.Start),
			End:   secondsToDuration(seg.End),
			Text:  text,
		})
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		text = joinSegments(segments)
	}

	return Result{Text: text, Language: resp.Language, Segments: segments}, nil
}

func (o *OpenAIEngine) remoteModel(requested string) string {
	if o.model != "" {
		return o.model
	}
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return openai.Whisper1
	}
	if _, ok := LookupModel(requested); ok {
		return openai.Whisper1
	}
	return requested
}

func taskOrDefault(task Task) Task {
	if task == "" {
		return TaskTranscribe
	}
	return task
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
}
