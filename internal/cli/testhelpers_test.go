package cli

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/fmueller/voxscribe/internal/config"
	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/whisper"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	return runApp(t, newAppState(), args)
}

func runApp(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

type stubEngine struct {
	mu       sync.Mutex
	requests []whisper.Request
	result   whisper.Result
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Transcribe(_ context.Context, req whisper.Request) (whisper.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.result, nil
}

func (s *stubEngine) calls() []whisper.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]whisper.Request(nil), s.requests...)
}

// newStubApp returns an app whose engine and model downloads never leave
// the process.
func newStubApp(engine *stubEngine) *appState {
	app := newAppState()
	app.noProgress = true
	app.newEngine = func(config.Config, *zap.Logger) (whisper.Engine, error) {
		return engine, nil
	}
	app.download = func(_ context.Context, opts download.Options) error {
		return os.WriteFile(opts.Destination, []byte("ggml"), 0o644)
	}
	return app
}
