package transcribe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/audio/audiotest"
	"github.com/fmueller/voxscribe/internal/download"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
)

type fakeEngine struct {
	mu      sync.Mutex
	calls   []whisper.Request
	payload []byte
	result  whisper.Result
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Transcribe(ctx context.Context, req whisper.Request) (whisper.Result, error) {
	data, _ := os.ReadFile(req.AudioPath)

	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.payload = data
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return whisper.Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeEngine) lastCall(t *testing.T) whisper.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newRemoteService(t *testing.T, engine *fakeEngine, mutate ...func(*Options)) *Service {
	t.Helper()
	opts := Options{
		Engine:      engine,
		SilenceGate: true,
		SilenceDBFS: -65,
		TempDir:     t.TempDir(),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	svc, err := New(opts)
	require.NoError(t, err)
	return svc
}

func TestTranscribeUploadSpoolsAndRemovesAudio(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: whisper.Result{
		Text:     " Bonjour tout le monde ",
		Language: "fr",
		Segments: []whisper.Segment{{Start: 0, End: time.Second, Text: "Bonjour tout le monde"}},
	}}
	svc := newRemoteService(t, engine)

	out, err := svc.Transcribe(context.Background(), Job{
		FileName:   "greeting.MP3",
		Audio:      strings.NewReader("fake-mp3"),
		Model:      "Base",
		Timestamps: true,
	})
	require.NoError(t, err)
	require.Equal(t, "Bonjour tout le monde", out.Text)
	require.Equal(t, "fr", out.Language)
	require.Equal(t, "base", out.Model)
	require.Equal(t, "fake", out.Engine)
	require.Equal(t, whisper.TaskTranscribe, out.Task)
	require.True(t, out.Timestamps)
	require.Len(t, out.Segments, 1)

	req := engine.lastCall(t)
	require.Equal(t, "base", req.ModelName)
	require.Equal(t, whisper.AutoLanguage, req.Language)
	require.Equal(t, ".mp3", filepath.Ext(req.AudioPath))
	require.Equal(t, []byte("fake-mp3"), engine.payload)

	_, statErr := os.Stat(req.AudioPath)
	require.True(t, os.IsNotExist(statErr), "upload should be removed after the request")
}

func TestTranscribeRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		job    Job
		target error
	}{
		{name: "format", job: Job{FileName: "notes.txt", Audio: strings.NewReader("x")}, target: audio.ErrUnsupportedFormat},
		{name: "empty", job: Job{FileName: "a.wav", Audio: strings.NewReader("")}, target: ErrEmptyUpload},
		{name: "model", job: Job{FileName: "a.ogg", Audio: strings.NewReader("x"), Model: "gigantic"}, target: whisper.ErrUnknownModel},
		{name: "model path", job: Job{FileName: "a.ogg", Audio: strings.NewReader("x"), Model: "/etc/passwd.bin"}, target: whisper.ErrUnknownModel},
		{name: "language", job: Job{FileName: "a.flac", Audio: strings.NewReader("x"), Language: "elvish"}, target: ErrUnsupportedLanguage},
		{name: "task", job: Job{FileName: "a.m4a", Audio: strings.NewReader("x"), Task: "summarize"}, target: ErrInvalidTask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine := &fakeEngine{}
			svc := newRemoteService(t, engine)

			_, err := svc.Transcribe(context.Background(), tt.job)
			require.ErrorIs(t, err, tt.target)
			require.True(t, IsInvalidInput(err))
			require.Zero(t, engine.callCount())
		})
	}
}

func TestTranscribeSkipsSilentWAV(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	svc := newRemoteService(t, engine)

	out, err := svc.Transcribe(context.Background(), Job{FileName: "quiet.wav", Audio: bytes.NewReader(audiotest.Silence(8000))})
	require.NoError(t, err)
	require.True(t, out.Skipped)
	require.Equal(t, transcript.BlankAudioToken, out.Text)
	require.Zero(t, engine.callCount())
}

func TestTranscribeRunsAudibleWAVAndMarksBlankResults(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: whisper.Result{Text: "  "}}
	svc := newRemoteService(t, engine)

	out, err := svc.Transcribe(context.Background(), Job{
		FileName: "tone.wav",
		Audio:    bytes.NewReader(audiotest.Tone(8000)),
		Language: "DE",
		Task:     "translate",
	})
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.True(t, out.Blank())
	require.Equal(t, "de", out.Language)
	require.Equal(t, whisper.TaskTranslate, engine.lastCall(t).Task)
}

func TestTranscribeFromPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memo.ogg")
	require.NoError(t, os.WriteFile(path, []byte("ogg"), 0o644))

	engine := &fakeEngine{result: whisper.Result{Text: "memo"}}
	svc := newRemoteService(t, engine, func(o *Options) { o.AllowCustomModel = true })

	out, err := svc.Transcribe(context.Background(), Job{AudioPath: path, Model: "my-model"})
	require.NoError(t, err)
	require.Equal(t, "memo.ogg", out.FileName)
	require.Equal(t, "my-model", out.Model)
	require.Equal(t, path, engine.lastCall(t).AudioPath)

	_, err = os.Stat(path)
	require.NoError(t, err, "caller-owned audio must not be removed")

	_, err = svc.Transcribe(context.Background(), Job{AudioPath: filepath.Join(t.TempDir(), "gone.ogg")})
	require.ErrorContains(t, err, "audio file not found")
}

func TestTranscribePropagatesEngineErrors(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{err: errors.New("decoder exploded")}
	svc := newRemoteService(t, engine)

	_, err := svc.Transcribe(context.Background(), Job{FileName: "a.mp3", Audio: strings.NewReader("x")})
	require.ErrorContains(t, err, "decoder exploded")
	require.False(t, IsInvalidInput(err))
}

func TestTranscribeReportsBusyWhenQueuedRequestIsCanceled(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := newRemoteService(t, engine)

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Transcribe(context.Background(), Job{FileName: "a.mp3", Audio: strings.NewReader("x")})
		firstDone <- err
	}()
	<-engine.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Transcribe(ctx, Job{FileName: "b.mp3", Audio: strings.NewReader("y")})
	require.ErrorIs(t, err, ErrBusy)

	close(engine.release)
	require.NoError(t, <-firstDone)
}

func newLocalService(t *testing.T, engine *fakeEngine, fetch DownloadFunc, autoDownload bool) *Service {
	t.Helper()
	svc, err := New(Options{
		Engine:       engine,
		LocalModels:  true,
		ModelDir:     t.TempDir(),
		AutoDownload: autoDownload,
		TempDir:      t.TempDir(),
		Download:     fetch,
		NoProgress:   true,
	})
	require.NoError(t, err)
	return svc
}

func writingDownload(calls *atomic.Int32, gate <-chan struct{}) DownloadFunc {
	return gatedDownload(calls, nil, gate)
}

// gatedDownload reports each start on started and blocks until gate closes
// or its context ends.
func gatedDownload(calls *atomic.Int32, started chan<- struct{}, gate <-chan struct{}) DownloadFunc {
	return func(ctx context.Context, opts download.Options) error {
		calls.Add(1)
		if started != nil {
			started <- struct{}{}
		}
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return os.WriteFile(opts.Destination, []byte("ggml"), 0o644)
	}
}

func TestTranscribeWithLocalModelDownloadsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	started := make(chan struct{}, 3)
	gate := make(chan struct{})
	engine := &fakeEngine{result: whisper.Result{Text: "ok"}}
	svc := newLocalService(t, engine, gatedDownload(&calls, started, gate), true)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	ensure := func() {
		defer wg.Done()
		_, err := svc.EnsureModel(context.Background(), "tiny")
		errs <- err
	}

	wg.Add(1)
	go ensure()
	<-started
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go ensure()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, calls.Load())

	out, err := svc.Transcribe(context.Background(), Job{FileName: "a.mp3", Audio: strings.NewReader("x"), Model: "tiny"})
	require.NoError(t, err)
	require.Equal(t, "ok", out.Text)
	require.Equal(t, filepath.Join(svc.opts.ModelDir, "ggml-tiny.bin"), engine.lastCall(t).ModelPath)
	require.EqualValues(t, 1, calls.Load())
}

func TestEnsureModelSurvivesFirstCallerCanceling(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	started := make(chan struct{}, 1)
	gate := make(chan struct{})
	svc := newLocalService(t, &fakeEngine{}, gatedDownload(&calls, started, gate), true)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.EnsureModel(firstCtx, "tiny")
		firstErr <- err
	}()
	<-started

	type outcome struct {
		model whisper.ResolvedModel
		err   error
	}
	second := make(chan outcome, 1)
	go func() {
		model, err := svc.EnsureModel(context.Background(), "tiny")
		second <- outcome{model: model, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate)
	got := <-second
	require.NoError(t, got.err)
	require.FileExists(t, got.model.Path)
	require.EqualValues(t, 1, calls.Load())
}

func TestTranscribeWithoutAutoDownloadReportsMissingModel(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	svc := newLocalService(t, &fakeEngine{}, writingDownload(&calls, nil), false)

	_, err := svc.Transcribe(context.Background(), Job{FileName: "a.mp3", Audio: strings.NewReader("x")})
	require.ErrorIs(t, err, ErrModelMissing)
	require.Zero(t, calls.Load())
}

func TestInstallModelReplacesCorruptCopy(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	svc := newLocalService(t, &fakeEngine{}, writingDownload(&calls, nil), true)

	corrupt := filepath.Join(svc.opts.ModelDir, "ggml-base.bin")
	require.NoError(t, os.WriteFile(corrupt, []byte("truncated"), 0o644))

	resolved, downloaded, err := svc.InstallModel(context.Background(), "base")
	require.NoError(t, err)
	require.True(t, downloaded)
	require.Equal(t, corrupt, resolved.Path)
	require.EqualValues(t, 1, calls.Load())

	_, _, err = svc.InstallModel(context.Background(), "/custom/model.bin")
	require.Error(t, err)
}

func TestModelsReportsAvailability(t *testing.T) {
	t.Parallel()

	svc := newLocalService(t, &fakeEngine{}, nil, false)
	require.NoError(t, os.WriteFile(filepath.Join(svc.opts.ModelDir, "ggml-small.bin"), []byte("x"), 0o644))

	for _, status := range svc.Models() {
		require.Equal(t, status.Name == "small", status.Available, status.Name)
	}

	remote := newRemoteService(t, &fakeEngine{})
	for _, status := range remote.Models() {
		require.True(t, status.Available)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Engine: &fakeEngine{}, LocalModels: true})
	require.Error(t, err)
}
