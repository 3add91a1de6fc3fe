package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveBundledEnginePathFindsLibexecSibling(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	engineDir := filepath.Join(root, "libexec", "whisper")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.MkdirAll(engineDir, 0o755))

	self := filepath.Join(binDir, "voxscribe")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	enginePath := filepath.Join(engineDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestResolveBundledEnginePathMissing(t *testing.T) {
	t.Parallel()

	self := filepath.Join(t.TempDir(), "bin", "voxscribe")
	require.NoError(t, os.MkdirAll(filepath.Dir(self), 0o755))
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	_, err := ResolveBundledEnginePath(self)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bundled whisper engine not found")
}

func TestResolveBundledEnginePathFindsPackagingPathForLocalDev(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	self := filepath.Join(root, "voxscribe")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	targetDir := filepath.Join(root, "packaging", "whisper", fmt.Sprintf("%s_%s", runtime.GOOS, normalizeArch(runtime.GOARCH)))
	require.NoError(t, os.MkdirAll(targetDir, 0o755))
	enginePath := filepath.Join(targetDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	engine := &BundledEngine{Threads: 4}

	args := engine.buildArgs(Request{AudioPath: "a.wav", ModelPath: "m.bin"}, "/tmp/out")
	require.Equal(t, []string{"-m", "m.bin", "-f", "a.wav", "-np", "-oj", "-of", "/tmp/out", "-l", "auto", "-t", "4"}, args)

	args = (&BundledEngine{}).buildArgs(Request{AudioPath: "a.mp3", ModelPath: "m.bin", Language: "de", Task: TaskTranslate}, "/tmp/out")
	require.Equal(t, []string{"-m", "m.bin", "-f", "a.mp3", "-np", "-oj", "-of", "/tmp/out", "-l", "de", "-tr"}, args)
}

func TestParseCppOutput(t *testing.T) {
	t.Parallel()

	result, err := parseCppOutput([]byte(`{
		"result": {"language": "en"},
		"transcription": [
			{"offsets": {"from": 0, "to": 1200}, "text": " Hello"},
			{"offsets": {"from": 1200, "to": 1300}, "text": "  "},
			{"offsets": {"from": 1300, "to": 2500}, "text": " world. "}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, "Hello world.", result.Text)
	require.Equal(t, "en", result.Language)
	require.Equal(t, []Segment{
		{Start: 0, End: 1200 * time.Millisecond, Text: "Hello"},
		{Start: 1300 * time.Millisecond, End: 2500 * time.Millisecond, Text: "world."},
	}, result.Segments)

	_, err = parseCppOutput([]byte("not json"))
	require.Error(t, err)
}

func TestBundledEngineRunsExecutable(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	script := writeScript(t, dir, `#!/bin/sh
echo "$*" > "$(dirname "$0")/args.txt"
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
cat > "$out.json" <<'JSON'
{"result":{"language":"de"},"transcription":[{"offsets":{"from":0,"to":1500},"text":" Hallo"},{"offsets":{"from":1500,"to":3000},"text":" Welt "}]}
JSON
`)

	engine := &BundledEngine{Executable: script, Logger: zap.NewNop()}
	result, err := engine.Transcribe(context.Background(), Request{
		AudioPath: "in.flac",
		ModelPath: "model.bin",
		Language:  "de",
		Task:      TaskTranslate,
	})
	require.NoError(t, err)
	require.Equal(t, "Hallo Welt", result.Text)
	require.Equal(t, "de", result.Language)
	require.Len(t, result.Segments, 2)

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	require.Contains(t, string(args), "-tr")
	require.Contains(t, string(args), "-l de")
}

func TestBundledEngineReportsIllegalInstruction(t *testing.T) {
	skipWithoutShell(t)

	script := writeScript(t, t.TempDir(), "#!/bin/sh\necho 'Illegal instruction (core dumped)' >&2\nexit 132\n")

	engine := &BundledEngine{Executable: script, Logger: zap.NewNop()}
	_, err := engine.Transcribe(context.Background(), Request{AudioPath: "a.wav", ModelPath: "m.bin"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "illegal CPU instruction")
}

func TestBundledEngineRequiresPaths(t *testing.T) {
	t.Parallel()

	engine := &BundledEngine{Executable: "/nonexistent", Logger: zap.NewNop()}
	_, err := engine.Transcribe(context.Background(), Request{ModelPath: "m.bin"})
	require.ErrorContains(t, err, "audio path is required")

	_, err = engine.Transcribe(context.Background(), Request{AudioPath: "a.wav"})
	require.ErrorContains(t, err, "model path is required")

	_, err = engine.Transcribe(context.Background(), Request{AudioPath: "a.wav", ModelPath: "m.bin"})
	require.ErrorContains(t, err, "missing or not executable")
}

func TestIsMissingSharedLibraryError(t *testing.T) {
	t.Parallel()

	require.True(t, isMissingSharedLibraryError("error while loading shared libraries: libwhisper.so.1: cannot open shared object file"))
	require.True(t, isMissingSharedLibraryError("dyld: Library not loaded: @rpath/libwhisper.dylib"))
	require.False(t, isMissingSharedLibraryError("some other runtime error"))
}

func TestIsIllegalInstructionError(t *testing.T) {
	t.Parallel()

	require.True(t, isIllegalInstructionError("signal: illegal instruction (core dumped)"))
	require.False(t, isIllegalInstructionError("some other runtime error"))
	require.False(t, isIllegalInstructionError(""))
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine fixture requires a POSIX shell")
	}
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "whisper-cli")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimLeft(body, "\n")), 0o755))
	return path
}
