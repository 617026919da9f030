package binary

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
)

func TestWriteConfig(t *testing.T) {
	params := domain.Params{
		{Name: "msin", Value: domain.Value{
			Kind:     domain.ValueInput,
			Ref:      &domain.ReferencePath{Kind: domain.ReferenceInput, Container: "b", Key: "rebinned"},
			Resolved: &domain.ResolvedPath{Key: "rebinned/part_0.ms.zip", Local: "/tmp/w/part_0.ms"},
		}},
		{Name: "steps", Value: domain.Literal([]any{"aoflag", "avg"})},
		{Name: "avg", Value: domain.Group(
			domain.Param{Name: "type", Value: domain.Literal("averager")},
			domain.Param{Name: "freqstep", Value: domain.Literal(4)},
		)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteConfig(&buf, params))
	assert.Equal(t, "msin = /tmp/w/part_0.ms\nsteps = [aoflag,avg]\navg.type = averager\navg.freqstep = 4\n", buf.String())

	path := filepath.Join(t.TempDir(), "cfg", "rebin.parset")
	require.NoError(t, WriteConfigFile(path, params))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(content))
}

func TestOverrides(t *testing.T) {
	params := domain.Params{
		{Name: "numthreads", Value: domain.Literal(4)},
		{Name: "msout", Value: domain.Group(domain.Param{Name: "overwrite", Value: domain.Literal(true)})},
	}
	assert.Equal(t, []string{"numthreads=4", "msout.overwrite=true"}, Overrides(params))
}

func TestExecRunner(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo args=$1\necho oops >&2\nexit 3\n"), 0o644))

	runner := NewExecRunner(zap.NewNop())
	logPath := filepath.Join(dir, "logs", "stage.log")
	result, err := runner.Run(context.Background(), Invocation{
		Binary:     sh,
		ConfigFile: script,
		Overrides:  []string{"numthreads=2"},
		LogPath:    logPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.End.Before(result.Start))
	assert.Contains(t, result.Tail, "[stderr] oops")

	log, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(log), "args=numthreads=2")
	assert.Contains(t, string(log), "[stderr] oops")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	runner := NewExecRunner(zap.NewNop())
	_, err := runner.Run(context.Background(), Invocation{
		Binary:  filepath.Join(t.TempDir(), "does-not-exist"),
		LogPath: filepath.Join(t.TempDir(), "x.log"),
	})
	assert.Error(t, err)
}

func writeScript(t *testing.T, body string) (string, string) {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(script, []byte(body), 0o644))
	return sh, script
}

func TestExecRunner_OutputWithoutNewlines(t *testing.T) {
	sh, script := writeScript(t, "dd if=/dev/zero bs=3000000 count=1 2>/dev/null\necho done >&2\n")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runner := NewExecRunner(zap.NewNop())
	logPath := filepath.Join(t.TempDir(), "stage.log")
	start := time.Now()
	result, err := runner.Run(ctx, Invocation{Binary: sh, ConfigFile: script, LogPath: logPath})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Less(t, time.Since(start), 20*time.Second)
	assert.LessOrEqual(t, len(result.Tail), maxTail+len("... (truncated)"))
	assert.True(t, strings.HasPrefix(result.Tail, "... (truncated)"))

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(3000000), "the whole output is kept in the log")
}

func TestExecRunner_DescendantKeepsPipesOpen(t *testing.T) {
	sh, script := writeScript(t, "sleep 5 &\necho started\n")

	runner := NewExecRunner(zap.NewNop())
	runner.waitDelay = 100 * time.Millisecond

	start := time.Now()
	result, err := runner.Run(context.Background(), Invocation{
		Binary:     sh,
		ConfigFile: script,
		LogPath:    filepath.Join(t.TempDir(), "stage.log"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Contains(t, result.Tail, "started")
}

func TestExecRunner_OnStart(t *testing.T) {
	sh, script := writeScript(t, "exit 0\n")

	var pid int
	_, err := NewExecRunner(zap.NewNop()).Run(context.Background(), Invocation{
		Binary:     sh,
		ConfigFile: script,
		LogPath:    filepath.Join(t.TempDir(), "stage.log"),
		OnStart:    func(p int) { pid = p },
	})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	assert.NotEqual(t, os.Getpid(), pid)
}

func TestStreamWriter_PrefixesLines(t *testing.T) {
	var log bytes.Buffer
	c := &capture{log: &log}
	w := &streamWriter{capture: c, prefix: "[stderr] ", atLineStart: true}

	for _, chunk := range []string{"first li", "ne\nsecond\n", "third"} {
		n, err := w.Write([]byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	assert.Equal(t, "[stderr] first line\n[stderr] second\n[stderr] third", log.String())
	assert.Equal(t, log.String(), c.tail())
}
