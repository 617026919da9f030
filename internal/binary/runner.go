package binary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/metrics"
)

// maxTail bounds the captured output kept in memory for logging
const maxTail = 10000

// Invocation describes one run of a domain binary
type Invocation struct {
	Binary     string
	ConfigFile string
	Overrides  []string
	Dir        string
	// LogPath receives the full stdout and stderr of the process
	LogPath string
	// Stage is the resolved parameter set the config file was written from
	Stage domain.ParameterSet
	// OnStart, when set, receives the PID of the started process
	OnStart func(pid int)
}

// Args returns the command-line arguments of the invocation
func (inv Invocation) Args() []string {
	return append([]string{inv.ConfigFile}, inv.Overrides...)
}

// Result is the outcome of an invocation that started
type Result struct {
	ExitCode int
	Start    time.Time
	End      time.Time
	// Tail holds the last captured output, truncated
	Tail string
}

// Runner runs domain binaries
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// defaultWaitDelay bounds how long output pipes are drained after the binary exits
const defaultWaitDelay = 5 * time.Second

// ExecRunner runs binaries with os/exec
type ExecRunner struct {
	logger    *zap.Logger
	waitDelay time.Duration
}

// NewExecRunner creates a new subprocess runner
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logger, waitDelay: defaultWaitDelay}
}

// Run starts the binary, captures its output into inv.LogPath and waits for it.
// A non-zero exit is reported in Result, not as an error.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(inv.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.Create(inv.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "$ %s %s\n", inv.Binary, strings.Join(inv.Args(), " "))

	capture := &capture{log: logFile}
	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args()...)
	cmd.Dir = inv.Dir
	cmd.Stdout = &streamWriter{capture: capture, atLineStart: true}
	cmd.Stderr = &streamWriter{capture: capture, prefix: "[stderr] ", atLineStart: true}
	// Descendants that keep the pipes open must not hold Wait past the process exit
	cmd.WaitDelay = r.waitDelay

	result := &Result{Start: time.Now()}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", inv.Binary, err)
	}
	if inv.OnStart != nil {
		inv.OnStart(cmd.Process.Pid)
	}

	err = cmd.Wait()
	result.End = time.Now()
	result.Tail = capture.tail()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.As(err, &exitErr):
	case errors.Is(err, exec.ErrWaitDelay):
		r.logger.Warn("output pipes still open after exit, closed",
			zap.String("binary", inv.Binary),
			zap.Duration("wait_delay", r.waitDelay),
		)
	default:
		return nil, fmt.Errorf("failed to wait for %s: %w", inv.Binary, err)
	}
	if werr := capture.err(); werr != nil {
		return nil, fmt.Errorf("failed to write log of %s: %w", inv.Binary, werr)
	}
	metrics.RecordSubprocessExit(filepath.Base(inv.Binary), result.ExitCode)

	r.logger.Debug("binary finished",
		zap.String("binary", inv.Binary),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.End.Sub(result.Start)),
	)
	return result, nil
}

// capture writes the raw output of both streams to the log and keeps a
// bounded tail in memory. No line length limit applies.
type capture struct {
	mu       sync.Mutex
	log      io.Writer
	buffer   []byte
	dropped  bool
	writeErr error
}

func (c *capture) write(p []byte) {
	if _, err := c.log.Write(p); err != nil && c.writeErr == nil {
		c.writeErr = err
	}
	c.buffer = append(c.buffer, p...)
	if len(c.buffer) > 2*maxTail {
		n := copy(c.buffer, c.buffer[len(c.buffer)-maxTail:])
		c.buffer = c.buffer[:n]
		c.dropped = true
	}
}

func (c *capture) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

func (c *capture) tail() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.buffer
	truncated := c.dropped
	if len(out) > maxTail {
		out = out[len(out)-maxTail:]
		truncated = true
	}
	if truncated {
		return "... (truncated)" + string(out)
	}
	return string(out)
}

// streamWriter feeds one stream into the shared capture, prefixing every
// line it starts. It always reports the full write so the child never blocks.
type streamWriter struct {
	capture     *capture
	prefix      string
	atLineStart bool
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.capture.mu.Lock()
	defer w.capture.mu.Unlock()

	if w.prefix == "" {
		w.capture.write(p)
		return len(p), nil
	}
	rest := p
	for len(rest) > 0 {
		if w.atLineStart {
			w.capture.write([]byte(w.prefix))
			w.atLineStart = false
		}
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			w.capture.write(rest)
			break
		}
		w.capture.write(rest[:i+1])
		rest = rest[i+1:]
		w.atLineStart = true
	}
	return len(p), nil
}
