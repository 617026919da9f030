package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abourramouss/serverlessextract-sub000/internal/binary"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/profiler"
)

// FakeRunner stands in for the domain binaries. It materializes every output
// of the stage, writes a short log and exits with the configured code.
type FakeRunner struct {
	mu sync.Mutex
	// ExitCodes maps a binary name to the exit code it returns
	ExitCodes map[string]int
	// Delay is slept before the binary "finishes"
	Delay time.Duration
	calls []binary.Invocation
	pids  atomic.Int64
}

// NewFakeRunner creates a runner where every binary succeeds
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{ExitCodes: map[string]int{}}
}

// Run implements binary.Runner. Every invocation reports a distinct fake PID.
func (r *FakeRunner) Run(ctx context.Context, inv binary.Invocation) (*binary.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	code := r.ExitCodes[inv.Binary]
	r.mu.Unlock()

	if inv.OnStart != nil {
		inv.OnStart(int(1000 + r.pids.Add(1)))
	}

	result := &binary.Result{Start: time.Now(), ExitCode: code}
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var lines []string
	var inputs []string
	inv.Stage.Walk(func(name string, v *domain.Value) {
		if v.Kind == domain.ValueInput && v.Resolved != nil {
			inputs = append(inputs, v.Resolved.Local)
		}
	})
	var err error
	inv.Stage.Walk(func(name string, v *domain.Value) {
		if err != nil || v.Kind != domain.ValueOutput || v.Resolved == nil || code != 0 {
			return
		}
		err = materialize(v.Resolved.Local, inputs)
		lines = append(lines, fmt.Sprintf("wrote %s = %s", name, v.Resolved.Local))
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(inv.LogPath), 0o755); err != nil {
		return nil, err
	}
	log := fmt.Sprintf("$ %s %s\n%s\nexit %d\n", inv.Binary, strings.Join(inv.Args(), " "), strings.Join(lines, "\n"), code)
	if err := os.WriteFile(inv.LogPath, []byte(log), 0o644); err != nil {
		return nil, err
	}

	result.End = time.Now()
	result.Tail = log
	return result, nil
}

// Calls returns every invocation seen so far
func (r *FakeRunner) Calls() []binary.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]binary.Invocation(nil), r.calls...)
}

// materialize creates a dataset directory for outputs with a directory-like
// extension and a small file otherwise. A directory output copies the first
// input directory when there is one.
func materialize(local string, inputs []string) error {
	ext := filepath.Ext(local)
	if ext == "" || ext == ".ms" {
		if err := os.MkdirAll(local, 0o755); err != nil {
			return err
		}
		for _, in := range inputs {
			if info, err := os.Stat(in); err == nil && info.IsDir() {
				return copyTree(in, local)
			}
		}
		return os.WriteFile(filepath.Join(local, "data"), []byte("generated"), 0o644)
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	return os.WriteFile(local, []byte("generated "+filepath.Base(local)), 0o644)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// FakeSampler reports a fixed process tree whose counters grow on every call
type FakeSampler struct {
	mu    sync.Mutex
	calls uint64
}

// Processes implements profiler.Sampler
func (s *FakeSampler) Processes(root int) ([]profiler.ProcessSample, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	return []profiler.ProcessSample{
		{PID: root, CPUSeconds: 0.1 * float64(n), RSSBytes: 64 << 20, ReadBytes: n << 20, WriteBytes: n << 10},
	}, nil
}

// Network implements profiler.Sampler
func (s *FakeSampler) Network() (profiler.NetworkSample, error) {
	s.mu.Lock()
	n := s.calls
	s.mu.Unlock()
	return profiler.NetworkSample{RecvBytes: n << 20, SentBytes: n << 19}, nil
}
