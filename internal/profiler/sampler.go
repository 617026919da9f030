package profiler

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// ProcessSample is one reading of the cumulative counters of a process
type ProcessSample struct {
	PID        int
	CPUSeconds float64
	RSSBytes   uint64
	ReadBytes  uint64
	WriteBytes uint64
}

// NetworkSample is one reading of the host-wide network counters
type NetworkSample struct {
	RecvBytes uint64
	SentBytes uint64
}

// Sampler reads process-tree and network counters
type Sampler interface {
	// Processes returns the root process and every current descendant
	Processes(root int) ([]ProcessSample, error)
	Network() (NetworkSample, error)
}

// ProcfsSampler reads counters from /proc
type ProcfsSampler struct {
	fs procfs.FS
}

// NewProcfsSampler creates a sampler on the default /proc mount
func NewProcfsSampler() (*ProcfsSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	return &ProcfsSampler{fs: fs}, nil
}

// Processes walks the parent links of every process to find the tree under root.
// Processes that exit while being read are skipped.
func (s *ProcfsSampler) Processes(root int) ([]ProcessSample, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	stats := make(map[int]procfs.ProcStat, len(procs))
	children := make(map[int][]int)
	byPID := make(map[int]procfs.Proc, len(procs))
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			continue
		}
		stats[p.PID] = stat
		byPID[p.PID] = p
		children[stat.PPID] = append(children[stat.PPID], p.PID)
	}

	var samples []ProcessSample
	queue := []int{root}
	seen := make(map[int]bool)
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		if seen[pid] {
			continue
		}
		seen[pid] = true
		queue = append(queue, children[pid]...)

		stat, ok := stats[pid]
		if !ok {
			continue
		}
		sample := ProcessSample{
			PID:        pid,
			CPUSeconds: stat.CPUTime(),
			RSSBytes:   uint64(stat.ResidentMemory()),
		}
		if io, err := byPID[pid].IO(); err == nil {
			sample.ReadBytes = io.ReadBytes
			sample.WriteBytes = io.WriteBytes
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// Network returns the summed counters of every interface
func (s *ProcfsSampler) Network() (NetworkSample, error) {
	dev, err := s.fs.NetDev()
	if err != nil {
		return NetworkSample{}, fmt.Errorf("failed to read network counters: %w", err)
	}
	total := dev.Total()
	return NetworkSample{RecvBytes: total.RxBytes, SentBytes: total.TxBytes}, nil
}
