// Package profiler samples the resource usage of the process trees started
// by one worker invocation.
//
// A Profiler moves through Idle, Monitoring, Stopping and Reported. Start
// launches a monitor goroutine that owns its MetricCollector; the only
// communication with it is a stop signal and a one-shot result channel.
// Stop waits for the hand-back with a bounded timeout; missing it is not
// fatal and yields no metrics plus a warning.
package profiler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/metrics"
)

// State is the lifecycle state of a Profiler
type State int

const (
	StateIdle State = iota
	StateMonitoring
	StateStopping
	StateReported
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMonitoring:
		return "monitoring"
	case StateStopping:
		return "stopping"
	case StateReported:
		return "reported"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Profiler
type Options struct {
	// Root, when set, is sampled from the start; further trees are added with Attach
	Root            int
	Interval        time.Duration
	HandBackTimeout time.Duration
}

// Report is what a profiled block hands back
type Report struct {
	Metrics *domain.MetricCollector
	Warning string
}

// Profiler samples the attached process trees for the duration of one block of work
type Profiler struct {
	sampler Sampler
	logger  *zap.Logger
	opts    Options

	mu     sync.Mutex
	roots  []int
	state  State
	stop   chan struct{}
	result chan *domain.MetricCollector
	done   chan struct{}
}

// New creates an idle profiler
func New(sampler Sampler, logger *zap.Logger, opts Options) *Profiler {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.HandBackTimeout <= 0 {
		opts.HandBackTimeout = 10 * time.Second
	}
	p := &Profiler{
		sampler: sampler,
		logger:  logger,
		opts:    opts,
		state:   StateIdle,
	}
	if opts.Root > 0 {
		p.roots = []int{opts.Root}
	}
	return p
}

// Attach adds the tree rooted at pid to every following sample. Processes
// outside the attached trees, such as other invocations sharing the worker
// process, are never sampled.
func (p *Profiler) Attach(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.roots {
		if r == pid {
			return
		}
	}
	p.roots = append(p.roots, pid)
}

// Roots returns the attached PIDs
func (p *Profiler) Roots() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.roots...)
}

// State returns the current lifecycle state
func (p *Profiler) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed when the monitor goroutine has exited
func (p *Profiler) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Start launches the monitor. It is only valid from Idle.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return apperrors.Internal("profiler already started").WithDetail("state", p.state.String())
	}
	p.stop = make(chan struct{})
	p.result = make(chan *domain.MetricCollector, 1)
	p.done = make(chan struct{})
	p.state = StateMonitoring

	go p.monitor(p.stop, p.result, p.done)
	return nil
}

// Stop signals the monitor and waits for its collector. A missed hand-back
// returns a PROFILER_TIMEOUT error and no metrics.
func (p *Profiler) Stop() (*domain.MetricCollector, error) {
	p.mu.Lock()
	if p.state != StateMonitoring {
		state := p.state
		p.mu.Unlock()
		return nil, apperrors.Internal("profiler is not monitoring").WithDetail("state", state.String())
	}
	p.state = StateStopping
	close(p.stop)
	result := p.result
	p.mu.Unlock()

	timer := time.NewTimer(p.opts.HandBackTimeout)
	defer timer.Stop()

	var collector *domain.MetricCollector
	var err error
	select {
	case collector = <-result:
	case <-timer.C:
		metrics.RecordProfilerTimeout()
		err = apperrors.ProfilerTimeout(fmt.Sprintf("monitor did not hand back within %s", p.opts.HandBackTimeout))
	}

	p.mu.Lock()
	p.state = StateReported
	p.mu.Unlock()
	return collector, err
}

// Profile runs fn between Start and Stop. The monitor is stopped on every
// exit path of fn, panics included; a panic is re-raised after the stop.
func (p *Profiler) Profile(ctx context.Context, fn func(context.Context) error) (report Report, err error) {
	if err := p.Start(); err != nil {
		return Report{}, err
	}

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		collector, stopErr := p.Stop()
		report.Metrics = collector
		if stopErr != nil {
			report.Warning = stopErr.Error()
			p.logger.Warn("profiler hand-back failed", zap.Error(stopErr))
		}
	}
	defer func() {
		if r := recover(); r != nil {
			stop()
			panic(r)
		}
	}()

	err = fn(ctx)
	stop()
	return report, err
}

func (p *Profiler) monitor(stop <-chan struct{}, out chan<- *domain.MetricCollector, done chan<- struct{}) {
	defer close(done)

	m := newMonitor(p.sampler, p.Roots, p.logger)
	m.sample(time.Now())

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			m.sample(time.Now())
			out <- m.collector
			return
		case now := <-ticker.C:
			m.sample(now)
		}
	}
}

// monitor holds the sampling state owned by the monitor goroutine
type monitor struct {
	sampler   Sampler
	roots     func() []int
	logger    *zap.Logger
	collector *domain.MetricCollector

	nextID   int
	prev     map[int]ProcessSample
	prevAt   map[int]time.Time
	prevNet  *NetworkSample
	prevNetT time.Time
}

func newMonitor(sampler Sampler, roots func() []int, logger *zap.Logger) *monitor {
	return &monitor{
		sampler:   sampler,
		roots:     roots,
		logger:    logger,
		collector: domain.NewMetricCollector(),
		prev:      make(map[int]ProcessSample),
		prevAt:    make(map[int]time.Time),
	}
}

// sample takes one reading of the attached trees and the network. Rates are
// computed against the previous reading of the same PID; a first reading has rate 0.
func (m *monitor) sample(now time.Time) {
	id := m.nextID
	m.nextID++
	tick := domain.NewMetricCollector()
	defer m.collector.Merge(tick)

	var procs []ProcessSample
	seen := make(map[int]bool)
	for _, root := range m.roots() {
		tree, err := m.sampler.Processes(root)
		if err != nil {
			m.logger.Debug("process sample failed", zap.Int("root", root), zap.Error(err))
			continue
		}
		for _, s := range tree {
			if !seen[s.PID] {
				seen[s.PID] = true
				procs = append(procs, s)
			}
		}
	}
	for _, s := range procs {
		var cpu, readRate, writeRate float64
		if prev, ok := m.prev[s.PID]; ok {
			dt := now.Sub(m.prevAt[s.PID])
			cpu = CPUPercent(prev.CPUSeconds, s.CPUSeconds, dt)
			readRate = Rate(prev.ReadBytes, s.ReadBytes, dt)
			writeRate = Rate(prev.WriteBytes, s.WriteBytes, dt)
		}
		m.prev[s.PID] = s
		m.prevAt[s.PID] = now

		tick.CPU = append(tick.CPU, domain.CPUMetric{
			Timestamp: now, CollectionID: id, PID: s.PID, Percent: cpu,
		})
		tick.Memory = append(tick.Memory, domain.MemoryMetric{
			Timestamp: now, CollectionID: id, PID: s.PID, RSSBytes: s.RSSBytes,
		})
		tick.Disk = append(tick.Disk, domain.DiskMetric{
			Timestamp: now, CollectionID: id, PID: s.PID,
			ReadBytes: s.ReadBytes, WriteBytes: s.WriteBytes,
			ReadRate: readRate, WriteRate: writeRate,
		})
	}

	net, err := m.sampler.Network()
	if err != nil {
		m.logger.Debug("network sample failed", zap.Error(err))
		return
	}
	var recvRate, sentRate float64
	if m.prevNet != nil {
		dt := now.Sub(m.prevNetT)
		recvRate = Rate(m.prevNet.RecvBytes, net.RecvBytes, dt)
		sentRate = Rate(m.prevNet.SentBytes, net.SentBytes, dt)
	}
	m.prevNet = &net
	m.prevNetT = now

	tick.Network = append(tick.Network, domain.NetworkMetric{
		Timestamp: now, CollectionID: id,
		RecvBytes: net.RecvBytes, SentBytes: net.SentBytes,
		RecvRate: recvRate, SentRate: sentRate,
	})
}
