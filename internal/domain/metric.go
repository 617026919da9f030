package domain

import "time"

// MetricKind names one family of profiler samples
type MetricKind string

const (
	MetricCPU     MetricKind = "cpu"
	MetricMemory  MetricKind = "memory"
	MetricDisk    MetricKind = "disk"
	MetricNetwork MetricKind = "network"
)

// CPUMetric is one CPU utilisation sample of one process
type CPUMetric struct {
	Timestamp    time.Time `json:"timestamp"`
	CollectionID int       `json:"collectionId"`
	PID          int       `json:"pid"`
	Percent      float64   `json:"percent"`
}

// MemoryMetric is one resident-memory sample of one process
type MemoryMetric struct {
	Timestamp    time.Time `json:"timestamp"`
	CollectionID int       `json:"collectionId"`
	PID          int       `json:"pid"`
	RSSBytes     uint64    `json:"rssBytes"`
}

// DiskMetric is one disk I/O sample of one process.
// Byte fields are cumulative, rate fields are bytes per second.
type DiskMetric struct {
	Timestamp    time.Time `json:"timestamp"`
	CollectionID int       `json:"collectionId"`
	PID          int       `json:"pid"`
	ReadBytes    uint64    `json:"readBytes"`
	WriteBytes   uint64    `json:"writeBytes"`
	ReadRate     float64   `json:"readRate"`
	WriteRate    float64   `json:"writeRate"`
}

// NetworkMetric is one network sample, global to the process tree
type NetworkMetric struct {
	Timestamp    time.Time `json:"timestamp"`
	CollectionID int       `json:"collectionId"`
	RecvBytes    uint64    `json:"recvBytes"`
	SentBytes    uint64    `json:"sentBytes"`
	RecvRate     float64   `json:"recvRate"`
	SentRate     float64   `json:"sentRate"`
}

// MetricCollector holds append-only, per-kind ordered samples.
// It has a single writer at a time; collectors are combined with Merge.
type MetricCollector struct {
	CPU     []CPUMetric     `json:"cpu"`
	Memory  []MemoryMetric  `json:"memory"`
	Disk    []DiskMetric    `json:"disk"`
	Network []NetworkMetric `json:"network"`
}

// NewMetricCollector creates an empty collector
func NewMetricCollector() *MetricCollector {
	return &MetricCollector{
		CPU:     []CPUMetric{},
		Memory:  []MemoryMetric{},
		Disk:    []DiskMetric{},
		Network: []NetworkMetric{},
	}
}

// Merge appends every sample of other
func (c *MetricCollector) Merge(other *MetricCollector) {
	if other == nil {
		return
	}
	c.CPU = append(c.CPU, other.CPU...)
	c.Memory = append(c.Memory, other.Memory...)
	c.Disk = append(c.Disk, other.Disk...)
	c.Network = append(c.Network, other.Network...)
}

// Len returns the total number of samples
func (c *MetricCollector) Len() int {
	if c == nil {
		return 0
	}
	return len(c.CPU) + len(c.Memory) + len(c.Disk) + len(c.Network)
}

// PeakMemory returns the highest per-sample sum of resident memory across the tree.
func (c *MetricCollector) PeakMemory() uint64 {
	if c == nil {
		return 0
	}
	perSample := make(map[int]uint64)
	var peak uint64
	for _, m := range c.Memory {
		perSample[m.CollectionID] += m.RSSBytes
		if perSample[m.CollectionID] > peak {
			peak = perSample[m.CollectionID]
		}
	}
	return peak
}
