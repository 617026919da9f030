package domain

import (
	"fmt"
	"time"
)

// StageOutcome describes how one ParameterSet ran on a worker
type StageOutcome struct {
	Label     string   `json:"label"`
	Binary    string   `json:"binary,omitempty"`
	ExitCode  int      `json:"exitCode"`
	Succeeded bool     `json:"succeeded"`
	LogKey    string   `json:"logKey,omitempty"`
	Uploaded  []string `json:"uploaded,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// WorkerResult is what one worker reports back for its partition
type WorkerResult struct {
	Step           string           `json:"step"`
	PartitionKey   string           `json:"partitionKey"`
	BaseName       string           `json:"baseName"`
	IngestedSize   int64            `json:"ingestedSize"`
	Stages         []StageOutcome   `json:"stages"`
	Timers         Timers           `json:"timers"`
	Profile        *MetricCollector `json:"profile,omitempty"`
	ProfileWarning string           `json:"profileWarning,omitempty"`
}

// Incomplete reports whether any stage of the worker failed
func (r WorkerResult) Incomplete() bool {
	for _, s := range r.Stages {
		if !s.Succeeded {
			return true
		}
	}
	return false
}

// WorkerProfile is the per-worker bundle kept in a CompletedStep
type WorkerProfile struct {
	PartitionKey string           `json:"partitionKey"`
	Start        time.Time        `json:"start"`
	End          time.Time        `json:"end"`
	Duration     time.Duration    `json:"duration"`
	Cost         float64          `json:"cost"`
	IngestedSize int64            `json:"ingestedSize"`
	Incomplete   bool             `json:"incomplete,omitempty"`
	Timers       Timers           `json:"timers"`
	Metrics      *MetricCollector `json:"metrics,omitempty"`
	Warning      string           `json:"warning,omitempty"`
}

// CompletedStep is the immutable summary of one step across all its workers
type CompletedStep struct {
	StepName      string          `json:"stepName"`
	RunID         string          `json:"runId,omitempty"`
	Cost          float64         `json:"cost"`
	IngestedSize  int64           `json:"ingestedSize"`
	MemoryMB      int             `json:"memoryMb"`
	CPUsPerWorker float64         `json:"cpusPerWorker"`
	WorkerCount   int             `json:"workerCount"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Profilers     []WorkerProfile `json:"profilers"`
}

// Duration returns the wall-clock duration of the step
func (s CompletedStep) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// IncompletePartitions lists partitions whose worker reported a failed stage
func (s CompletedStep) IncompletePartitions() []string {
	var keys []string
	for _, p := range s.Profilers {
		if p.Incomplete {
			keys = append(keys, p.PartitionKey)
		}
	}
	return keys
}

// ConfigKey identifies the resource configuration of the step, used to group
// repeated runs in analysis.
func (s CompletedStep) ConfigKey() string {
	return fmt.Sprintf("%dMB/%gcpu/%dworkers", s.MemoryMB, s.CPUsPerWorker, s.WorkerCount)
}
