// Package metrics provides Prometheus metrics recording for the pipeline packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stepDuration tracks wall-clock step duration in seconds
	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serverlessextract_step_duration_seconds",
			Help:    "Wall-clock duration of a pipeline step in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"step"},
	)

	// stepCost accumulates the modelled cost of each step
	stepCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverlessextract_step_cost_total",
			Help: "Accumulated modelled cost of pipeline steps",
		},
		[]string{"step"},
	)

	// invocations tracks worker invocations by outcome
	invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverlessextract_invocations_total",
			Help: "Total number of worker invocations by outcome",
		},
		[]string{"step", "outcome"},
	)

	// partitionsCreated tracks partitions materialized by the partitioning engine
	partitionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serverlessextract_partitions_created_total",
			Help: "Total number of partitions created and uploaded",
		},
	)

	// bytesTransferred tracks object storage traffic
	bytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverlessextract_bytes_transferred_total",
			Help: "Bytes moved to or from object storage",
		},
		[]string{"direction"},
	)

	// subprocessExits tracks domain binary exit codes
	subprocessExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverlessextract_subprocess_exits_total",
			Help: "Domain binary exits by binary and result",
		},
		[]string{"binary", "result"},
	)

	// profilerTimeouts tracks monitors that missed their hand-back
	profilerTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serverlessextract_profiler_timeouts_total",
			Help: "Total number of profiler monitors that missed their hand-back deadline",
		},
	)

	// breakerState tracks circuit breaker states (0 closed, 1 open, 2 half-open)
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "serverlessextract_circuit_breaker_state",
			Help: "Current circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

// RecordStep records the duration and cost of a completed step
func RecordStep(step string, duration time.Duration, cost float64) {
	stepDuration.WithLabelValues(step).Observe(duration.Seconds())
	stepCost.WithLabelValues(step).Add(cost)
}

// RecordInvocation records one worker invocation outcome ("succeeded", "incomplete" or "failed")
func RecordInvocation(step, outcome string) {
	invocations.WithLabelValues(step, outcome).Inc()
}

// RecordPartitionCreated records one uploaded partition
func RecordPartitionCreated() {
	partitionsCreated.Inc()
}

// RecordDownload records bytes read from object storage
func RecordDownload(n int64) {
	if n > 0 {
		bytesTransferred.WithLabelValues("download").Add(float64(n))
	}
}

// RecordUpload records bytes written to object storage
func RecordUpload(n int64) {
	if n > 0 {
		bytesTransferred.WithLabelValues("upload").Add(float64(n))
	}
}

// RecordSubprocessExit records a domain binary exit
func RecordSubprocessExit(binary string, exitCode int) {
	result := "success"
	if exitCode != 0 {
		result = "failure"
	}
	subprocessExits.WithLabelValues(binary, result).Inc()
}

// RecordProfilerTimeout records a missed monitor hand-back
func RecordProfilerTimeout() {
	profilerTimeouts.Inc()
}

// RecordBreakerState records the state a circuit breaker moved to
func RecordBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}
