package profiler

import "time"

// Rate converts two readings of a cumulative counter into a per-second rate.
// A non-positive interval or a counter that went backwards yields 0.
func Rate(prev, cur uint64, dt time.Duration) float64 {
	if dt <= 0 || cur < prev {
		return 0
	}
	return float64(cur-prev) / dt.Seconds()
}

// CPUPercent converts two readings of consumed CPU seconds into a utilisation percentage
func CPUPercent(prev, cur float64, dt time.Duration) float64 {
	if dt <= 0 || cur < prev {
		return 0
	}
	return (cur - prev) / dt.Seconds() * 100
}
