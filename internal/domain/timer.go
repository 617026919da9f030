package domain

import "time"

// Labels of the worker's own timed sub-operations
const (
	TimerDownload = "download"
	TimerUnzip    = "unzip"
	TimerExecute  = "execute"
	TimerZip      = "zip"
	TimerUpload   = "upload"
)

// FunctionTimer records one named sub-operation of a worker
type FunctionTimer struct {
	Label    string        `json:"label"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// Timers is an append-only list of function timers
type Timers []FunctionTimer

// Time runs fn and appends a timer for it, whether or not fn fails.
func (t *Timers) Time(label string, fn func() error) error {
	start := time.Now()
	err := fn()
	end := time.Now()
	*t = append(*t, FunctionTimer{Label: label, Start: start, End: end, Duration: end.Sub(start)})
	return err
}

// Total returns the summed duration of every timer with the given label
func (t Timers) Total(label string) time.Duration {
	var total time.Duration
	for _, timer := range t {
		if timer.Label == label {
			total += timer.Duration
		}
	}
	return total
}
