package aggregate

import (
	"sort"
	"time"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
)

// ConfigSummary aggregates the repeated runs of one step under one resource configuration
type ConfigSummary struct {
	Config         string        `json:"config"`
	MemoryMB       int           `json:"memoryMb"`
	CPUs           float64       `json:"cpus"`
	Workers        int           `json:"workers"`
	Runs           int           `json:"runs"`
	MeanDuration   time.Duration `json:"meanDuration"`
	MedianDuration time.Duration `json:"medianDuration"`
	MeanCost       float64       `json:"meanCost"`
	MedianCost     float64       `json:"medianCost"`
	// PeakMemory is the highest resident memory any profiled worker reached, in bytes
	PeakMemory uint64 `json:"peakMemory"`
	// SpeedUp is the baseline's median duration over this configuration's
	SpeedUp float64 `json:"speedUp"`
	Pareto  bool    `json:"pareto"`
}

// Report is the analysis of one step
type Report struct {
	Step     string          `json:"step"`
	Baseline string          `json:"baseline"`
	Configs  []ConfigSummary `json:"configs"`
	Skipped  int             `json:"skipped"`
}

// Frontier returns the Pareto-optimal configurations
func (r Report) Frontier() []ConfigSummary {
	var out []ConfigSummary
	for _, c := range r.Configs {
		if c.Pareto {
			out = append(out, c)
		}
	}
	return out
}

// Analyze summarizes every run of a step. Runs without workers or without a
// measured duration are skipped. When baseline is empty the configuration
// with the fewest workers, then the least memory, is the baseline.
func Analyze(step string, runs []domain.CompletedStep, baseline string) Report {
	report := Report{Step: step}

	groups := make(map[string][]domain.CompletedStep)
	for _, run := range runs {
		if run.WorkerCount == 0 || run.Duration() <= 0 {
			report.Skipped++
			continue
		}
		groups[run.ConfigKey()] = append(groups[run.ConfigKey()], run)
	}

	for key, group := range groups {
		durations := make([]float64, len(group))
		costs := make([]float64, len(group))
		var peak uint64
		for i, run := range group {
			durations[i] = float64(run.Duration())
			costs[i] = run.Cost
			for _, p := range run.Profilers {
				peak = max(peak, p.Metrics.PeakMemory())
			}
		}
		report.Configs = append(report.Configs, ConfigSummary{
			Config:         key,
			MemoryMB:       group[0].MemoryMB,
			CPUs:           group[0].CPUsPerWorker,
			Workers:        group[0].WorkerCount,
			Runs:           len(group),
			MeanDuration:   time.Duration(Mean(durations)),
			MedianDuration: time.Duration(Median(durations)),
			MeanCost:       Mean(costs),
			MedianCost:     Median(costs),
			PeakMemory:     peak,
		})
	}

	sort.Slice(report.Configs, func(i, j int) bool {
		a, b := report.Configs[i], report.Configs[j]
		if a.Workers != b.Workers {
			return a.Workers < b.Workers
		}
		if a.MemoryMB != b.MemoryMB {
			return a.MemoryMB < b.MemoryMB
		}
		return a.CPUs < b.CPUs
	})
	if len(report.Configs) == 0 {
		return report
	}

	report.Baseline = baseline
	if report.Baseline == "" {
		report.Baseline = report.Configs[0].Config
	}
	var base *ConfigSummary
	for i := range report.Configs {
		if report.Configs[i].Config == report.Baseline {
			base = &report.Configs[i]
		}
	}
	for i := range report.Configs {
		c := &report.Configs[i]
		if base != nil && c.MedianDuration > 0 {
			c.SpeedUp = float64(base.MedianDuration) / float64(c.MedianDuration)
		}
		c.Pareto = !dominated(*c, report.Configs)
	}
	return report
}

// dominated reports whether another configuration is no worse in both cost
// and time and strictly better in one
func dominated(c ConfigSummary, all []ConfigSummary) bool {
	for _, o := range all {
		if o.Config == c.Config {
			continue
		}
		noWorse := o.MedianCost <= c.MedianCost && o.MedianDuration <= c.MedianDuration
		better := o.MedianCost < c.MedianCost || o.MedianDuration < c.MedianDuration
		if noWorse && better {
			return true
		}
	}
	return false
}

// Mean returns the arithmetic mean, 0 for no values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the median, 0 for no values
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
