// Package aggregate turns the per-worker results of one step into a
// CompletedStep and analyses repeated runs of a step across resource
// configurations.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
)

// WorkerSpec is the resource configuration every worker of a step ran with
type WorkerSpec struct {
	MemoryMB       int
	CPUs           float64
	CostPerMsPerMB float64
}

// Cost models the price of one worker: duration_ms * cost_per_ms_per_MB * (memory_MB / 1024)
func (s WorkerSpec) Cost(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return ms * s.CostPerMsPerMB * (float64(s.MemoryMB) / 1024)
}

// Invocation is what the executor reported for one partition. Start and End
// are the executor's own timestamps of the worker run.
type Invocation struct {
	PartitionKey string
	Start        time.Time
	End          time.Time
	Result       *domain.WorkerResult
	Err          error
}

// Finalize builds the CompletedStep of one step. listed maps every partition
// key the step was planned over to its size in storage; the ingested sizes
// reported by the workers must account for it exactly.
func Finalize(step string, run domain.RunContext, invocations []Invocation, listed map[string]int64, spec WorkerSpec) (*domain.CompletedStep, error) {
	completed := &domain.CompletedStep{
		StepName:      step,
		RunID:         run.RunID,
		MemoryMB:      spec.MemoryMB,
		CPUsPerWorker: spec.CPUs,
		WorkerCount:   len(invocations),
		Profilers:     make([]domain.WorkerProfile, 0, len(invocations)),
	}

	for _, inv := range invocations {
		duration := inv.End.Sub(inv.Start)
		if duration < 0 {
			duration = 0
		}
		profile := domain.WorkerProfile{
			PartitionKey: inv.PartitionKey,
			Start:        inv.Start,
			End:          inv.End,
			Duration:     duration,
			Cost:         spec.Cost(duration),
			Incomplete:   inv.Err != nil,
		}
		if inv.Result != nil {
			profile.IngestedSize = inv.Result.IngestedSize
			profile.Timers = inv.Result.Timers
			profile.Metrics = inv.Result.Profile
			profile.Warning = inv.Result.ProfileWarning
			profile.Incomplete = profile.Incomplete || inv.Result.Incomplete()
		}
		if inv.Err != nil {
			profile.Warning = inv.Err.Error()
		}

		completed.Cost += profile.Cost
		completed.IngestedSize += profile.IngestedSize
		if completed.Start.IsZero() || (!inv.Start.IsZero() && inv.Start.Before(completed.Start)) {
			completed.Start = inv.Start
		}
		if inv.End.After(completed.End) {
			completed.End = inv.End
		}
		completed.Profilers = append(completed.Profilers, profile)
	}

	if err := CheckIngested(completed.Profilers, listed); err != nil {
		return nil, err.WithDetail("step", step)
	}
	return completed, nil
}

// CheckIngested verifies that the workers ingested exactly the listed inputs.
// The error names every missing, unexpected, duplicated and mis-sized key.
func CheckIngested(profiles []domain.WorkerProfile, listed map[string]int64) *apperrors.AppError {
	var expected, ingested int64
	for _, size := range listed {
		expected += size
	}

	seen := make(map[string]bool, len(profiles))
	var unexpected, duplicated, misSized []string
	for _, p := range profiles {
		ingested += p.IngestedSize
		size, ok := listed[p.PartitionKey]
		switch {
		case seen[p.PartitionKey]:
			duplicated = append(duplicated, p.PartitionKey)
		case !ok:
			unexpected = append(unexpected, p.PartitionKey)
		case size != p.IngestedSize:
			misSized = append(misSized, fmt.Sprintf("%s(listed=%d,ingested=%d)", p.PartitionKey, size, p.IngestedSize))
		}
		seen[p.PartitionKey] = true
	}

	var missing []string
	for key := range listed {
		if !seen[key] {
			missing = append(missing, key)
		}
	}

	if expected == ingested && len(missing)+len(unexpected)+len(duplicated)+len(misSized) == 0 {
		return nil
	}

	err := apperrors.Invariant("ingested size does not match listed input size").
		WithDetail("listed", fmt.Sprint(expected)).
		WithDetail("ingested", fmt.Sprint(ingested))
	for name, keys := range map[string][]string{
		"missing":    missing,
		"unexpected": unexpected,
		"duplicated": duplicated,
		"mis_sized":  misSized,
	} {
		if len(keys) > 0 {
			sort.Strings(keys)
			err = err.WithDetail(name, strings.Join(keys, ","))
		}
	}
	return err
}
