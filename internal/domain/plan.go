package domain

import (
	"path"
	"strings"
)

// FailurePolicy decides what a worker does when a domain binary exits non-zero
type FailurePolicy string

const (
	// FailurePolicyTolerate logs the failure, marks the partition incomplete and continues
	FailurePolicyTolerate FailurePolicy = "tolerate"
	// FailurePolicyFailFast fails the worker invocation
	FailurePolicyFailFast FailurePolicy = "fail-fast"
)

// IsValid checks if the failure policy is valid
func (p FailurePolicy) IsValid() bool {
	switch p {
	case FailurePolicyTolerate, FailurePolicyFailFast:
		return true
	}
	return false
}

// RunContext identifies one pipeline run. It is threaded explicitly through every
// call that builds storage keys.
type RunContext struct {
	RunID     string `json:"runId"`
	KeyPrefix string `json:"keyPrefix,omitempty"`
	// Outputs lists the keys written by the run's steps; inputs reading them are
	// scoped under KeyPrefix, every other input is read as is.
	Outputs []string `json:"outputs,omitempty"`
}

// Key prefixes a storage key with the run's key prefix, if any.
func (r RunContext) Key(key string) string {
	if r.KeyPrefix == "" {
		return key
	}
	if key == "" {
		return strings.TrimSuffix(r.KeyPrefix, "/")
	}
	return path.Join(r.KeyPrefix, key)
}

// InputKey scopes an input key under the prefix when it names an output of the run.
func (r RunContext) InputKey(key string) string {
	trimmed := strings.Trim(key, "/")
	for _, out := range r.Outputs {
		if strings.Trim(out, "/") == trimmed {
			return r.Key(key)
		}
	}
	return key
}

// WithOutputs returns a copy of the run context that knows the given output keys.
func (r RunContext) WithOutputs(keys ...string) RunContext {
	r.Outputs = append(append([]string(nil), r.Outputs...), keys...)
	return r
}

// ExecutionPlan is the resolved form of a step for exactly one partition.
// Every reference in Stages carries a ResolvedPath and Logs[i] is where the
// captured output of Stages[i] is uploaded.
type ExecutionPlan struct {
	Step         string         `json:"step"`
	Run          RunContext     `json:"run"`
	Container    string         `json:"container"`
	PartitionKey string         `json:"partitionKey"`
	BaseName     string         `json:"baseName"`
	Stages       []ParameterSet `json:"stages"`
	Logs         []ResolvedPath `json:"logs"`
	Policy       FailurePolicy  `json:"policy"`
}
