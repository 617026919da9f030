package planner

import (
	"fmt"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
)

// Step is the declarative form of one pipeline step
type Step struct {
	Name   string
	Sets   []domain.ParameterSet
	Policy domain.FailurePolicy
}

// Designated returns the input whose prefix is listed to discover partitions:
// the first non-dynamic input of the first parameter set.
func (s Step) Designated() (domain.ReferencePath, error) {
	if len(s.Sets) == 0 {
		return domain.ReferencePath{}, apperrors.Invariant("step has no parameter sets").WithDetail("step", s.Name)
	}
	ref, ok := s.Sets[0].DesignatedInput()
	if !ok {
		return domain.ReferencePath{}, apperrors.Invariant("first parameter set has no input reference").
			WithDetail("step", s.Name).
			WithDetail("set", s.Sets[0].Label)
	}
	return *ref, nil
}

// Validate checks every parameter set of the step
func (s Step) Validate() error {
	if s.Name == "" {
		return apperrors.Validation("step name is required")
	}
	if _, err := s.Designated(); err != nil {
		return err
	}
	for _, set := range s.Sets {
		if err := set.Validate(); err != nil {
			return apperrors.Invariant("invalid parameter set").WithDetail("step", s.Name).WithError(err)
		}
	}
	return nil
}

// Expand builds one execution plan per partition key. Each plan holds every
// parameter set of the step, in order, with all references resolved for that
// partition. Expansion fails when two keys share a base name or two plans
// would upload to the same key.
func Expand(s Step, keys []string, run domain.RunContext) ([]domain.ExecutionPlan, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	designated, _ := s.Designated()
	policy := s.Policy
	if policy == "" {
		policy = domain.FailurePolicyTolerate
	}

	bases := make(map[string]string, len(keys))
	uploads := make(map[string]string)
	plans := make([]domain.ExecutionPlan, 0, len(keys))

	for _, key := range keys {
		base := domain.BaseName(key)
		if other, dup := bases[base]; dup {
			return nil, apperrors.Invariant("partition keys share a base name").
				WithDetail("base", base).
				WithDetail("keys", other+", "+key)
		}
		bases[base] = key

		plan := domain.ExecutionPlan{
			Step:         s.Name,
			Run:          run,
			Container:    designated.Container,
			PartitionKey: key,
			BaseName:     base,
			Policy:       policy,
		}
		for _, set := range s.Sets {
			stage := ResolveSet(set, designated, key, base, run)
			logPath := LogPath(set, s.Name, base, designated.Container, run)

			var err error
			stage.Walk(func(name string, v *domain.Value) {
				if err != nil || v.Kind != domain.ValueOutput {
					return
				}
				err = claim(uploads, v.Resolved.Container+"/"+v.Resolved.UploadKey, key, set.Label, name)
			})
			if err == nil {
				err = claim(uploads, logPath.Container+"/"+logPath.UploadKey, key, set.Label, "log")
			}
			if err != nil {
				return nil, err
			}

			plan.Stages = append(plan.Stages, stage)
			plan.Logs = append(plan.Logs, logPath)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// ResolveSet returns a copy of set with every reference resolved for one
// partition. Inputs equal to the designated input point at the partition key.
func ResolveSet(set domain.ParameterSet, designated domain.ReferencePath, partitionKey, baseName string, run domain.RunContext) domain.ParameterSet {
	stage := set.Clone()
	stage.Walk(func(_ string, v *domain.Value) {
		if !v.IsReference() || v.Ref == nil {
			return
		}
		var resolved domain.ResolvedPath
		if v.Kind == domain.ValueInput && !v.Ref.Dynamic && v.Ref.Equal(designated) {
			resolved = ResolvePartition(*v.Ref, partitionKey)
		} else {
			resolved = Resolve(*v.Ref, baseName, run)
		}
		v.Resolved = &resolved
	})
	return stage
}

// claim records that partitionKey uploads to target. Stages of the same
// partition may overwrite each other; distinct partitions may not.
func claim(uploads map[string]string, target, partitionKey, label, name string) error {
	if prev, taken := uploads[target]; taken && prev != partitionKey {
		return apperrors.Invariant("resolved outputs collide").
			WithDetail("target", target).
			WithDetail("first", prev).
			WithDetail("second", partitionKey).
			WithDetail("param", label+"."+name)
	}
	uploads[target] = partitionKey
	return nil
}

// FilterKeys keeps the listed keys that are partitions of the designated input
// and applies the optional limit.
func FilterKeys(keys []string, designated domain.ReferencePath, limit int) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if MatchesInput(k, designated) {
			out = append(out, k)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Describe renders a resolved plan for logs
func Describe(plan domain.ExecutionPlan) string {
	return fmt.Sprintf("%s[%s] %d stage(s)", plan.Step, plan.BaseName, len(plan.Stages))
}
