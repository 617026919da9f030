// Package pipeline runs a declared chain of steps over a partitioned dataset.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/validator"
)

// PartitionsKey is the key an input uses to refer to the partitions created
// by the run; it is replaced with their location once they exist.
const PartitionsKey = "$partitions"

// Definition is a pipeline file
type Definition struct {
	Name string `yaml:"name" validate:"required"`
	// Dataset is the source dataset; it is partitioned when Partitions is set
	Dataset     domain.DatasetRef    `yaml:"dataset"`
	Partitions  int                  `yaml:"partitions" validate:"gte=0"`
	Destination domain.ReferencePath `yaml:"destination"`
	Steps       []Step               `yaml:"steps" validate:"required,min=1,dive"`
}

// Step is one step of a pipeline file
type Step struct {
	Name string `yaml:"name" validate:"required"`
	// Limit caps the number of partitions the step runs over
	Limit int                   `yaml:"limit" validate:"gte=0"`
	Sets  []domain.ParameterSet `yaml:"sets" validate:"required,min=1"`
}

// Load reads and validates a pipeline file
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a pipeline definition
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, apperrors.Validation("malformed pipeline definition").WithError(err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition and every parameter set in it
func (d *Definition) Validate() error {
	if err := validator.Validate(d); err != nil {
		return apperrors.Validation("invalid pipeline definition").WithError(err)
	}
	if d.Partitions > 0 {
		if d.Dataset.Container == "" || len(d.Dataset.Keys) == 0 {
			return apperrors.Validation("partitioning needs a dataset container and keys")
		}
		if d.Destination.Container == "" || d.Destination.Key == "" {
			return apperrors.Validation("partitioning needs a destination container and key")
		}
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if seen[step.Name] {
			return apperrors.Validation("duplicate step name").WithDetail("step", step.Name)
		}
		seen[step.Name] = true

		for _, set := range step.Sets {
			usesPartitions := false
			set.Walk(func(_ string, v *domain.Value) {
				if v.Ref != nil && v.Ref.Key == PartitionsKey {
					usesPartitions = true
				}
			})
			if usesPartitions && d.Partitions == 0 {
				return apperrors.Validation("step reads partitions but the pipeline creates none").WithDetail("step", step.Name)
			}
			if usesPartitions {
				continue
			}
			if err := set.Validate(); err != nil {
				return apperrors.Validation("invalid parameter set").WithDetail("step", step.Name).WithError(err)
			}
		}
	}
	return nil
}

// OutputKeys lists every key written by the pipeline's steps
func (d *Definition) OutputKeys() []string {
	var keys []string
	for _, step := range d.Steps {
		for _, set := range step.Sets {
			set.Walk(func(_ string, v *domain.Value) {
				if v.Kind != domain.ValueOutput || v.Ref == nil {
					return
				}
				keys = append(keys, v.Ref.Key)
				if v.Ref.OverwriteKey != "" {
					keys = append(keys, v.Ref.OverwriteKey)
				}
			})
		}
	}
	return keys
}

// BindPartitions returns copies of the sets with every reference to
// PartitionsKey pointed at the partition location
func BindPartitions(sets []domain.ParameterSet, location domain.ReferencePath) []domain.ParameterSet {
	out := make([]domain.ParameterSet, len(sets))
	for i, set := range sets {
		bound := set.Clone()
		bound.Walk(func(_ string, v *domain.Value) {
			if v.Ref == nil || v.Ref.Key != PartitionsKey {
				return
			}
			v.Ref.Key = location.Key
			if v.Ref.Container == "" {
				v.Ref.Container = location.Container
			}
			if v.Ref.Extension == "" {
				v.Ref.Extension = location.Extension
			}
		})
		out[i] = bound
	}
	return out
}
