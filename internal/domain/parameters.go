package domain

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueKind represents the type of a parameter value
type ValueKind string

const (
	ValueLiteral ValueKind = "literal"
	ValueInput   ValueKind = "input"
	ValueOutput  ValueKind = "output"
	ValueGroup   ValueKind = "group"
)

// Value is a tagged parameter value: a literal, an input or output reference,
// or a nested group of parameters.
type Value struct {
	Kind     ValueKind      `json:"kind"`
	Literal  any            `json:"literal,omitempty"`
	Ref      *ReferencePath `json:"ref,omitempty"`
	Resolved *ResolvedPath  `json:"resolved,omitempty"`
	Group    Params         `json:"group,omitempty"`
}

// Literal creates a literal value
func Literal(v any) Value {
	return Value{Kind: ValueLiteral, Literal: v}
}

// Input creates an input reference value
func Input(ref ReferencePath) Value {
	ref.Kind = ReferenceInput
	return Value{Kind: ValueInput, Ref: &ref}
}

// Output creates an output reference value
func Output(ref ReferencePath) Value {
	ref.Kind = ReferenceOutput
	return Value{Kind: ValueOutput, Ref: &ref}
}

// Group creates a nested group value
func Group(params ...Param) Value {
	return Value{Kind: ValueGroup, Group: params}
}

// IsReference returns true for input and output values
func (v Value) IsReference() bool {
	return v.Kind == ValueInput || v.Kind == ValueOutput
}

// Render formats the value for a configuration file or a command-line override.
// References render their local path once localized and their remote key otherwise.
func (v Value) Render() string {
	switch v.Kind {
	case ValueInput, ValueOutput:
		if v.Resolved != nil {
			if v.Resolved.Local != "" {
				return v.Resolved.Local
			}
			return v.Resolved.Key
		}
		if v.Ref != nil {
			return v.Ref.Key + v.Ref.Extension
		}
		return ""
	default:
		return formatLiteral(v.Literal)
	}
}

func formatLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, formatLiteral(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(t)
	}
}

// Param is one named entry of a ParameterSet
type Param struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Params is an ordered list of parameters
type Params []Param

// Get returns the value of a parameter by name
func (p Params) Get(name string) (Value, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return Value{}, false
}

// Clone returns a deep copy so plans never share references with their template.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for i, param := range p {
		v := param.Value
		if v.Ref != nil {
			ref := *v.Ref
			v.Ref = &ref
		}
		if v.Resolved != nil {
			res := *v.Resolved
			v.Resolved = &res
		}
		v.Group = v.Group.Clone()
		out[i] = Param{Name: param.Name, Value: v}
	}
	return out
}

// Walk visits every leaf value in order; nested names are joined with dots.
func (p Params) Walk(fn func(name string, v *Value)) {
	p.walk("", fn)
}

func (p Params) walk(prefix string, fn func(name string, v *Value)) {
	for i := range p {
		name := p[i].Name
		if prefix != "" {
			name = prefix + "." + name
		}
		if p[i].Value.Kind == ValueGroup {
			p[i].Value.Group.walk(name, fn)
			continue
		}
		fn(name, &p[i].Value)
	}
}

// UnmarshalYAML decodes an ordered mapping. Scalars and sequences become literals,
// a single-key mapping of "input" or "output" becomes a reference and any other
// mapping becomes a nested group.
func (p *Params) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", node.Line)
	}
	out := make(Params, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		value, err := decodeValue(node.Content[i+1])
		if err != nil {
			return fmt.Errorf("param %q: %w", name, err)
		}
		out = append(out, Param{Name: name, Value: value})
	}
	*p = out
	return nil
}

func decodeValue(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.ScalarNode, yaml.SequenceNode:
		var lit any
		if err := node.Decode(&lit); err != nil {
			return Value{}, err
		}
		return Literal(lit), nil
	case yaml.MappingNode:
		if len(node.Content) == 2 {
			var ref ReferencePath
			switch node.Content[0].Value {
			case string(ReferenceInput):
				if err := node.Content[1].Decode(&ref); err != nil {
					return Value{}, err
				}
				return Input(ref), nil
			case string(ReferenceOutput):
				if err := node.Content[1].Decode(&ref); err != nil {
					return Value{}, err
				}
				return Output(ref), nil
			}
		}
		var group Params
		if err := group.UnmarshalYAML(node); err != nil {
			return Value{}, err
		}
		return Group(group...), nil
	default:
		return Value{}, fmt.Errorf("line %d: unsupported value", node.Line)
	}
}

// ParameterSet is the declarative configuration of one domain binary invocation.
// An empty Binary declares a transfer-only stage that runs no subprocess.
type ParameterSet struct {
	Label     string `json:"label" yaml:"label"`
	Binary    string `json:"binary,omitempty" yaml:"binary"`
	Params    Params `json:"params" yaml:"params"`
	Overrides Params `json:"overrides,omitempty" yaml:"overrides"`
}

// Clone returns a deep copy of the parameter set
func (s ParameterSet) Clone() ParameterSet {
	s.Params = s.Params.Clone()
	s.Overrides = s.Overrides.Clone()
	return s
}

// Walk visits params then overrides
func (s *ParameterSet) Walk(fn func(name string, v *Value)) {
	s.Params.Walk(fn)
	s.Overrides.Walk(fn)
}

// DesignatedInput returns the first non-dynamic input reference: the one whose
// prefix is listed to discover partitions.
func (s ParameterSet) DesignatedInput() (*ReferencePath, bool) {
	var found *ReferencePath
	s.Params.Walk(func(_ string, v *Value) {
		if found != nil || v.Kind != ValueInput || v.Ref == nil || v.Ref.Dynamic {
			return
		}
		ref := *v.Ref
		found = &ref
	})
	return found, found != nil
}

// Validate checks every reference of the set
func (s ParameterSet) Validate() error {
	var errs []string
	s.Walk(func(name string, v *Value) {
		if !v.IsReference() {
			return
		}
		if v.Ref == nil {
			errs = append(errs, fmt.Sprintf("%s: missing reference", name))
			return
		}
		if err := v.Ref.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("parameter set %q: %s", s.Label, strings.Join(errs, "; "))
	}
	return nil
}
