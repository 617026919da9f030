package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const rebinYAML = `
label: rebin
binary: DP3
params:
  msin:
    input: {container: data, key: partitions/run, ext: .ms}
  msout:
    output: {container: data, key: rebinned, ext: .ms}
  steps: [aoflag, avg]
  avg:
    type: averager
    freqstep: 4
    timestep: 2.5
  aoflag:
    strategy:
      input: {container: data, key: strategies/lofar, ext: .lua}
overrides:
  numthreads: 4
`

func TestParameterSet_UnmarshalYAML(t *testing.T) {
	var set ParameterSet
	require.NoError(t, yaml.Unmarshal([]byte(rebinYAML), &set))

	assert.Equal(t, "rebin", set.Label)
	assert.Equal(t, "DP3", set.Binary)

	var names []string
	set.Params.Walk(func(name string, v *Value) {
		names = append(names, name)
	})
	assert.Equal(t, []string{"msin", "msout", "steps", "avg.type", "avg.freqstep", "avg.timestep", "aoflag.strategy"}, names)

	msin, ok := set.Params.Get("msin")
	require.True(t, ok)
	assert.Equal(t, ValueInput, msin.Kind)
	assert.Equal(t, ReferenceInput, msin.Ref.Kind)
	assert.Equal(t, ".ms", msin.Ref.Extension)

	msout, _ := set.Params.Get("msout")
	assert.Equal(t, ValueOutput, msout.Kind)
	assert.Equal(t, ReferenceOutput, msout.Ref.Kind)

	steps, _ := set.Params.Get("steps")
	assert.Equal(t, "[aoflag,avg]", steps.Render())

	avg, _ := set.Params.Get("avg")
	assert.Equal(t, ValueGroup, avg.Kind)
	freq, _ := avg.Group.Get("freqstep")
	assert.Equal(t, "4", freq.Render())

	threads, _ := set.Overrides.Get("numthreads")
	assert.Equal(t, "4", threads.Render())

	require.NoError(t, set.Validate())
}

func TestParameterSet_DesignatedInput(t *testing.T) {
	set := ParameterSet{
		Label: "apply",
		Params: Params{
			{Name: "parmdb", Value: Input(ReferencePath{Container: "b", Key: "cal", Dynamic: true})},
			{Name: "msin", Value: Input(ReferencePath{Container: "b", Key: "rebinned", Extension: ".ms"})},
			{Name: "msout", Value: Output(ReferencePath{Container: "b", Key: "applied"})},
		},
	}

	ref, ok := set.DesignatedInput()
	require.True(t, ok)
	assert.Equal(t, "rebinned", ref.Key)

	_, ok = ParameterSet{Params: Params{{Name: "x", Value: Literal(1)}}}.DesignatedInput()
	assert.False(t, ok)
}

func TestParameterSet_Validate(t *testing.T) {
	t.Run("dynamic output is rejected", func(t *testing.T) {
		set := ParameterSet{Label: "bad", Params: Params{
			{Name: "out", Value: Output(ReferencePath{Container: "b", Key: "k", Dynamic: true})},
		}}
		err := set.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only inputs can be dynamic")
	})

	t.Run("overwrite key on input is rejected", func(t *testing.T) {
		set := ParameterSet{Label: "bad", Params: Params{
			{Name: "in", Value: Input(ReferencePath{Container: "b", Key: "k", OverwriteKey: "o"})},
		}}
		assert.Error(t, set.Validate())
	})

	t.Run("missing container is rejected", func(t *testing.T) {
		set := ParameterSet{Label: "bad", Params: Params{
			{Name: "in", Value: Input(ReferencePath{Key: "k"})},
		}}
		assert.Error(t, set.Validate())
	})
}

func TestParams_CloneIsDeep(t *testing.T) {
	orig := Params{
		{Name: "msin", Value: Input(ReferencePath{Container: "b", Key: "k"})},
		{Name: "g", Value: Group(Param{Name: "out", Value: Output(ReferencePath{Container: "b", Key: "o"})})},
	}
	clone := orig.Clone()
	clone[0].Value.Ref.Key = "changed"
	clone[1].Value.Group[0].Value.Ref.Key = "changed"

	assert.Equal(t, "k", orig[0].Value.Ref.Key)
	assert.Equal(t, "o", orig[1].Value.Group[0].Value.Ref.Key)
}

func TestParameterSet_JSONKeepsOrder(t *testing.T) {
	var set ParameterSet
	require.NoError(t, yaml.Unmarshal([]byte(rebinYAML), &set))

	data, err := json.Marshal(set)
	require.NoError(t, err)

	var decoded ParameterSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Params, len(set.Params))
	for i := range set.Params {
		assert.Equal(t, set.Params[i].Name, decoded.Params[i].Name)
	}
	freq, _ := decoded.Params[3].Value.Group.Get("freqstep")
	assert.Equal(t, "4", freq.Render())
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"partitions/abc/part_3.ms.zip", "part_3"},
		{"part_0.zip", "part_0"},
		{"dir/sub/", "sub"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseName(tt.key))
		})
	}
}

func TestRunContext_Key(t *testing.T) {
	assert.Equal(t, "rebinned", RunContext{}.Key("rebinned"))
	assert.Equal(t, "runs/42/rebinned", RunContext{KeyPrefix: "runs/42"}.Key("rebinned"))
	assert.Equal(t, "runs/42", RunContext{KeyPrefix: "runs/42/"}.Key(""))
}

func TestRunContext_InputKey(t *testing.T) {
	run := RunContext{KeyPrefix: "runs/42"}.WithOutputs("rebinned", "cal/")

	assert.Equal(t, "runs/42/rebinned", run.InputKey("rebinned"))
	assert.Equal(t, "runs/42/cal", run.InputKey("cal"))
	assert.Equal(t, "strategies/lofar", run.InputKey("strategies/lofar"))
	assert.Equal(t, "rebinned", RunContext{}.WithOutputs("rebinned").InputKey("rebinned"))
}
