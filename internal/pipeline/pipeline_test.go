package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/aggregate"
	"github.com/abourramouss/serverlessextract-sub000/internal/collection"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/executor"
	"github.com/abourramouss/serverlessextract-sub000/internal/partition"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/runner"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
	"github.com/abourramouss/serverlessextract-sub000/internal/testutil"
	"github.com/abourramouss/serverlessextract-sub000/internal/worker"
)

const e2eDefinition = `
name: e2e
dataset:
  container: test-bucket
  keys: [datasets/obs.ms.zip]
partitions: 4
destination:
  container: test-bucket
  key: partitions
steps:
  - name: rebinning
    sets:
      - label: rebin
        binary: DP3
        params:
          msin:
            input: {key: $partitions, ext: .ms}
          msout:
            output: {container: test-bucket, key: rebinned, ext: .ms}
          steps: [avg]
          avg:
            type: averager
            freqstep: 4
  - name: imaging
    sets:
      - label: image
        binary: wsclean
        params:
          msin:
            input: {container: test-bucket, key: rebinned, ext: .ms}
          name:
            output: {container: test-bucket, key: images, ext: .fits}
          niter: 100
`

type env struct {
	store      *storage.MemoryStore
	runner     *testutil.FakeRunner
	collection *collection.Store
	pipeline   *Pipeline
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := storage.NewMemory()
	fake := testutil.NewFakeRunner()

	exec := executor.NewLocal(zap.NewNop(), 4)
	t.Cleanup(func() { exec.Close() })
	w := worker.New(store, fake, &testutil.FakeSampler{}, zap.NewNop(), worker.Options{WorkDir: t.TempDir()})
	exec.Register(worker.TypeExecuteStep, w.Handle)

	engine := partition.NewEngine(store, zap.NewNop(), partition.Options{WorkDir: t.TempDir(), Concurrency: 2})
	steps := runner.New(store, exec, zap.NewNop(), runner.Options{
		Worker: aggregate.WorkerSpec{MemoryMB: 2048, CPUs: 1, CostPerMsPerMB: 0.0001},
	})
	c := collection.New(collection.FileBackend{Path: filepath.Join(t.TempDir(), "job_collection.json")}, zap.NewNop())

	return &env{
		store:      store,
		runner:     fake,
		collection: c,
		pipeline:   New(engine, steps, c, zap.NewNop()),
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.PutDataset(t, e.store, "datasets/obs.ms.zip", testutil.UniformRows(1000, 0, 1))

	def, err := Parse([]byte(e2eDefinition))
	require.NoError(t, err)

	run := domain.RunContext{RunID: "e2e-1", KeyPrefix: "runs/e2e-1"}
	report, err := e.pipeline.Run(ctx, def, run)
	require.NoError(t, err)

	require.NotNil(t, report.Partitions)
	assert.False(t, report.Partitions.AlreadyExists)
	require.Len(t, report.Partitions.Partitions, 4)

	partitions, err := e.store.List(ctx, testutil.TestContainer, report.Partitions.Location.Key+"/")
	require.NoError(t, err)
	require.Len(t, partitions, 4)

	require.Len(t, report.Steps, 2)
	rebinning := report.Steps[0]
	assert.Equal(t, "rebinning", rebinning.StepName)
	assert.Equal(t, 4, rebinning.WorkerCount)
	assert.Equal(t, storage.TotalSize(partitions), rebinning.IngestedSize)
	assert.Empty(t, rebinning.IncompletePartitions())

	rows := 0
	for i := 0; i < 4; i++ {
		table := testutil.ReadDataset(t, e.store, fmt.Sprintf("runs/e2e-1/rebinned/part_%d.ms.zip", i))
		rows += table.Len()
	}
	assert.Equal(t, 1000, rows, "every row lands in exactly one partition")

	rebinned, err := e.store.List(ctx, testutil.TestContainer, "runs/e2e-1/rebinned/")
	require.NoError(t, err)
	var archives []storage.ObjectInfo
	for _, obj := range rebinned {
		if strings.HasSuffix(obj.Key, ".zip") {
			archives = append(archives, obj)
		}
	}
	require.Len(t, archives, 4)

	imaging := report.Steps[1]
	assert.Equal(t, 4, imaging.WorkerCount)
	assert.Equal(t, storage.TotalSize(archives), imaging.IngestedSize)

	images, err := e.store.List(ctx, testutil.TestContainer, "runs/e2e-1/images/")
	require.NoError(t, err)
	assert.Len(t, images, 8, "one image and one log per partition")

	for _, p := range rebinning.Profilers {
		assert.Nil(t, p.Metrics, "profiling is off unless enabled")
		assert.NotEmpty(t, p.Timers)
	}

	saved, err := e.collection.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"imaging", "rebinning"}, saved.Names())
	assert.Equal(t, 4, saved["rebinning"][0].WorkerCount)
}

func TestPipeline_RepartitionIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.PutDataset(t, e.store, "datasets/obs.ms.zip", testutil.UniformRows(1000, 0, 1))

	def, err := Parse([]byte(e2eDefinition))
	require.NoError(t, err)

	first, err := e.pipeline.Run(ctx, def, domain.RunContext{RunID: "a", KeyPrefix: "runs/a"})
	require.NoError(t, err)
	second, err := e.pipeline.Run(ctx, def, domain.RunContext{RunID: "b", KeyPrefix: "runs/b"})
	require.NoError(t, err)

	assert.True(t, second.Partitions.AlreadyExists)
	assert.Equal(t, first.Partitions.Location, second.Partitions.Location)
	assert.Equal(t, first.Steps[0].IngestedSize, second.Steps[0].IngestedSize)

	saved, err := e.collection.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, saved["rebinning"], 2)
}

func TestPipeline_StepFailureStopsRun(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	testutil.PutDataset(t, e.store, "datasets/obs.ms.zip", testutil.UniformRows(100, 0, 1))

	def, err := Parse([]byte(e2eDefinition))
	require.NoError(t, err)
	def.Steps[1].Sets[0].Params[0].Value = domain.Input(domain.ReferencePath{Container: testutil.TestContainer, Key: "nothing", Extension: ".ms"})

	report, err := e.pipeline.Run(ctx, def, domain.RunContext{RunID: "c"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	require.Len(t, report.Steps, 1)
	assert.Equal(t, "rebinning", report.Steps[0].StepName)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{"valid", func(s string) string { return s }, ""},
		{"malformed yaml", func(s string) string { return s + "\n  - : [" }, "malformed"},
		{"no steps", func(s string) string { return s[:strings.Index(s, "steps:")] }, "invalid pipeline definition"},
		{"partitions without dataset", func(s string) string {
			return strings.Replace(s, "keys: [datasets/obs.ms.zip]", "keys: []", 1)
		}, "dataset"},
		{"partitions reference without partitioning", func(s string) string {
			return strings.Replace(s, "partitions: 4", "partitions: 0", 1)
		}, "creates none"},
		{"duplicate step", func(s string) string {
			return strings.Replace(s, "name: imaging", "name: rebinning", 1)
		}, "duplicate step"},
		{"invalid reference", func(s string) string {
			return strings.Replace(s, "output: {container: test-bucket, key: images, ext: .fits}", "output: {key: images}", 1)
		}, "container is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Parse([]byte(tt.mutate(e2eDefinition)))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "e2e", def.Name)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_Structure(t *testing.T) {
	def, err := Parse([]byte(e2eDefinition))
	require.NoError(t, err)

	require.Len(t, def.Steps, 2)
	rebin := def.Steps[0].Sets[0]
	assert.Equal(t, "DP3", rebin.Binary)

	msin, ok := rebin.Params.Get("msin")
	require.True(t, ok)
	assert.Equal(t, domain.ValueInput, msin.Kind)
	assert.Equal(t, PartitionsKey, msin.Ref.Key)

	avg, ok := rebin.Params.Get("avg")
	require.True(t, ok)
	assert.Equal(t, domain.ValueGroup, avg.Kind)
	freq, _ := avg.Group.Get("freqstep")
	assert.Equal(t, "4", freq.Render())

	assert.ElementsMatch(t, []string{"rebinned", "images"}, def.OutputKeys())
}

func TestBindPartitions(t *testing.T) {
	def, err := Parse([]byte(e2eDefinition))
	require.NoError(t, err)

	location := domain.ReferencePath{Container: "bucket", Key: "partitions/abc", Extension: ".ms.zip"}
	bound := BindPartitions(def.Steps[0].Sets, location)

	msin, _ := bound[0].Params.Get("msin")
	assert.Equal(t, "partitions/abc", msin.Ref.Key)
	assert.Equal(t, "bucket", msin.Ref.Container)
	assert.Equal(t, ".ms", msin.Ref.Extension, "a declared extension is kept")

	original, _ := def.Steps[0].Sets[0].Params.Get("msin")
	assert.Equal(t, PartitionsKey, original.Ref.Key, "binding does not modify the definition")
	require.NoError(t, bound[0].Validate())
}

func TestLoad_SamplePipeline(t *testing.T) {
	def, err := Load(filepath.Join("..", "..", "configs", "pipeline.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "lofar-extract", def.Name)
	assert.Equal(t, 8, def.Partitions)
	require.Len(t, def.Steps, 3)
	assert.Len(t, def.Steps[1].Sets, 3)
	assert.Equal(t, 4, def.Steps[2].Limit)
	assert.Contains(t, def.OutputKeys(), "extract/calibrated")
}
