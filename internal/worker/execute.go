// Package worker runs one execution plan on one worker: it downloads the
// partition and every other input, runs each stage's binary in order with the
// outputs of earlier stages available locally, and uploads outputs and logs.
package worker

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/archive"
	"github.com/abourramouss/serverlessextract-sub000/internal/binary"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/id"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/logger"
	"github.com/abourramouss/serverlessextract-sub000/internal/profiler"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
)

// Options configures a Worker
type Options struct {
	WorkDir             string
	TransferConcurrency int
	// Profile wraps every plan in a profiler when a sampler is set. Each
	// profiler samples only the binaries started for its own plan.
	Profile  bool
	Profiler profiler.Options
}

// Worker executes plans against object storage
type Worker struct {
	store   storage.ObjectStore
	runner  binary.Runner
	sampler profiler.Sampler
	logger  *zap.Logger
	opts    Options
}

// New creates a worker. A nil sampler disables profiling.
func New(store storage.ObjectStore, runner binary.Runner, sampler profiler.Sampler, logger *zap.Logger, opts Options) *Worker {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.TransferConcurrency <= 0 {
		opts.TransferConcurrency = 4
	}
	return &Worker{
		store:   store,
		runner:  runner,
		sampler: sampler,
		logger:  logger,
		opts:    opts,
	}
}

// Run executes the plan inside a profiler when profiling is enabled.
// A missed profiler hand-back is reported as a warning on the result.
func (w *Worker) Run(ctx context.Context, plan domain.ExecutionPlan) (*domain.WorkerResult, error) {
	if !w.opts.Profile || w.sampler == nil {
		return w.ExecuteStep(ctx, plan)
	}

	var result *domain.WorkerResult
	p := profiler.New(w.sampler, w.logger, w.opts.Profiler)
	report, err := p.Profile(ctx, func(ctx context.Context) error {
		var err error
		result, err = w.execute(ctx, plan, p.Attach)
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Profile = report.Metrics
	result.ProfileWarning = report.Warning
	return result, nil
}

// execution is the state of one plan on this worker
type execution struct {
	plan   domain.ExecutionPlan
	dir    string
	logger *zap.Logger
	result *domain.WorkerResult
	// onStart receives the PID of every binary started for the plan
	onStart func(pid int)
	// local maps container/key of everything already on disk to its local path
	local map[string]string
}

func objectID(container, key string) string {
	return container + "/" + key
}

// ExecuteStep runs every stage of the plan in order. A non-zero exit is
// tolerated or fails the invocation depending on the plan's policy.
func (w *Worker) ExecuteStep(ctx context.Context, plan domain.ExecutionPlan) (*domain.WorkerResult, error) {
	return w.execute(ctx, plan, nil)
}

func (w *Worker) execute(ctx context.Context, plan domain.ExecutionPlan, onStart func(pid int)) (*domain.WorkerResult, error) {
	log := logger.WithPartition(logger.WithStep(logger.WithRunID(w.logger, plan.Run.RunID), plan.Step), plan.PartitionKey)

	dir := filepath.Join(w.opts.WorkDir, plan.Step, plan.BaseName+"-"+id.NewUUID()[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ex := &execution{
		plan:   plan,
		dir:    dir,
		logger: log,
		result: &domain.WorkerResult{
			Step:         plan.Step,
			PartitionKey: plan.PartitionKey,
			BaseName:     plan.BaseName,
		},
		onStart: onStart,
		local:   make(map[string]string),
	}

	for i := range plan.Stages {
		outcome, err := w.runStage(ctx, ex, i)
		ex.result.Stages = append(ex.result.Stages, outcome)
		if err != nil {
			return nil, err
		}
	}

	log.Info("step executed",
		zap.Int("stages", len(ex.result.Stages)),
		zap.Bool("incomplete", ex.result.Incomplete()),
		zap.Int64("ingested_size", ex.result.IngestedSize),
	)
	return ex.result, nil
}

func (w *Worker) runStage(ctx context.Context, ex *execution, i int) (domain.StageOutcome, error) {
	stage := ex.plan.Stages[i].Clone()
	label := stage.Label
	if label == "" {
		label = "stage" + strconv.Itoa(i)
	}
	outcome := domain.StageOutcome{Label: label, Binary: stage.Binary}
	stageDir := filepath.Join(ex.dir, strconv.Itoa(i)+"-"+label)
	timers := &ex.result.Timers

	err := timers.Time(domain.TimerDownload, func() error {
		return w.localizeInputs(ctx, ex, &stage, filepath.Join(stageDir, "in"))
	})
	if err != nil {
		return w.fail(ctx, ex, i, outcome, err)
	}
	if err := localizeOutputs(&stage, filepath.Join(stageDir, "out")); err != nil {
		return w.fail(ctx, ex, i, outcome, err)
	}

	logPath := filepath.Join(stageDir, label+".log")
	if stage.Binary != "" {
		configPath := filepath.Join(stageDir, label+".parset")
		if err := binary.WriteConfigFile(configPath, stage.Params); err != nil {
			return w.fail(ctx, ex, i, outcome, err)
		}

		var res *binary.Result
		err := timers.Time(domain.TimerExecute, func() error {
			var err error
			res, err = w.runner.Run(ctx, binary.Invocation{
				Binary:     stage.Binary,
				ConfigFile: configPath,
				Overrides:  binary.Overrides(stage.Overrides),
				Dir:        stageDir,
				LogPath:    logPath,
				Stage:      stage,
				OnStart:    ex.onStart,
			})
			return err
		})
		if err != nil {
			return w.fail(ctx, ex, i, outcome, err)
		}
		outcome.ExitCode = res.ExitCode
		if res.ExitCode != 0 {
			ex.logger.Warn("binary exited non-zero",
				zap.String("stage", label),
				zap.String("binary", stage.Binary),
				zap.Int("exit_code", res.ExitCode),
				zap.String("output", res.Tail),
			)
			return w.fail(ctx, ex, i, outcome, apperrors.Subprocess(stage.Binary, res.ExitCode))
		}
	}

	uploaded, err := w.uploadOutputs(ctx, ex, &stage)
	outcome.Uploaded = uploaded
	if err != nil {
		return w.fail(ctx, ex, i, outcome, err)
	}
	outcome.LogKey = w.uploadLog(ctx, ex, i, logPath)
	outcome.Succeeded = true
	return outcome, nil
}

// fail records a stage failure. The captured log is still uploaded. Under the
// fail-fast policy the error is returned; otherwise the stage is marked failed
// and the next stage runs.
func (w *Worker) fail(ctx context.Context, ex *execution, i int, outcome domain.StageOutcome, cause error) (domain.StageOutcome, error) {
	label := outcome.Label
	outcome.Succeeded = false
	outcome.Error = cause.Error()
	outcome.LogKey = w.uploadLog(ctx, ex, i, filepath.Join(ex.dir, strconv.Itoa(i)+"-"+label, label+".log"))

	if ex.plan.Policy == domain.FailurePolicyFailFast {
		return outcome, apperrors.Invocation("stage failed").
			WithDetail("partition", ex.plan.PartitionKey).
			WithDetail("stage", label).
			WithError(cause)
	}
	ex.logger.Warn("stage failed, partition marked incomplete", zap.String("stage", label), zap.Error(cause))
	return outcome, nil
}

// localizeInputs gives every input reference a local path, downloading what
// is not already on disk. Archives are unzipped and discarded.
func (w *Worker) localizeInputs(ctx context.Context, ex *execution, stage *domain.ParameterSet, dir string) error {
	var err error
	stage.Walk(func(name string, v *domain.Value) {
		if err != nil || v.Kind != domain.ValueInput || v.Resolved == nil {
			return
		}
		key := objectID(v.Resolved.Container, v.Resolved.Key)
		if local, ok := ex.local[key]; ok {
			v.Resolved.Local = local
			return
		}

		var local string
		var size int64
		local, size, err = w.download(ctx, ex, *v.Resolved, dir)
		if err != nil {
			err = fmt.Errorf("input %s: %w", name, err)
			return
		}
		if v.Resolved.Key == ex.plan.PartitionKey {
			ex.result.IngestedSize += size
		}
		ex.local[key] = local
		v.Resolved.Local = local
	})
	return err
}

// download fetches one input: an archive object, a plain object, the archived
// form of a directory output, or every object under the key as a prefix.
// It returns the local path and the number of bytes fetched.
func (w *Worker) download(ctx context.Context, ex *execution, ref domain.ResolvedPath, dir string) (string, int64, error) {
	name := archive.TrimExtension(path.Base(ref.Key))
	local := filepath.Join(dir, name)

	if archive.IsArchive(ref.Key) {
		size, err := w.fetchArchive(ctx, ex, ref.Container, ref.Key, local)
		return local, size, err
	}

	size, err := storage.Download(ctx, w.store, ref.Container, ref.Key, local)
	if err == nil {
		return local, size, nil
	}
	if !apperrors.IsNotFound(err) {
		return "", 0, err
	}

	zipped := ref.Key + archive.Extension
	if ok, herr := storage.Exists(ctx, w.store, ref.Container, zipped); herr != nil {
		return "", 0, herr
	} else if ok {
		size, err := w.fetchArchive(ctx, ex, ref.Container, zipped, local)
		return local, size, err
	}

	size, err = storage.DownloadPrefix(ctx, w.store, ref.Container, ref.Key+"/", local, w.opts.TransferConcurrency)
	return local, size, err
}

func (w *Worker) fetchArchive(ctx context.Context, ex *execution, container, key, local string) (int64, error) {
	zipPath := local + archive.Extension
	size, err := storage.Download(ctx, w.store, container, key, zipPath)
	if err != nil {
		return 0, err
	}
	err = ex.result.Timers.Time(domain.TimerUnzip, func() error {
		return archive.Unzip(zipPath, local)
	})
	os.Remove(zipPath)
	return size, err
}

// localizeOutputs gives every output a local path and creates its parent directory
func localizeOutputs(stage *domain.ParameterSet, dir string) error {
	var err error
	stage.Walk(func(_ string, v *domain.Value) {
		if err != nil || v.Kind != domain.ValueOutput || v.Resolved == nil {
			return
		}
		v.Resolved.Local = filepath.Join(dir, path.Base(v.Resolved.Key))
		err = os.MkdirAll(filepath.Dir(v.Resolved.Local), 0o755)
	})
	return err
}

// uploadOutputs uploads every produced output to its upload key. Directory
// outputs are archived first and their key gains the archive extension.
// Outputs stay registered locally so later stages read them without a download.
func (w *Worker) uploadOutputs(ctx context.Context, ex *execution, stage *domain.ParameterSet) ([]string, error) {
	var uploaded []string
	var err error
	stage.Walk(func(name string, v *domain.Value) {
		if err != nil || v.Kind != domain.ValueOutput || v.Resolved == nil {
			return
		}
		info, statErr := os.Stat(v.Resolved.Local)
		if statErr != nil {
			ex.logger.Warn("output was not produced", zap.String("param", name), zap.String("path", v.Resolved.Local))
			return
		}
		ex.local[objectID(v.Resolved.Container, v.Resolved.Key)] = v.Resolved.Local

		source, key := v.Resolved.Local, v.Resolved.UploadKey
		if key == "" {
			key = v.Resolved.Key
		}
		if info.IsDir() {
			source = v.Resolved.Local + archive.Extension
			key += archive.Extension
			err = ex.result.Timers.Time(domain.TimerZip, func() error {
				return archive.Zip(v.Resolved.Local, source, path.Base(v.Resolved.Key))
			})
			if err != nil {
				return
			}
		}
		err = ex.result.Timers.Time(domain.TimerUpload, func() error {
			_, err := storage.Upload(ctx, w.store, v.Resolved.Container, key, source)
			return err
		})
		if info.IsDir() {
			os.Remove(source)
		}
		if err == nil {
			uploaded = append(uploaded, key)
		}
	})
	return uploaded, err
}

// uploadLog stores the captured binary output of stage i. Failures are logged only.
func (w *Worker) uploadLog(ctx context.Context, ex *execution, i int, logPath string) string {
	if i >= len(ex.plan.Logs) {
		return ""
	}
	if _, err := os.Stat(logPath); err != nil {
		return ""
	}
	target := ex.plan.Logs[i]
	key := target.UploadKey
	if key == "" {
		key = target.Key
	}
	if _, err := storage.Upload(ctx, w.store, target.Container, key, logPath); err != nil {
		ex.logger.Warn("failed to upload log", zap.String("key", key), zap.Error(err))
		return ""
	}
	return key
}
