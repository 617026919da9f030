package worker

import (
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/binary"
	"github.com/abourramouss/serverlessextract-sub000/internal/config"
	"github.com/abourramouss/serverlessextract-sub000/internal/profiler"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
)

// NewFromConfig builds a worker that runs real binaries. Profiling is turned
// off with a warning when /proc cannot be read.
func NewFromConfig(cfg *config.Config, store storage.ObjectStore, logger *zap.Logger) *Worker {
	opts := Options{
		WorkDir:             cfg.Worker.WorkDir,
		TransferConcurrency: cfg.Worker.TransferConcurrency,
		Profile:             cfg.Profiler.Enabled,
		Profiler: profiler.Options{
			Interval:        cfg.Profiler.Interval,
			HandBackTimeout: cfg.Profiler.HandBackTimeout,
		},
	}

	var sampler profiler.Sampler
	if opts.Profile {
		s, err := profiler.NewProcfsSampler()
		if err != nil {
			logger.Warn("profiling disabled", zap.Error(err))
			opts.Profile = false
		} else {
			sampler = s
		}
	}

	return New(store, binary.NewExecRunner(logger), sampler, logger, opts)
}
