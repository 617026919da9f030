package worker

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/binary"
	"github.com/abourramouss/serverlessextract-sub000/internal/config"
	"github.com/abourramouss/serverlessextract-sub000/internal/storage"
)

func TestNewFromConfig(t *testing.T) {
	t.Setenv("WORKER_WORK_DIR", t.TempDir())
	t.Setenv("WORKER_TRANSFER_CONCURRENCY", "3")
	t.Setenv("PROFILER_ENABLED", "false")

	cfg, err := config.LoadWith(viper.New())
	require.NoError(t, err)

	w := NewFromConfig(cfg, storage.NewMemory(), zap.NewNop())
	assert.Equal(t, cfg.Worker.WorkDir, w.opts.WorkDir)
	assert.Equal(t, 3, w.opts.TransferConcurrency)
	assert.False(t, w.opts.Profile)
	assert.Nil(t, w.sampler)
	assert.IsType(t, &binary.ExecRunner{}, w.runner)
	assert.Equal(t, cfg.Profiler.Interval, w.opts.Profiler.Interval)
}
