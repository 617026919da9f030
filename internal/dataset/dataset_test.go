package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(times ...float64) []Row {
	out := make([]Row, len(times))
	for i, t := range times {
		out[i] = Row{Time: t, Antenna1: int32(i % 3), Antenna2: int32(i % 5), Real: float64(i), Weight: 1}
	}
	return out
}

func TestWriteRead_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "SB0.ms")
	in := &Table{Rows: rows(0, 1, 2, 3, 4)}
	in.Rows[2].Flag = true

	require.NoError(t, Write(dir, in))
	assert.FileExists(t, filepath.Join(dir, TableFile))

	out, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, in.Rows, out.Rows)
	assert.Equal(t, ColumnCount, out.Columns())
}

func TestConcatSortSlice(t *testing.T) {
	a := &Table{Rows: rows(3, 1)}
	b := &Table{Rows: rows(2, 0)}

	all := Concat(a, b)
	require.Equal(t, 4, all.Len())
	all.SortByTime()
	assert.Equal(t, []float64{0, 1, 2, 3}, all.Times())

	part := all.Slice(1, 3)
	assert.Equal(t, []float64{1, 2}, part.Times())
	part.Rows[0].Time = 99
	assert.Equal(t, float64(1), all.Rows[1].Time)
}

func TestSearchTime(t *testing.T) {
	times := []float64{0, 1, 1, 2, 3}
	assert.Equal(t, 0, SearchTime(times, -1))
	assert.Equal(t, 1, SearchTime(times, 1))
	assert.Equal(t, 3, SearchTime(times, 1.5))
	assert.Equal(t, 5, SearchTime(times, 10))
}

func TestCopyAuxiliary(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, Write(src, &Table{Rows: rows(0)}))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "ANTENNA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "ANTENNA", "table.dat"), []byte("ant"), 0o644))

	dst := t.TempDir()
	require.NoError(t, CopyAuxiliary(src, dst))
	assert.FileExists(t, filepath.Join(dst, "ANTENNA", "table.dat"))
	assert.NoFileExists(t, filepath.Join(dst, TableFile))
}
