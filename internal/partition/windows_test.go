package partition

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
)

func uniform(n int) []float64 {
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i)
	}
	return times
}

func assertCovers(t *testing.T, parts []domain.Partition, n, total int) {
	t.Helper()
	require.Len(t, parts, n)
	assert.Equal(t, 0, parts[0].StartRow)
	assert.Equal(t, total, parts[n-1].EndRow)
	for i, p := range parts {
		assert.Equal(t, i, p.Index)
		assert.LessOrEqual(t, p.StartRow, p.EndRow)
		if i > 0 {
			assert.Equal(t, parts[i-1].EndRow, p.StartRow, "partition %d is not contiguous", i)
		}
	}
}

func TestWindows_Uniform(t *testing.T) {
	parts := Windows(uniform(1000), 4)

	assertCovers(t, parts, 4, 1000)
	want := [][2]int{{0, 250}, {250, 500}, {500, 750}, {750, 1000}}
	for i, w := range want {
		assert.Equal(t, w[0], parts[i].StartRow)
		assert.Equal(t, w[1], parts[i].EndRow)
		assert.Equal(t, 250, parts[i].Rows())
	}
}

func TestWindows_CoverageProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		total := 1 + rng.Intn(500)
		times := make([]float64, total)
		for i := range times {
			times[i] = rng.Float64() * 1000
		}
		sort.Float64s(times)
		n := 1 + rng.Intn(16)

		parts := Windows(times, n)
		assertCovers(t, parts, n, total)

		var rows int
		for _, p := range parts {
			rows += p.Rows()
		}
		assert.Equal(t, total, rows)
	}
}

func TestWindows_EdgeCases(t *testing.T) {
	t.Run("single partition takes every row", func(t *testing.T) {
		parts := Windows(uniform(10), 1)
		assertCovers(t, parts, 1, 10)
	})

	t.Run("constant time puts every row in the last partition", func(t *testing.T) {
		parts := Windows([]float64{5, 5, 5}, 3)
		assertCovers(t, parts, 3, 3)
		assert.Equal(t, 0, parts[0].Rows())
		assert.Equal(t, 0, parts[1].Rows())
		assert.Equal(t, 3, parts[2].Rows())
	})

	t.Run("gap yields an empty window", func(t *testing.T) {
		parts := Windows([]float64{0, 1, 2, 9, 10}, 4)
		assertCovers(t, parts, 4, 5)
		assert.Equal(t, 0, parts[2].Rows())
	})

	t.Run("more partitions than rows", func(t *testing.T) {
		parts := Windows(uniform(2), 5)
		assertCovers(t, parts, 5, 2)
	})

	t.Run("empty column", func(t *testing.T) {
		parts := Windows(nil, 3)
		require.Len(t, parts, 3)
		for _, p := range parts {
			assert.Equal(t, 0, p.Rows())
		}
	})

	t.Run("zero partitions", func(t *testing.T) {
		assert.Nil(t, Windows(uniform(3), 0))
	})
}
