package partition

import (
	"github.com/abourramouss/serverlessextract-sub000/internal/dataset"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
)

// Windows splits a time-sorted column into n contiguous row ranges of equal
// time span. Ranges are disjoint, cover every row and the last one always
// ends at len(times). A window with no rows still yields a partition.
func Windows(times []float64, n int) []domain.Partition {
	if n < 1 {
		return nil
	}
	total := len(times)
	parts := make([]domain.Partition, n)
	if total == 0 {
		for i := range parts {
			parts[i] = domain.Partition{Index: i}
		}
		return parts
	}

	first := times[0]
	chunk := (times[total-1] - first) / float64(n)

	start := 0
	for i := 0; i < n; i++ {
		end := total
		if i < n-1 {
			end = dataset.SearchTime(times, first+float64(i+1)*chunk)
			if end < start {
				end = start
			}
		}
		parts[i] = domain.Partition{Index: i, StartRow: start, EndRow: end}
		start = end
	}
	return parts
}
