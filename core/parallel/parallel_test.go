package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelize(t *testing.T) {
	t.Run("covers every index exactly once", func(t *testing.T) {
		const items = 1000
		counts := make([]int32, items)
		Parallelize(items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&counts[i], 1)
			}
		})
		for i, c := range counts {
			assert.Equal(t, int32(1), c, "index %d", i)
		}
	})

	t.Run("zero items runs nothing", func(t *testing.T) {
		called := false
		Parallelize(0, func(start, end int) { called = true })
		assert.False(t, called)
	})

	t.Run("more workers than items", func(t *testing.T) {
		var total int32
		Parallelize(2, func(start, end int) {
			atomic.AddInt32(&total, int32(end-start))
		})
		assert.Equal(t, int32(2), total)
	})
}

func TestParallelizeWithThreshold(t *testing.T) {
	t.Run("below the threshold runs as one range", func(t *testing.T) {
		var calls int32
		ParallelizeWithThreshold(10, 100, func(start, end int) {
			atomic.AddInt32(&calls, 1)
			assert.Equal(t, 0, start)
			assert.Equal(t, 10, end)
		})
		assert.Equal(t, int32(1), calls)
	})

	t.Run("above the threshold still covers the range", func(t *testing.T) {
		const items = 500
		counts := make([]int32, items)
		ParallelizeWithThreshold(items, 100, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&counts[i], 1)
			}
		})
		for i, c := range counts {
			assert.Equal(t, int32(1), c, "index %d", i)
		}
	})
}
