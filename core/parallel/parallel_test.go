package parallel

import (
	"sync/atomic"
	"testing"
)

func TestParallelizeCoversEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 64} {
		const items = 101
		var hits [items]int32
		Parallelize(items, workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, h)
			}
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 50, 4, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("got range [%d, %d), want [0, 10)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected a single sequential call, got %d", calls)
	}
}

func TestWorkers(t *testing.T) {
	if Workers(3) != 3 {
		t.Error("explicit worker count should be kept")
	}
	if Workers(-1) < 1 {
		t.Error("non-positive n_jobs should resolve to at least one worker")
	}
}
