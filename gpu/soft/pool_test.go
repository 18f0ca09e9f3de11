package soft

import (
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		n, parts int
		want     int
	}{
		{10, 4, 4},
		{3, 8, 3},
		{100, 1, 1},
		{7, 0, 1},
	}
	for _, tt := range tests {
		ranges := split(tt.n, tt.parts)
		if len(ranges) != tt.want {
			t.Errorf("split(%d,%d): expected %d ranges, got %d", tt.n, tt.parts, tt.want, len(ranges))
		}
		next := 0
		for _, r := range ranges {
			if r[0] != next || r[1] <= r[0] {
				t.Fatalf("split(%d,%d): non-contiguous range %v after %d", tt.n, tt.parts, r, next)
			}
			next = r[1]
		}
		if next != tt.n {
			t.Errorf("split(%d,%d): covered %d items", tt.n, tt.parts, next)
		}
	}
}

func TestWorkerPoolCoversEveryIndexOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newWorkerPool(4)
	p.start()
	defer p.stop()

	const n = 1000
	var hits [n]int32
	p.forEach(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestWorkerPoolConcurrentCallers(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newWorkerPool(3)
	p.start()
	defer p.stop()

	var total atomic.Int64
	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.forEach(500, func(start, end int) {
				total.Add(int64(end - start))
			})
		}()
	}
	wg.Wait()
	if got := total.Load(); got != 8*500 {
		t.Errorf("expected 4000 items, got %d", got)
	}
}

func TestWorkerPoolStopRunsInline(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newWorkerPool(2)
	p.start()
	p.stop()
	p.stop() // idempotent

	calls := 0
	p.forEach(100, func(start, end int) {
		calls++
		if start != 0 || end != 100 {
			t.Errorf("expected a single inline range, got [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected 1 inline call, got %d", calls)
	}
}
