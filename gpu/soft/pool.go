package soft

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum item count to dispatch to workers.
// Below this, running inline is faster than the channel round trip.
const parallelThreshold = 16

// workChunk is a half-open range of items for one worker.
type workChunk struct {
	start, end int
	fn         func(start, end int)
	done       *sync.WaitGroup
}

// workerPool is a persistent set of goroutines that execute row bands and
// instance ranges. Several passes may be in flight at once; each waits on
// its own WaitGroup.
type workerPool struct {
	numWorkers int

	mu       sync.RWMutex   // held for reading while a pass dispatches
	workChan chan workChunk // sends work to workers
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
}

func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &workerPool{numWorkers: numWorkers}
}

func (p *workerPool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stop waits for in-flight passes, then shuts the workers down.
func (p *workerPool) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	p.running = false
}

func (p *workerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk := <-p.workChan:
			chunk.fn(chunk.start, chunk.end)
			chunk.done.Done()
		}
	}
}

// forEach calls fn over [0, n) split into one contiguous range per worker and
// returns when every range is done. After stop it runs inline.
func (p *workerPool) forEach(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running || n < parallelThreshold {
		fn(0, n)
		return
	}

	var done sync.WaitGroup
	for _, r := range split(n, p.numWorkers) {
		done.Add(1)
		p.workChan <- workChunk{start: r[0], end: r[1], fn: fn, done: &done}
	}
	done.Wait()
}

// split divides [0, n) into at most parts contiguous ranges.
func split(n, parts int) [][2]int {
	if parts < 1 {
		parts = 1
	}
	chunkSize := (n + parts - 1) / parts
	ranges := make([][2]int, 0, parts)
	for start := 0; start < n; start += chunkSize {
		ranges = append(ranges, [2]int{start, min(start+chunkSize, n)})
	}
	return ranges
}
