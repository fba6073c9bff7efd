package gateway

import (
	"context"
	"log"
	"sync"
)

// Worker executes detached task jobs on a fixed pool of goroutines. The
// contract is deliberately weak: best-effort execution, no retry, no
// cancellation. A caller that needs the outcome observes it through the
// notification sink, the event stream or the task store.
type Worker struct {
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewWorker starts a worker pool with the given queue capacity and
// concurrency.
func NewWorker(queueLen, workers int) *Worker {
	if workers < 1 {
		workers = 1
	}
	w := &Worker{jobs: make(chan func(), queueLen)}

	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for job := range w.jobs {
				job()
			}
		}()
	}
	return w
}

// Enqueue submits a job. It never blocks: when the queue is full or the
// worker is shut down the job is rejected and false is returned.
func (w *Worker) Enqueue(job func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting jobs and waits for in-flight ones, bounded by
// ctx.
func (w *Worker) Shutdown(ctx context.Context) {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf(`{"level":"warn","message":"Worker shutdown timed out with jobs in flight"}`)
	}
}
