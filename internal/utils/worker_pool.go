package utils

import (
	"sync"
)

// WorkerPool runs queued tasks on a fixed set of goroutines. The sampling
// loop hands publishes to the pool with TrySubmit so a slow broker drops
// work instead of stalling a poll cycle.
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

// NewWorkerPool creates a pool with the given worker and queue sizes.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	pool := &WorkerPool{
		tasks: make(chan func(), queueSize),
	}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		task()
	}
}

// Submit queues a task, blocking while the queue is full.
func (wp *WorkerPool) Submit(task func()) {
	wp.tasks <- task
}

// TrySubmit queues a task if the queue has room and reports whether the
// task was accepted.
func (wp *WorkerPool) TrySubmit(task func()) bool {
	select {
	case wp.tasks <- task:
		return true
	default:
		return false
	}
}

// Shutdown drains the queue and waits for all workers to finish.
func (wp *WorkerPool) Shutdown() {
	close(wp.tasks)
	wp.wg.Wait()
}
