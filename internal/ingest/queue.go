package ingest

import (
	"sync"

	"github.com/roach88/aether/internal/ir"
)

// job is one submitted batch awaiting the Run loop.
type job struct {
	req  ir.BatchRequest
	done chan jobResult // buffered, size 1
}

type jobResult struct {
	resp *ir.BatchResponse
	err  error
}

// batchQueue is a thread-safe FIFO of submitted batches.
//
// HTTP handlers enqueue from many goroutines; only the Run loop dequeues.
// The signal channel lets the loop wait on it alongside ctx.Done().
type batchQueue struct {
	mu     sync.Mutex
	jobs   []*job
	closed bool
	signal chan struct{} // buffered, size 1
}

func newBatchQueue() *batchQueue {
	return &batchQueue{
		jobs:   make([]*job, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds j to the back of the queue.
// Returns false if the queue is closed.
func (q *batchQueue) Enqueue(j *job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, j)

	// Non-blocking; the buffer coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front job without blocking.
func (q *batchQueue) TryDequeue() (*job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	j := q.jobs[0]
	q.jobs[0] = nil // release for GC
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Wait returns a channel that fires when jobs may be available.
// It is closed by Close.
func (q *batchQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued jobs.
func (q *batchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs and wakes the loop.
// Jobs still queued are returned so the caller can fail them.
func (q *batchQueue) Close() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)

	pending := q.jobs
	q.jobs = nil
	return pending
}
