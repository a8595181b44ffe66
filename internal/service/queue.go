package service

import (
	"sync"

	"tensord/pkg/status"
	"tensord/pkg/types"
)

// portQueue is the bounded FIFO of pending batches for one input port.
// Capacity is checked at admission time against the handle's max_input
// property; the worker goroutine is the only consumer.
type portQueue struct {
	handle string
	port   string

	mu    sync.Mutex
	items []types.Batch
}

// push admits a batch. max <= 0 means unbounded. A full queue is reported
// as Backpressure and the queue is left untouched.
func (q *portQueue) push(b types.Batch, max int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > 0 && len(q.items) >= max {
		return status.Errorf(status.Backpressure, "input queue for port %q is full (max_input=%d)", q.port, max)
	}
	q.items = append(q.items, b)
	queueDepth.WithLabelValues(q.handle, q.port).Set(float64(len(q.items)))
	return nil
}

func (q *portQueue) pop() (types.Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	queueDepth.WithLabelValues(q.handle, q.port).Set(float64(len(q.items)))
	return b, true
}

func (q *portQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// clear discards all pending batches and returns how many were dropped.
func (q *portQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	queueDepth.WithLabelValues(q.handle, q.port).Set(0)
	return n
}
