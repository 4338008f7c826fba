package lms

import "sync"

// Queue is an unbounded FIFO handing samples from the worker to the
// broadcaster. Push never blocks.
type Queue struct {
	mu    sync.Mutex
	items []ScanSample
	head  int
}

// Push appends s.
func (q *Queue) Push(s ScanSample) {
	q.mu.Lock()
	q.items = append(q.items, s)
	q.mu.Unlock()
}

// TryPop removes the oldest sample. ok is false when the queue is empty.
func (q *Queue) TryPop() (s ScanSample, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return ScanSample{}, false
	}
	s = q.items[q.head]
	q.items[q.head] = ScanSample{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return s, true
}

// Len returns the number of queued samples.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
