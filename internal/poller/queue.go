package poller

import "sync"

// Queue holds pending records in issuance order.
//
// Drain hands the current contents to the caller and starts an empty tail,
// so records pushed while a tick is running are only seen by the next tick.
type Queue struct {
	mu      sync.Mutex
	records []*Record
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends r to the tail.
func (q *Queue) Push(r *Record) {
	q.mu.Lock()
	q.records = append(q.records, r)
	q.mu.Unlock()
}

// Drain removes and returns every queued record, head first.
func (q *Queue) Drain() []*Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.records
	q.records = nil
	return batch
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
