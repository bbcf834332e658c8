package writeplane

import (
	"sync/atomic"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

// Queue is the multi-producer single-consumer channel the reconciler
// drains (§4.1 step 3). Pushes never block: once depth crosses
// highWaterMark, Push returns Overloaded instead of waiting, per §5
// back-pressure policy. Capacity is generous relative to the high-water
// mark so a burst that crosses the mark can still be pushed by the
// producers already past the check (the mark is advisory, not a hard cap).
type Queue struct {
	ch           chan *Mutation
	depth        int64
	highWaterMark int64
}

// NewQueue creates a queue with the given buffer capacity and high-water
// mark for Overloaded back-pressure.
func NewQueue(capacity int, highWaterMark int64) *Queue {
	return &Queue{
		ch:            make(chan *Mutation, capacity),
		highWaterMark: highWaterMark,
	}
}

// Push enqueues m for the reconciler. It returns Overloaded when the
// queue's depth has crossed the high-water mark, letting the caller retry
// with backoff instead of blocking indefinitely (§5).
func (q *Queue) Push(m *Mutation) error {
	if atomic.LoadInt64(&q.depth) >= q.highWaterMark {
		return &synerrors.OverloadedError{Reason: "write queue depth exceeds high-water mark"}
	}
	atomic.AddInt64(&q.depth, 1)
	q.ch <- m
	return nil
}

// Drain removes up to max mutations without blocking, for the reconciler's
// batch step (§4.3 step 1). It returns fewer than max if the queue runs
// dry.
func (q *Queue) Drain(max int) []*Mutation {
	batch := make([]*Mutation, 0, max)
	for len(batch) < max {
		select {
		case m := <-q.ch:
			atomic.AddInt64(&q.depth, -1)
			batch = append(batch, m)
		default:
			return batch
		}
	}
	return batch
}

// Depth reports the current approximate queue depth, surfaced through
// WritePlane.QueueDepth and shard Stats.
func (q *Queue) Depth() int64 {
	return atomic.LoadInt64(&q.depth)
}
