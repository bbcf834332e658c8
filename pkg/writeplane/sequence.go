package writeplane

import (
	"sync/atomic"

	"github.com/synapsedb/synapse/pkg/types"
)

// SequenceAllocator hands out shard-local, strictly monotonic sequence
// numbers via a single atomic fetch-add (§4.1 step 1), adapted from the
// teacher's LSNTracker.
type SequenceAllocator struct {
	current uint64
}

// NewSequenceAllocator starts the allocator at start (used on recovery, to
// resume after the highest sequence replayed from the WAL).
func NewSequenceAllocator(start types.Sequence) *SequenceAllocator {
	return &SequenceAllocator{current: uint64(start)}
}

// Next returns the next sequence number.
func (a *SequenceAllocator) Next() types.Sequence {
	return types.Sequence(atomic.AddUint64(&a.current, 1))
}

// Current returns the most recently allocated sequence.
func (a *SequenceAllocator) Current() types.Sequence {
	return types.Sequence(atomic.LoadUint64(&a.current))
}

// Reserve atomically reserves a contiguous range of n sequence numbers,
// returning the first one; used by learn_batch to keep a batch's records
// contiguous (§4.1 "all records share a contiguous sequence range").
func (a *SequenceAllocator) Reserve(n int) types.Sequence {
	last := atomic.AddUint64(&a.current, uint64(n))
	return types.Sequence(last) - types.Sequence(n) + 1
}

// Set overwrites the current sequence; used only during recovery.
func (a *SequenceAllocator) Set(v types.Sequence) {
	atomic.StoreUint64(&a.current, uint64(v))
}
