// Package reconciler implements the background task that folds queued
// mutations into new immutable snapshots (§4.3). It is the only writer of
// a shard's snapshot pointer; every other component only ever reads it.
package reconciler

import (
	"context"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// Indexer is implemented by the ANN index: the reconciler inserts a
// concept's vector as part of folding the mutation in, and marks the
// concept unindexed (not failing the whole reconciliation pass) when
// insertion fails (§7).
type Indexer interface {
	Insert(id types.ConceptID, vector []float32) error
	Remove(id types.ConceptID)
}

// Options configures the reconciler's adaptive pacing (§4.3).
type Options struct {
	BaseInterval time.Duration
	MinInterval  time.Duration
	MaxInterval  time.Duration
	BatchSize    int
	// MemoryThreshold is the number of mutations applied since the last
	// checkpoint signal that forces another one, per §6.2's
	// MEMORY_THRESHOLD ("pending mutations before forced checkpoint").
	MemoryThreshold int
}

// DefaultOptions matches the spec's stated defaults (§6.2).
func DefaultOptions() Options {
	return Options{
		BaseInterval:    10 * time.Millisecond,
		MinInterval:     1 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
		BatchSize:       10_000,
		MemoryThreshold: 50_000,
	}
}

// Reconciler owns the atomic snapshot pointer for one shard.
type Reconciler struct {
	opts    Options
	queue   *writeplane.Queue
	indexer Indexer
	log     zerolog.Logger

	current unsafe.Pointer // *snapshot.Snapshot

	appliedSinceCheckpoint int64

	// CheckpointSignal is sent a version when MemoryThreshold mutations
	// have been applied since the last signal, a hint for the checkpoint
	// manager to run out of band rather than waiting on its own timer
	// (§4.3, §6.2).
	CheckpointSignal chan types.Sequence
}

// New creates a reconciler seeded with base (typically snapshot.Empty(), or
// the snapshot rebuilt from a checkpoint plus WAL replay during recovery).
func New(base *snapshot.Snapshot, queue *writeplane.Queue, indexer Indexer, opts Options, log zerolog.Logger) *Reconciler {
	r := &Reconciler{
		opts:             opts,
		queue:            queue,
		indexer:          indexer,
		log:              log.With().Str("component", "reconciler").Logger(),
		CheckpointSignal: make(chan types.Sequence, 1),
	}
	atomic.StorePointer(&r.current, unsafe.Pointer(base))
	return r
}

// Load implements writeplane.SnapshotView: atomic, lock-free, wait-free.
func (r *Reconciler) Load() *snapshot.Snapshot {
	return (*snapshot.Snapshot)(atomic.LoadPointer(&r.current))
}

// Run drains the queue until ctx is cancelled, pacing itself adaptively
// between base/min/max interval based on how many mutations the last pass
// applied (§4.3): a full batch (BatchSize or more) halves the sleep
// towards MinInterval so backlog drains faster; an empty pass doubles it
// towards MaxInterval to avoid spinning.
func (r *Reconciler) Run(ctx context.Context) {
	interval := r.opts.BaseInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		n := r.reconcileOnce()
		interval = r.nextInterval(interval, n)
	}
}

func (r *Reconciler) nextInterval(prev time.Duration, applied int) time.Duration {
	switch {
	case applied >= r.opts.BatchSize:
		prev = prev / 2
	case applied == 0:
		prev = prev * 2
	default:
		return prev
	}
	if prev < r.opts.MinInterval {
		return r.opts.MinInterval
	}
	if prev > r.opts.MaxInterval {
		return r.opts.MaxInterval
	}
	return prev
}

// reconcileOnce drains one batch and publishes the resulting snapshot. It
// returns the number of mutations applied.
func (r *Reconciler) reconcileOnce() int {
	batch := r.queue.Drain(r.opts.BatchSize)
	if len(batch) == 0 {
		return 0
	}

	base := r.Load()
	builder := snapshot.NewBuilder(base)

	var version types.Sequence
	for _, m := range batch {
		r.apply(builder, m)
		if m.Sequence > version {
			version = m.Sequence
		}
	}

	next := builder.Finish(version)
	atomic.StorePointer(&r.current, unsafe.Pointer(next))

	r.log.Debug().Int("applied", len(batch)).Uint64("version", uint64(version)).Msg("reconciled batch")

	applied := atomic.AddInt64(&r.appliedSinceCheckpoint, int64(len(batch)))
	if r.opts.MemoryThreshold > 0 && applied >= int64(r.opts.MemoryThreshold) {
		atomic.StoreInt64(&r.appliedSinceCheckpoint, 0)
		select {
		case r.CheckpointSignal <- version:
		default:
		}
	}
	return len(batch)
}

func (r *Reconciler) apply(b *snapshot.Builder, m *writeplane.Mutation) {
	switch m.Kind {
	case writeplane.MutationConceptUpsert:
		c := m.Concept
		if prior, ok := b.PriorConcept(c.ID); ok {
			c = reinforceConcept(prior, c)
		}
		b.UpsertConcept(c)
		if c.Vector != nil {
			if err := r.indexer.Insert(c.ID, c.Vector); err != nil {
				r.log.Warn().Err(err).Uint64("concept", uint64(c.ID)).Msg("ann insert failed, marking unindexed")
				b.MarkUnindexed(c.ID)
			}
		}

	case writeplane.MutationAssociationUpsert:
		a := m.Association
		if prior, ok := b.PriorAssociation(a.Key()); ok {
			a = reinforceAssociation(prior, a)
		}
		b.UpsertAssociation(a)

	case writeplane.MutationConceptDelete:
		b.DeleteConcept(m.DeleteID, m.Sequence)
		r.indexer.Remove(m.DeleteID)

	case writeplane.MutationAssociationDelete:
		b.DeleteAssociation(m.DeleteKey, m.Sequence)

	case writeplane.MutationConceptDecay:
		b.SetStrength(m.DecayID, m.DecayStrength)
	}
}

// reinforceConcept folds a re-learned concept into the existing one instead
// of overwriting it: strength and confidence move toward their caps, access
// bookkeeping accumulates, content and id stay fixed (§3.2, §9).
func reinforceConcept(prior, incoming *types.Concept) *types.Concept {
	c := prior.Clone()
	c.Strength = types.Reinforce(prior.Strength, incoming.Strength)
	if incoming.Confidence > c.Confidence {
		c.Confidence = incoming.Confidence
	}
	c.LastReinforced = incoming.LastReinforced
	c.LastAccessed = incoming.LastAccessed
	c.AccessCount = prior.AccessCount + 1
	if incoming.Vector != nil {
		c.Vector = incoming.Vector
		c.Indexed = true
	}
	c.Deleted = false
	return c
}

// reinforceAssociation folds a re-learned edge into the existing one,
// treating repeated observation as evidence (§3.2).
func reinforceAssociation(prior, incoming *types.Association) *types.Association {
	a := prior.Clone()
	a.Weight = types.Reinforce(prior.Weight, incoming.Weight)
	a.EvidenceCount = prior.EvidenceCount + 1
	a.LastReinforced = incoming.LastReinforced
	a.Deleted = false
	return a
}
