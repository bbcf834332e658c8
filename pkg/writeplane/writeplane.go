package writeplane

import (
	"time"

	"github.com/synapsedb/synapse/pkg/snapshot"
	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/wal"
)

// SnapshotView is satisfied by the shard's atomic snapshot pointer; the
// write plane only ever reads through it to validate association
// endpoints, never to decide visibility of its own writes.
type SnapshotView interface {
	Load() *snapshot.Snapshot
}

// WritePlane accepts mutations from many concurrent callers, assigns a
// sequence, makes the mutation durable through the WAL's group commit, and
// hands it to the reconciler's queue — all without coordinating producers
// against each other (§4.1).
type WritePlane struct {
	wal       *wal.Writer
	seq       *SequenceAllocator
	queue     *Queue
	snapshots SnapshotView
	vectorDim int
}

// New builds a write plane over an already-open WAL writer.
func New(w *wal.Writer, seq *SequenceAllocator, queue *Queue, snapshots SnapshotView, vectorDim int) *WritePlane {
	return &WritePlane{wal: w, seq: seq, queue: queue, snapshots: snapshots, vectorDim: vectorDim}
}

// LearnConcept validates and durably records a new or reinforced concept
// (§4.1). Reinforcement itself — detecting that ID already exists and
// bumping strength instead of overwriting content — happens in the
// reconciler, which is the only place that can see both the incoming
// mutation and the prior snapshot value atomically (§9: concurrent
// reinforcement is best-effort, never overshoots the cap).
func (wp *WritePlane) LearnConcept(content []byte, vector []float32, strength, confidence float32, semantic types.SemanticType) (types.Sequence, error) {
	if len(content) == 0 {
		return 0, &synerrors.ValidationError{Reason: "empty content"}
	}
	if vector != nil && wp.vectorDim > 0 && len(vector) != wp.vectorDim {
		return 0, &synerrors.ValidationError{Reason: "vector dimension mismatch"}
	}
	if !semantic.Valid() {
		return 0, &synerrors.ValidationError{Reason: "unknown semantic type"}
	}

	id := types.NewConceptID(content)
	now := time.Now()
	concept := &types.Concept{
		ID: id, Content: content, Vector: vector,
		Strength: clamp01(strength), Confidence: clamp01(confidence), Semantic: semantic,
		Created: now, LastAccessed: now, LastReinforced: now, AccessCount: 1, Indexed: vector != nil,
	}

	seq := wp.seq.Next()
	m := &Mutation{Sequence: seq, Timestamp: now, Kind: MutationConceptUpsert, Concept: concept}
	if err := wp.appendAndQueue(m); err != nil {
		return 0, err
	}
	return seq, nil
}

// LearnAssociation validates endpoints against the current snapshot and
// durably records the edge (§4.1). It fails UnknownConcept without ever
// touching the WAL, satisfying §3.2's orphan-edge invariant.
func (wp *WritePlane) LearnAssociation(source, target types.ConceptID, assocType types.AssociationType, weight float32) (types.Sequence, error) {
	if !assocType.Valid() {
		return 0, &synerrors.ValidationError{Reason: "unknown association type"}
	}
	snap := wp.snapshots.Load()
	if _, ok := snap.GetConcept(source); !ok {
		return 0, &synerrors.UnknownConceptError{ID: uint64(source)}
	}
	if _, ok := snap.GetConcept(target); !ok {
		return 0, &synerrors.UnknownConceptError{ID: uint64(target)}
	}

	now := time.Now()
	assoc := &types.Association{
		Source: source, Target: target, Type: assocType, Weight: clamp01(weight),
		EvidenceCount: 1, Created: now, LastReinforced: now,
	}

	seq := wp.seq.Next()
	m := &Mutation{Sequence: seq, Timestamp: now, Kind: MutationAssociationUpsert, Association: assoc}
	if err := wp.appendAndQueue(m); err != nil {
		return 0, err
	}
	return seq, nil
}

// BatchEntry is one item of a learn_batch call; exactly one of Concept or
// Association is set by the caller before LearnBatch fills in derived
// fields.
type BatchEntry struct {
	Concept     *ConceptInput
	Association *AssociationInput
}

type ConceptInput struct {
	Content             []byte
	Vector              []float32
	Strength, Confidence float32
	Semantic            types.SemanticType
}

type AssociationInput struct {
	Source, Target types.ConceptID
	Type           types.AssociationType
	Weight         float32
}

// LearnBatch atomically reserves a contiguous sequence range and WAL-appends
// every entry as one group, per §4.1 "all records share a contiguous
// sequence range". Validation happens before any WAL write: if any entry is
// invalid, nothing in the batch is written.
func (wp *WritePlane) LearnBatch(entries []BatchEntry) ([]types.Sequence, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	snap := wp.snapshots.Load()
	mutations := make([]*Mutation, len(entries))
	now := time.Now()

	for i, e := range entries {
		switch {
		case e.Concept != nil:
			c := e.Concept
			if len(c.Content) == 0 {
				return nil, &synerrors.ValidationError{Reason: "empty content in batch"}
			}
			if c.Vector != nil && wp.vectorDim > 0 && len(c.Vector) != wp.vectorDim {
				return nil, &synerrors.ValidationError{Reason: "vector dimension mismatch in batch"}
			}
			id := types.NewConceptID(c.Content)
			mutations[i] = &Mutation{
				Timestamp: now, Kind: MutationConceptUpsert,
				Concept: &types.Concept{
					ID: id, Content: c.Content, Vector: c.Vector,
					Strength: clamp01(c.Strength), Confidence: clamp01(c.Confidence), Semantic: c.Semantic,
					Created: now, LastAccessed: now, LastReinforced: now, AccessCount: 1, Indexed: c.Vector != nil,
				},
			}

		case e.Association != nil:
			a := e.Association
			if _, ok := snap.GetConcept(a.Source); !ok {
				return nil, &synerrors.UnknownConceptError{ID: uint64(a.Source)}
			}
			if _, ok := snap.GetConcept(a.Target); !ok {
				return nil, &synerrors.UnknownConceptError{ID: uint64(a.Target)}
			}
			mutations[i] = &Mutation{
				Timestamp: now, Kind: MutationAssociationUpsert,
				Association: &types.Association{
					Source: a.Source, Target: a.Target, Type: a.Type, Weight: clamp01(a.Weight),
					EvidenceCount: 1, Created: now, LastReinforced: now,
				},
			}
		default:
			return nil, &synerrors.ValidationError{Reason: "batch entry has neither concept nor association"}
		}
	}

	first := wp.seq.Reserve(len(mutations))
	seqs := make([]types.Sequence, len(mutations))
	for i, m := range mutations {
		m.Sequence = first + types.Sequence(i)
		seqs[i] = m.Sequence
		if err := wp.appendAndQueue(m); err != nil {
			return nil, err
		}
	}
	return seqs, nil
}

// DecayConcept durably records a strength-only update for id, bypassing
// the reinforcement path entirely (§4.9). Unlike LearnConcept it never
// validates content or vector since it isn't introducing a new concept.
func (wp *WritePlane) DecayConcept(id types.ConceptID, strength float32) (types.Sequence, error) {
	seq := wp.seq.Next()
	m := &Mutation{Sequence: seq, Timestamp: time.Now(), Kind: MutationConceptDecay, DecayID: id, DecayStrength: clamp01(strength)}
	if err := wp.appendAndQueue(m); err != nil {
		return 0, err
	}
	return seq, nil
}

// QueueDepth reports the pending-mutation backlog, used by the health
// maintenance job to self-report engine state as an ordinary concept
// (§4.9).
func (wp *WritePlane) QueueDepth() int64 { return wp.queue.Depth() }

// AppendMarker durably records a control record that carries no snapshot
// mutation of its own — used by the two-phase commit coordinator to WAL a
// prepared/commit/abort marker (§4.6) without pushing anything onto the
// reconciler's queue. It still goes through the same group-commit WAL
// writer and allocates a real sequence, so markers interleave correctly
// with ordinary mutations on replay.
func (wp *WritePlane) AppendMarker(kind wal.Kind, payload []byte) (types.Sequence, error) {
	seq := wp.seq.Next()
	record := wal.NewRecord(seq, time.Now().UnixNano(), kind, payload)
	if err := wp.wal.Append(record); err != nil {
		return 0, &synerrors.DurabilityError{Cause: err}
	}
	return seq, nil
}

func (wp *WritePlane) appendAndQueue(m *Mutation) error {
	kind, payload, err := EncodeMutation(m)
	if err != nil {
		return err
	}
	record := wal.NewRecord(m.Sequence, m.Timestamp.UnixNano(), kind, payload)
	if err := wp.wal.Append(record); err != nil {
		return &synerrors.DurabilityError{Cause: err}
	}
	return wp.queue.Push(m)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
