package engine

import (
	"context"

	"github.com/synapsedb/synapse/pkg/ann"
	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/pathfinder"
	"github.com/synapsedb/synapse/pkg/shard"
	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// SingleEngine implements Engine over exactly one shard (§6.2
// STORAGE_MODE=single).
type SingleEngine struct {
	shard *shard.Shard
}

// NewSingle wraps an already-opened shard.
func NewSingle(sh *shard.Shard) *SingleEngine {
	return &SingleEngine{shard: sh}
}

func (e *SingleEngine) LearnConcept(content []byte, vector []float32, strength, confidence float32, semantic types.SemanticType) (types.Sequence, error) {
	return e.shard.WritePlane().LearnConcept(content, vector, strength, confidence, semantic)
}

func (e *SingleEngine) LearnAssociation(source, target types.ConceptID, assocType types.AssociationType, weight float32) (types.Sequence, error) {
	return e.shard.WritePlane().LearnAssociation(source, target, assocType, weight)
}

func (e *SingleEngine) LearnBatch(entries []writeplane.BatchEntry) ([]types.Sequence, error) {
	return e.shard.WritePlane().LearnBatch(entries)
}

func (e *SingleEngine) GetConcept(id types.ConceptID) (*types.Concept, error) {
	c, ok := e.shard.Snapshot().GetConcept(id)
	if !ok {
		return nil, &synerrors.NotFoundError{ID: uint64(id)}
	}
	return c, nil
}

func (e *SingleEngine) GetNeighbors(id types.ConceptID, assocType types.AssociationType, limit int) []snapshot.NeighborEdge {
	return e.shard.Snapshot().GetNeighbors(id, assocType, limit)
}

func (e *SingleEngine) TextSearch(tokens []string, k int) []SearchHit {
	snap := e.shard.Snapshot()
	scored := snap.TextSearch(tokens, k)
	hits := make([]SearchHit, 0, len(scored))
	for _, sc := range scored {
		c, ok := snap.GetConcept(sc.ID)
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Concept: c, Distance: -sc.Score})
	}
	return hits
}

func (e *SingleEngine) SemanticSearch(ctx context.Context, query []float32, k, ef int) ([]SearchHit, error) {
	var (
		results []ann.Result
		err     error
	)
	if ef > 0 {
		results, err = e.shard.Index().SearchEf(query, k, ef)
	} else {
		results, err = e.shard.Index().Search(query, k)
	}
	if err != nil {
		return nil, err
	}
	snap := e.shard.Snapshot()
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		c, ok := snap.GetConcept(r.ID)
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Concept: c, Distance: r.Distance})
	}
	return hits, nil
}

func (e *SingleEngine) FindPaths(source, target types.ConceptID, opts pathfinder.Options) ([]pathfinder.Path, error) {
	snap := e.shard.Snapshot()
	if _, ok := snap.GetConcept(source); !ok {
		return nil, &synerrors.UnknownConceptError{ID: uint64(source)}
	}
	if _, ok := snap.GetConcept(target); !ok {
		return nil, &synerrors.UnknownConceptError{ID: uint64(target)}
	}
	return pathfinder.FindPaths(snap, source, target, opts), nil
}

func (e *SingleEngine) Stats() Stats {
	s := e.shard.Stats()
	return Stats{
		Concepts: s.Concepts, Associations: s.Associations, Sequence: s.Sequence,
		QueueDepth: s.QueueDepth, ANNDegraded: s.ANNDegraded, ShardCount: 1,
	}
}

func (e *SingleEngine) Flush() (types.Sequence, error) {
	if err := e.shard.Checkpoint(); err != nil {
		return 0, err
	}
	return e.shard.Snapshot().Version, nil
}

func (e *SingleEngine) WaitForVersion(ctx context.Context, id types.ConceptID, seq types.Sequence) error {
	return e.shard.WaitForVersion(ctx, seq)
}

func (e *SingleEngine) SupportsTxn() bool { return false }

func (e *SingleEngine) BeginTxn(txnID string, shards []int) error {
	return &synerrors.ValidationError{Reason: "transactions require a sharded deployment"}
}

func (e *SingleEngine) CommitTxn(txnID string) ([]types.Sequence, error) {
	return nil, &synerrors.ValidationError{Reason: "transactions require a sharded deployment"}
}

func (e *SingleEngine) AbortTxn(txnID string) error {
	return &synerrors.ValidationError{Reason: "transactions require a sharded deployment"}
}
