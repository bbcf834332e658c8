package engine

import (
	"context"
	"sort"

	"github.com/synapsedb/synapse/pkg/cluster"
	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/pathfinder"
	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/txn"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// ClusteredEngine implements Engine over a sharded cluster, routing
// single-shard operations directly and driving multi-shard batches
// through the two-phase commit coordinator (§6.2 STORAGE_MODE=sharded,
// §4.6).
type ClusteredEngine struct {
	cluster     *cluster.Cluster
	coordinator *txn.Coordinator
}

// NewClustered wires a cluster and its transaction coordinator into one
// engine.
func NewClustered(c *cluster.Cluster, coord *txn.Coordinator) *ClusteredEngine {
	return &ClusteredEngine{cluster: c, coordinator: coord}
}

func (e *ClusteredEngine) LearnConcept(content []byte, vector []float32, strength, confidence float32, semantic types.SemanticType) (types.Sequence, error) {
	return e.cluster.LearnConcept(content, vector, strength, confidence, semantic)
}

func (e *ClusteredEngine) LearnAssociation(source, target types.ConceptID, assocType types.AssociationType, weight float32) (types.Sequence, error) {
	return e.cluster.LearnAssociation(source, target, assocType, weight)
}

// LearnBatch groups entries by owning shard and, when a batch spans more
// than one shard, drives it through two-phase commit so the whole batch
// is atomically visible everywhere or nowhere (§4.6, §8 "Multi-shard
// batch committed on all shards -> visible on all"). A batch confined to
// one shard skips the coordinator entirely: it's already atomic via that
// shard's own contiguous-sequence reservation.
func (e *ClusteredEngine) LearnBatch(entries []writeplane.BatchEntry) ([]types.Sequence, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	byShard := make(map[int][]int) // shard id -> original entry indices
	for i, entry := range entries {
		shardID, err := e.shardFor(entry)
		if err != nil {
			return nil, err
		}
		byShard[shardID] = append(byShard[shardID], i)
	}

	if len(byShard) == 1 {
		for shardID := range byShard {
			return e.cluster.ShardByID(shardID).WritePlane().LearnBatch(entries)
		}
	}

	mutations := make([]txn.ShardMutation, 0, len(byShard))
	indexOrder := make(map[int][]int, len(byShard))
	for shardID, idxs := range byShard {
		shardEntries := make([]writeplane.BatchEntry, len(idxs))
		for j, idx := range idxs {
			shardEntries[j] = entries[idx]
		}
		mutations = append(mutations, txn.ShardMutation{ShardID: shardID, Entries: shardEntries})
		indexOrder[shardID] = idxs
	}

	txnID := txn.NewTxnID()
	results, err := e.coordinator.Execute(txnID, mutations)
	if err != nil {
		return nil, err
	}

	seqs := make([]types.Sequence, len(entries))
	for shardID, shardSeqs := range results {
		idxs := indexOrder[shardID]
		for j, seq := range shardSeqs {
			if j < len(idxs) {
				seqs[idxs[j]] = seq
			}
		}
	}
	return seqs, nil
}

// shardFor resolves the shard id an entry will land on without mutating
// anything: concepts route by their deterministic content hash,
// associations by their source endpoint, matching Cluster's own routing
// rules.
func (e *ClusteredEngine) shardFor(entry writeplane.BatchEntry) (int, error) {
	switch {
	case entry.Concept != nil:
		id := types.NewConceptID(entry.Concept.Content)
		return e.cluster.ShardFor(id).ID, nil
	case entry.Association != nil:
		return e.cluster.ShardFor(entry.Association.Source).ID, nil
	default:
		return 0, &synerrors.ValidationError{Reason: "batch entry has neither concept nor association"}
	}
}

func (e *ClusteredEngine) GetConcept(id types.ConceptID) (*types.Concept, error) {
	return e.cluster.GetConcept(id)
}

func (e *ClusteredEngine) GetNeighbors(id types.ConceptID, assocType types.AssociationType, limit int) []snapshot.NeighborEdge {
	return e.cluster.GetNeighbors(id, assocType, limit)
}

// TextSearch fans the token query out to every shard's local index via
// Cluster.TextSearch, which already scores and merges down to the global
// top k, mirroring SemanticSearch's fan-out-then-merge shape (§4.2, §4.6).
func (e *ClusteredEngine) TextSearch(tokens []string, k int) []SearchHit {
	results := e.cluster.TextSearch(tokens, k)
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{Concept: r.Concept, Distance: -r.Score}
	}
	return hits
}

func (e *ClusteredEngine) SemanticSearch(ctx context.Context, query []float32, k, ef int) ([]SearchHit, error) {
	results, err := e.cluster.SemanticSearch(ctx, query, k, ef)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{Concept: r.Concept, Distance: r.Distance}
	}
	return hits, nil
}

// FindPaths requires both endpoints to resolve on the same shard: the
// bounded BFS walks one snapshot at a time and cross-shard traversal
// isn't named anywhere in the spec's path-finder design, so a
// cross-shard request fails fast with ValidationError rather than
// silently only exploring one side.
func (e *ClusteredEngine) FindPaths(source, target types.ConceptID, opts pathfinder.Options) ([]pathfinder.Path, error) {
	srcShard := e.cluster.ShardFor(source)
	tgtShard := e.cluster.ShardFor(target)
	if srcShard != tgtShard {
		return nil, &synerrors.ValidationError{Reason: "find_paths across shards is not supported"}
	}
	snap := srcShard.Snapshot()
	if _, ok := snap.GetConcept(source); !ok {
		return nil, &synerrors.UnknownConceptError{ID: uint64(source)}
	}
	if _, ok := snap.GetConcept(target); !ok {
		return nil, &synerrors.UnknownConceptError{ID: uint64(target)}
	}
	return pathfinder.FindPaths(snap, source, target, opts), nil
}

func (e *ClusteredEngine) Stats() Stats {
	st := e.cluster.CombinedStats()
	agg := Stats{Concepts: st.Concepts, Associations: st.Associations, ShardCount: len(st.PerShard)}
	for _, s := range st.PerShard {
		agg.QueueDepth += s.QueueDepth
		if s.Sequence > agg.Sequence {
			agg.Sequence = s.Sequence
		}
		agg.ANNDegraded = agg.ANNDegraded || s.ANNDegraded
	}
	return agg
}

func (e *ClusteredEngine) Flush() (types.Sequence, error) {
	var last types.Sequence
	for _, sh := range e.cluster.Shards() {
		if err := sh.Checkpoint(); err != nil {
			return 0, err
		}
		if v := sh.Snapshot().Version; v > last {
			last = v
		}
	}
	return last, nil
}

func (e *ClusteredEngine) WaitForVersion(ctx context.Context, id types.ConceptID, seq types.Sequence) error {
	return e.cluster.ShardFor(id).WaitForVersion(ctx, seq)
}

func (e *ClusteredEngine) SupportsTxn() bool { return true }

// BeginTxn prepares an empty reservation for txnID on every named shard,
// driving the coordinator's explicit staging path (§4.6, §6.1 0x40).
func (e *ClusteredEngine) BeginTxn(txnID string, shards []int) error {
	return e.coordinator.Begin(txnID, shards)
}

// CommitTxn resolves a previously begun transaction to commit across every
// shard it was prepared on, returning every shard's assigned sequences in
// shard order (§4.6 step 2, §6.1 0x41).
func (e *ClusteredEngine) CommitTxn(txnID string) ([]types.Sequence, error) {
	results, err := e.coordinator.Commit(txnID)
	if err != nil {
		return nil, err
	}
	shardIDs := make([]int, 0, len(results))
	for id := range results {
		shardIDs = append(shardIDs, id)
	}
	sort.Ints(shardIDs)
	seqs := make([]types.Sequence, 0, len(results))
	for _, id := range shardIDs {
		seqs = append(seqs, results[id]...)
	}
	return seqs, nil
}

// AbortTxn resolves a previously begun transaction to abort on every shard
// it was prepared on (§4.6 step 2, §6.1 0x42).
func (e *ClusteredEngine) AbortTxn(txnID string) error {
	return e.coordinator.Abort(txnID)
}
