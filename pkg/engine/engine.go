// Package engine exposes one polymorphic capability set over both
// deployment shapes named in §6.2 STORAGE_MODE: a single shard and a
// sharded cluster. The protocol server talks only to this interface, the
// same dynamic-dispatch shape the teacher's StorageEngine gave its
// query/btree backends, adapted here to dispatch over shard topology
// instead of storage backend.
package engine

import (
	"context"

	"github.com/synapsedb/synapse/pkg/pathfinder"
	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// SearchHit is one ranked result from a semantic or text search,
// deployment-shape independent.
type SearchHit struct {
	Concept  *types.Concept
	Distance float32
}

// Stats reports population and backlog, aggregated across shards when the
// engine is sharded (§6.1 Stats).
type Stats struct {
	Concepts     int
	Associations int
	Sequence     types.Sequence
	QueueDepth   int64
	ANNDegraded  bool
	ShardCount   int
}

// Engine is the narrow capability set named in §9: {learn_concept,
// learn_association, get_concept, get_neighbors, semantic_search, stats},
// extended here to the rest of the wire protocol's operations so the
// protocol server never needs to know whether it's talking to one shard
// or many.
type Engine interface {
	LearnConcept(content []byte, vector []float32, strength, confidence float32, semantic types.SemanticType) (types.Sequence, error)
	LearnAssociation(source, target types.ConceptID, assocType types.AssociationType, weight float32) (types.Sequence, error)
	LearnBatch(entries []writeplane.BatchEntry) ([]types.Sequence, error)

	GetConcept(id types.ConceptID) (*types.Concept, error)
	GetNeighbors(id types.ConceptID, assocType types.AssociationType, limit int) []snapshot.NeighborEdge
	TextSearch(tokens []string, k int) []SearchHit
	// ef overrides the ANN index's candidate-list size for this call; 0
	// falls back to the index's construction-time default (§4.5).
	SemanticSearch(ctx context.Context, query []float32, k, ef int) ([]SearchHit, error)
	FindPaths(source, target types.ConceptID, opts pathfinder.Options) ([]pathfinder.Path, error)

	Stats() Stats
	Flush() (types.Sequence, error)

	// WaitForVersion blocks until the engine's visible state reflects at
	// least seq, backing the wire protocol's min_visible_sequence field
	// (§6.1).
	WaitForVersion(ctx context.Context, id types.ConceptID, seq types.Sequence) error

	// SupportsTxn reports whether BeginTxn/CommitTxn/AbortTxn are
	// meaningful. A single-shard engine has nothing to coordinate across,
	// so 2PC is a sharded-only capability (§4.6).
	SupportsTxn() bool

	// BeginTxn, CommitTxn and AbortTxn back the wire protocol's explicit
	// transaction handshake (§6.1 0x40-0x42), the client-driven
	// counterpart to LearnBatch's implicit two-phase commit: a client
	// names the shards it intends to touch up front, then resolves the
	// transaction with a later Commit or Abort call (§4.6).
	BeginTxn(txnID string, shards []int) error
	CommitTxn(txnID string) ([]types.Sequence, error)
	AbortTxn(txnID string) error
}
