// Package cluster dispatches operations across a shard set by a hash of the
// concept id (§4.6), fans out cross-shard queries and merges their results,
// and mirrors associations across the shard boundary when the two
// endpoints don't hash to the same shard. The hash-then-route shape is
// grounded on johnjansen-torua's ShardRegistry, adapted from a
// node-assignment table to a direct shard-count modulus since here every
// shard lives in this same process rather than behind a remote node.
package cluster

import (
	"context"
	"sort"

	"github.com/synapsedb/synapse/pkg/ann"
	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/shard"
	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
)

// Cluster owns every shard in a sharded deployment (§6.2 STORAGE_MODE=sharded).
type Cluster struct {
	shards []*shard.Shard
}

// New wraps an already-opened set of shards, indexed by their ID.
func New(shards []*shard.Shard) *Cluster {
	return &Cluster{shards: shards}
}

// ShardFor returns the shard a concept id is assigned to. Routing is a
// direct modulus of the id over the shard count: ConceptID is already a
// uniform 64-bit hash (xxhash of content), so no extra hashing layer is
// needed to distribute it evenly (§4.6).
func (c *Cluster) ShardFor(id types.ConceptID) *shard.Shard {
	return c.shards[uint64(id)%uint64(len(c.shards))]
}

// Shards returns every shard, for fan-out operations.
func (c *Cluster) Shards() []*shard.Shard { return c.shards }

// ShardByID looks up a shard by its own ID rather than by content hash,
// used once a caller (e.g. the engine's batch router) has already decided
// which shard an entry belongs to.
func (c *Cluster) ShardByID(id int) *shard.Shard {
	for _, s := range c.shards {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// LearnConcept routes to the owning shard by content hash (§4.1, §4.6).
// The concept id is deterministic from content, so routing doesn't need to
// see the result of LearnConcept to know which shard will own it.
func (c *Cluster) LearnConcept(content []byte, vector []float32, strength, confidence float32, semantic types.SemanticType) (types.Sequence, error) {
	id := types.NewConceptID(content)
	return c.ShardFor(id).WritePlane().LearnConcept(content, vector, strength, confidence, semantic)
}

// LearnAssociation routes by the source concept's shard. If the target
// lives on a different shard, the association is mirrored there too so
// get_neighbors and reverse lookups both resolve locally without a
// cross-shard hop on the read path (§4.6 "bidirectional mirroring").
func (c *Cluster) LearnAssociation(source, target types.ConceptID, assocType types.AssociationType, weight float32) (types.Sequence, error) {
	srcShard := c.ShardFor(source)
	tgtShard := c.ShardFor(target)

	seq, err := srcShard.WritePlane().LearnAssociation(source, target, assocType, weight)
	if err != nil {
		return 0, err
	}
	if tgtShard != srcShard {
		// Best-effort mirror: the source shard's write is already durable
		// and visible from the edge's perspective; a failed mirror leaves
		// the edge readable from the source side only until the next
		// successful learn_association call retries it. Cross-shard
		// all-or-nothing atomicity is handled separately by pkg/txn for
		// callers that need it (§4.6, spec testable property 6).
		_, _ = tgtShard.WritePlane().LearnAssociation(source, target, assocType, weight)
	}
	return seq, nil
}

// SemanticSearchResult is one ranked hit from a cluster-wide semantic search.
type SemanticSearchResult struct {
	Concept  *types.Concept
	Distance float32
}

// SemanticSearch fans the query vector out to every shard's ANN index and
// merges the results by distance, returning the global top k (§6.1
// semantic_search, §4.6 fan-out + merge). ef overrides each shard's
// candidate-list size for this call; 0 keeps the index's own default.
func (c *Cluster) SemanticSearch(ctx context.Context, query []float32, k, ef int) ([]SemanticSearchResult, error) {
	type partial struct {
		results []ann.Result
		snap    func(types.ConceptID) (*types.Concept, bool)
	}

	partials := make([]partial, len(c.shards))
	for i, s := range c.shards {
		var (
			results []ann.Result
			err     error
		)
		if ef > 0 {
			results, err = s.Index().SearchEf(query, k, ef)
		} else {
			results, err = s.Index().Search(query, k)
		}
		if err != nil {
			return nil, err
		}
		snap := s.Snapshot()
		partials[i] = partial{results: results, snap: snap.GetConcept}
	}

	var merged []SemanticSearchResult
	for _, p := range partials {
		for _, r := range p.results {
			c, ok := p.snap(r.ID)
			if !ok {
				continue
			}
			merged = append(merged, SemanticSearchResult{Concept: c, Distance: r.Distance})
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// TextSearchResult is one scored hit from a cluster-wide token search.
type TextSearchResult struct {
	Concept *types.Concept
	Score   float32
}

// TextSearch scores tokens against each shard's local token index
// independently, then merges the per-shard top-k lists down to the global
// top k by score (§4.2 token-overlap x strength, §4.6 "Text search: similar
// fan-out with merge" to SemanticSearch above).
func (c *Cluster) TextSearch(tokens []string, k int) []TextSearchResult {
	var merged []TextSearchResult
	for _, s := range c.shards {
		snap := s.Snapshot()
		for _, sc := range snap.TextSearch(tokens, k) {
			concept, ok := snap.GetConcept(sc.ID)
			if !ok {
				continue
			}
			merged = append(merged, TextSearchResult{Concept: concept, Score: sc.Score})
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if k > 0 && len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

// GetConcept looks up id on its owning shard directly, bypassing fan-out
// entirely since routing is deterministic.
func (c *Cluster) GetConcept(id types.ConceptID) (*types.Concept, error) {
	concept, ok := c.ShardFor(id).Snapshot().GetConcept(id)
	if !ok {
		return nil, &synerrors.NotFoundError{ID: uint64(id)}
	}
	return concept, nil
}

// GetNeighbors reads id's outgoing edges from its owning shard. Mirroring
// in LearnAssociation means an edge whose target lives elsewhere is still
// recorded locally on id's shard, so this never needs a second hop.
func (c *Cluster) GetNeighbors(id types.ConceptID, assocType types.AssociationType, limit int) []snapshot.NeighborEdge {
	return c.ShardFor(id).Snapshot().GetNeighbors(id, assocType, limit)
}

// ClusterStats aggregates per-shard Stats into one cluster-wide view (§6.1 Stats,
// §4.6 "Global stats: summed across shards").
type ClusterStats struct {
	Concepts     int
	Associations int
	PerShard     []shard.Stats
}

// CombinedStats reports population and backlog across every shard.
func (c *Cluster) CombinedStats() ClusterStats {
	st := ClusterStats{PerShard: make([]shard.Stats, len(c.shards))}
	for i, s := range c.shards {
		stats := s.Stats()
		st.PerShard[i] = stats
		st.Concepts += stats.Concepts
		st.Associations += stats.Associations
	}
	return st
}
