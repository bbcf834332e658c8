// Package snapshot implements the immutable, versioned read plane (§4.2).
// A Snapshot is a persistent data structure: each reconciliation produces a
// new root sharing unchanged sub-trees with the previous one via
// hashicorp/go-immutable-radix, so publishing a new version costs
// O(batch-size) node allocations rather than a full copy.
package snapshot

import (
	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/synapsedb/synapse/pkg/types"
)

// Snapshot is an immutable, versioned view of one shard's concepts and
// associations (§3.1). All fields are read-only after construction; it is
// safe for any number of concurrent readers to share one without locking.
type Snapshot struct {
	Version types.Sequence

	concepts *iradix.Tree // ConceptID bytes -> *types.Concept
	// adjacency maps AdjacencyKey bytes -> *adjacencyBucket of that source's edges,
	// giving get_neighbors(id, type) an ordered bucket without scanning
	// every association in the shard.
	adjacency *iradix.Tree
	// reverse mirrors adjacency keyed by (target, type) for reverse-neighbor lookups.
	reverse *iradix.Tree
	// tokens maps a lower-cased token to the set of concept ids containing it.
	tokens *iradix.Tree
	// bySemantic maps a SemanticType byte to the set of concept ids of that type.
	bySemantic *iradix.Tree
}

// Empty returns the zero-version snapshot used before the engine has
// reconciled any mutation.
func Empty() *Snapshot {
	return &Snapshot{
		concepts:   iradix.New(),
		adjacency:  iradix.New(),
		reverse:    iradix.New(),
		tokens:     iradix.New(),
		bySemantic: iradix.New(),
	}
}

// GetConcept returns the concept for id, or false if absent or tombstoned.
func (s *Snapshot) GetConcept(id types.ConceptID) (*types.Concept, bool) {
	v, ok := s.concepts.Get(id.Bytes())
	if !ok {
		return nil, false
	}
	c := v.(*types.Concept)
	if c.Deleted {
		return nil, false
	}
	return c, true
}

// conceptRaw returns the raw stored concept regardless of tombstone state.
func (s *Snapshot) conceptRaw(id types.ConceptID) (*types.Concept, bool) {
	v, ok := s.concepts.Get(id.Bytes())
	if !ok {
		return nil, false
	}
	return v.(*types.Concept), true
}

// NeighborEdge is one entry returned by GetNeighbors.
type NeighborEdge struct {
	Target      types.ConceptID
	Association *types.Association
}

// GetNeighbors returns the outgoing edges from id of the given type, in
// insertion order within the reconciliation batch that produced them
// (§4.2). limit <= 0 means unbounded.
func (s *Snapshot) GetNeighbors(id types.ConceptID, assocType types.AssociationType, limit int) []NeighborEdge {
	key := types.AdjacencyKey{Source: id, Type: assocType}
	v, ok := s.adjacency.Get(key.Bytes())
	if !ok {
		return nil
	}
	bucket := v.(*adjacencyBucket)
	return bucket.slice(limit)
}

// ReverseNeighbors returns the incoming edges into id of the given type.
func (s *Snapshot) ReverseNeighbors(id types.ConceptID, assocType types.AssociationType, limit int) []NeighborEdge {
	key := types.AdjacencyKey{Source: id, Type: assocType}
	v, ok := s.reverse.Get(key.Bytes())
	if !ok {
		return nil
	}
	bucket := v.(*adjacencyBucket)
	return bucket.slice(limit)
}

// ConceptCount returns the number of live (non-tombstoned) concepts.
// It is O(n) over the radix tree's leaves; no cached count is kept.
func (s *Snapshot) ConceptCount() int {
	n := 0
	s.concepts.Root().Walk(func(_ []byte, v interface{}) bool {
		if !v.(*types.Concept).Deleted {
			n++
		}
		return false
	})
	return n
}

// TokensFor returns the concept ids indexed under token (exact match on the
// normalized token).
func (s *Snapshot) TokensFor(token string) []types.ConceptID {
	v, ok := s.tokens.Get([]byte(token))
	if !ok {
		return nil
	}
	return v.(*idSet).ids()
}

// BySemanticType returns every concept id of the given semantic type.
func (s *Snapshot) BySemanticType(t types.SemanticType) []types.ConceptID {
	v, ok := s.bySemantic.Get([]byte{byte(t)})
	if !ok {
		return nil
	}
	return v.(*idSet).ids()
}

// AllConceptsIncludingTombstones invokes fn for every concept, live or
// deleted, used by checkpoint serialization which must preserve tombstones
// across a restart (§3.3).
func (s *Snapshot) AllConceptsIncludingTombstones(fn func(*types.Concept) bool) {
	s.concepts.Root().Walk(func(_ []byte, v interface{}) bool {
		return fn(v.(*types.Concept))
	})
}

// AllAssociations invokes fn for every association, live or tombstoned,
// exactly once, used by checkpoint serialization. Associations live in
// both the forward and reverse adjacency indexes; this walks only the
// forward one to avoid visiting each edge twice.
func (s *Snapshot) AllAssociations(fn func(*types.Association) bool) {
	s.adjacency.Root().Walk(func(_ []byte, v interface{}) bool {
		bucket := v.(*adjacencyBucket)
		for _, target := range bucket.order {
			if fn(bucket.byKey[target]) {
				return true
			}
		}
		return false
	})
}

// HasAnyAssociation reports whether a and b are joined by an edge of any
// type, in either direction, used by the gap-detection maintenance job to
// tell an isolated concept from a connected one and to skip near-miss
// pairs that are already associated (§4.9).
func (s *Snapshot) HasAnyAssociation(a, b types.ConceptID) bool {
	for t := types.AssocSemantic; t <= types.AssocAnalogical; t++ {
		for _, e := range s.GetNeighbors(a, t, 0) {
			if e.Target == b {
				return true
			}
		}
		for _, e := range s.GetNeighbors(b, t, 0) {
			if e.Target == a {
				return true
			}
		}
	}
	return false
}

// AllConcepts invokes fn for every live concept; used by maintenance jobs
// that must read the whole snapshot (decay, gap detection). Concepts are
// shared, immutable data — fn must not mutate the pointer it receives.
// fn returns true to stop the walk early, matching the underlying radix
// tree's Walk convention.
func (s *Snapshot) AllConcepts(fn func(*types.Concept) bool) {
	s.concepts.Root().Walk(func(_ []byte, v interface{}) bool {
		c := v.(*types.Concept)
		if c.Deleted {
			return false
		}
		return fn(c)
	})
}
