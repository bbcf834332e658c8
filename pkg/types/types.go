// Package types defines the identifiers and enums shared across the engine:
// concept ids, semantic types, association types and sequence numbers.
package types

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ConceptID is a 64-bit collision-resistant hash of normalized content.
// It is stable across restarts and shards: the same content always yields
// the same id (§3.1, §8 "identical content -> identical id across restarts").
type ConceptID uint64

// Sequence is a shard-local, strictly monotonic WAL/mutation sequence number.
type Sequence uint64

// NewConceptID hashes normalized content into a stable identity.
//
// Normalization here is deliberately minimal (trim is the caller's job);
// the hash itself must never change across releases or the identity
// invariant in §3.2 breaks.
func NewConceptID(normalizedContent []byte) ConceptID {
	return ConceptID(xxhash.Sum64(normalizedContent))
}

// Bytes returns the big-endian encoding of the id, used as a radix-tree key.
func (c ConceptID) Bytes() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(c))
	return buf[:]
}

// SemanticType classifies a concept's role in the knowledge graph.
type SemanticType uint8

const (
	SemanticEntity SemanticType = iota
	SemanticEvent
	SemanticRule
	SemanticTemporal
	SemanticNegation
	SemanticCondition
	SemanticCausal
	SemanticQuantitative
	SemanticDefinitional
	SemanticGoal
)

func (t SemanticType) String() string {
	names := [...]string{
		"Entity", "Event", "Rule", "Temporal", "Negation",
		"Condition", "Causal", "Quantitative", "Definitional", "Goal",
	}
	if int(t) >= len(names) {
		return "Unknown"
	}
	return names[t]
}

// Valid reports whether t is one of the defined semantic types.
func (t SemanticType) Valid() bool {
	return t <= SemanticGoal
}

// AssociationType classifies a directed edge between two concepts.
type AssociationType uint8

const (
	AssocSemantic AssociationType = iota
	AssocTemporal
	AssocCausal
	AssocHierarchical
	AssocContradictory
	AssocContextual
	AssocAnalogical
)

func (t AssociationType) String() string {
	names := [...]string{
		"Semantic", "Temporal", "Causal", "Hierarchical",
		"Contradictory", "Contextual", "Analogical",
	}
	if int(t) >= len(names) {
		return "Unknown"
	}
	return names[t]
}

// Valid reports whether t is one of the defined association types.
func (t AssociationType) Valid() bool {
	return t <= AssocAnalogical
}

// AssociationKey is the (source, target, type) triple identifying an edge.
// A given triple occurs at most once per §3.1.
type AssociationKey struct {
	Source ConceptID
	Target ConceptID
	Type   AssociationType
}

// AdjacencyKey is (source, type): the bucket an association lives in for
// get_neighbors lookups.
type AdjacencyKey struct {
	Source ConceptID
	Type   AssociationType
}

// Bytes encodes the adjacency key as a radix-tree key: source id followed by
// the type discriminant.
func (k AdjacencyKey) Bytes() []byte {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf[:8], uint64(k.Source))
	buf[8] = byte(k.Type)
	return buf
}
