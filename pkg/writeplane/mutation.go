// Package writeplane implements the concurrent write log (§4.1): mutations
// are assigned a sequence, made durable via the WAL's group commit, and
// queued for the reconciler — all without ever blocking a producer on
// another producer's progress.
package writeplane

import (
	"time"

	"github.com/synapsedb/synapse/pkg/types"
)

// MutationKind names the kind of change a Mutation carries; codec.go maps
// each kind to its wal.Kind when the mutation is written to the WAL.
type MutationKind uint8

const (
	MutationConceptUpsert MutationKind = iota + 1
	MutationAssociationUpsert
	MutationConceptDelete
	MutationAssociationDelete
	// MutationConceptDecay carries a strength-only update produced by the
	// background decay job (§4.9); unlike a re-learn it never touches
	// content, confidence or access bookkeeping.
	MutationConceptDecay
)

// Mutation is one pending change queued for the reconciler.
type Mutation struct {
	Sequence  types.Sequence
	Timestamp time.Time
	Kind      MutationKind

	Concept     *types.Concept
	Association *types.Association

	// DeleteID/DeleteKey are set for the two delete kinds.
	DeleteID  types.ConceptID
	DeleteKey types.AssociationKey

	// DecayID/DecayStrength are set for MutationConceptDecay.
	DecayID       types.ConceptID
	DecayStrength float32
}
