package types

import "time"

// Concept is the atomic unit of knowledge (§3.1).
type Concept struct {
	ID         ConceptID
	Content    []byte
	Vector     []float32 // nil when the concept carries no embedding
	Strength   float32
	Confidence float32
	Semantic   SemanticType

	Created      time.Time
	LastAccessed time.Time
	LastReinforced time.Time
	AccessCount  uint64

	// Indexed is false when the concept's vector failed ANN insertion; the
	// concept itself is still durable and visible, only semantic search
	// skips it until the next successful reconciliation pass (§7).
	Indexed bool

	// Deleted marks a tombstone; DeleteSeq is the sequence that retired it.
	Deleted   bool
	DeleteSeq Sequence
}

// Clone returns a deep copy safe to hand to a caller outside the snapshot.
func (c *Concept) Clone() *Concept {
	cp := *c
	if c.Content != nil {
		cp.Content = append([]byte(nil), c.Content...)
	}
	if c.Vector != nil {
		cp.Vector = append([]float32(nil), c.Vector...)
	}
	return &cp
}

// Association is a directed, typed, weighted edge between two concepts (§3.1).
type Association struct {
	Source ConceptID
	Target ConceptID
	Type   AssociationType
	Weight float32

	EvidenceCount  uint64
	Created        time.Time
	LastReinforced time.Time

	Deleted   bool
	DeleteSeq Sequence
}

func (a *Association) Key() AssociationKey {
	return AssociationKey{Source: a.Source, Target: a.Target, Type: a.Type}
}

func (a *Association) Clone() *Association {
	cp := *a
	return &cp
}

// ReinforceCap is the soft cap strength/weight reinforcement asymptotically
// approaches: reinforcement moves the value a fraction of the remaining
// distance to the cap rather than adding a fixed increment, so repeated
// reinforcement never exceeds it exactly but keeps rising.
const ReinforceCap = float32(1.0)

// Reinforce moves v toward ReinforceCap by the given fraction of the
// remaining distance. Used identically for concept strength and
// association weight reinforcement (§3.1, open question resolved in
// DESIGN.md: reinforcement is idempotent-safe and commutative enough that
// concurrent retrievals racing on the same concept degrade gracefully —
// they may under-count by one step, never overshoot the cap).
func Reinforce(v float32, fraction float32) float32 {
	if v >= ReinforceCap {
		return ReinforceCap
	}
	next := v + (ReinforceCap-v)*fraction
	if next > ReinforceCap {
		return ReinforceCap
	}
	return next
}
