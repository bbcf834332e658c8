package snapshot

import (
	"testing"
	"time"

	"github.com/synapsedb/synapse/pkg/types"
)

func newConcept(content string, semantic types.SemanticType) *types.Concept {
	now := time.Now()
	return &types.Concept{
		ID: types.NewConceptID([]byte(content)), Content: []byte(content),
		Strength: 1, Confidence: 1, Semantic: semantic,
		Created: now, LastAccessed: now, LastReinforced: now, AccessCount: 1,
	}
}

func newAssociation(source, target types.ConceptID, assocType types.AssociationType) *types.Association {
	now := time.Now()
	return &types.Association{
		Source: source, Target: target, Type: assocType,
		Weight: 1, EvidenceCount: 1, Created: now, LastReinforced: now,
	}
}

func TestBuilderUpsertConceptIsVisibleAfterFinish(t *testing.T) {
	b := NewBuilder(Empty())
	c := newConcept("hello world", types.SemanticDefinitional)
	b.UpsertConcept(c)
	snap := b.Finish(1)

	got, ok := snap.GetConcept(c.ID)
	if !ok {
		t.Fatal("expected concept to be present")
	}
	if string(got.Content) != "hello world" {
		t.Fatalf("got content %q", got.Content)
	}
}

func TestBuilderUpsertConceptIndexesTokens(t *testing.T) {
	b := NewBuilder(Empty())
	c := newConcept("alpha beta", types.SemanticDefinitional)
	b.UpsertConcept(c)
	snap := b.Finish(1)

	ids := snap.TokensFor("alpha")
	if len(ids) != 1 || ids[0] != c.ID {
		t.Fatalf("expected token index to map alpha -> %v, got %v", c.ID, ids)
	}
}

func TestBuilderUpsertConceptIndexesBySemanticType(t *testing.T) {
	b := NewBuilder(Empty())
	c := newConcept("goal concept", types.SemanticGoal)
	b.UpsertConcept(c)
	snap := b.Finish(1)

	ids := snap.BySemanticType(types.SemanticGoal)
	if len(ids) != 1 || ids[0] != c.ID {
		t.Fatalf("expected BySemanticType to return %v, got %v", c.ID, ids)
	}
}

func TestBuilderDeleteConceptTombstonesButKeepsRecord(t *testing.T) {
	b := NewBuilder(Empty())
	c := newConcept("to delete", types.SemanticDefinitional)
	b.UpsertConcept(c)
	base := b.Finish(1)

	b2 := NewBuilder(base)
	b2.DeleteConcept(c.ID, 2)
	snap := b2.Finish(2)

	if _, ok := snap.GetConcept(c.ID); ok {
		t.Fatal("expected tombstoned concept to be hidden from GetConcept")
	}
	var sawTombstone bool
	snap.AllConceptsIncludingTombstones(func(rc *types.Concept) bool {
		if rc.ID == c.ID && rc.Deleted {
			sawTombstone = true
		}
		return false
	})
	if !sawTombstone {
		t.Fatal("expected the tombstone to still be present in AllConceptsIncludingTombstones")
	}
}

func TestBuilderUpsertAssociationPopulatesForwardAndReverse(t *testing.T) {
	b := NewBuilder(Empty())
	src, tgt := newConcept("source", types.SemanticDefinitional), newConcept("target", types.SemanticDefinitional)
	b.UpsertConcept(src)
	b.UpsertConcept(tgt)
	b.UpsertAssociation(newAssociation(src.ID, tgt.ID, types.AssocSemantic))
	snap := b.Finish(1)

	fwd := snap.GetNeighbors(src.ID, types.AssocSemantic, 0)
	if len(fwd) != 1 || fwd[0].Target != tgt.ID {
		t.Fatalf("expected forward neighbor %v, got %v", tgt.ID, fwd)
	}
	rev := snap.ReverseNeighbors(tgt.ID, types.AssocSemantic, 0)
	if len(rev) != 1 || rev[0].Target != src.ID {
		t.Fatalf("expected reverse neighbor %v, got %v", src.ID, rev)
	}
}

func TestBuilderDeleteAssociationTombstonesBothDirections(t *testing.T) {
	b := NewBuilder(Empty())
	src, tgt := newConcept("a", types.SemanticDefinitional), newConcept("b", types.SemanticDefinitional)
	b.UpsertConcept(src)
	b.UpsertConcept(tgt)
	b.UpsertAssociation(newAssociation(src.ID, tgt.ID, types.AssocSemantic))
	base := b.Finish(1)

	b2 := NewBuilder(base)
	b2.DeleteAssociation(types.AssociationKey{Source: src.ID, Target: tgt.ID, Type: types.AssocSemantic}, 2)
	snap := b2.Finish(2)

	if len(snap.GetNeighbors(src.ID, types.AssocSemantic, 0)) != 0 {
		t.Fatal("expected forward neighbor to be hidden after delete")
	}
	if len(snap.ReverseNeighbors(tgt.ID, types.AssocSemantic, 0)) != 0 {
		t.Fatal("expected reverse neighbor to be hidden after delete")
	}
}

func TestBuilderSetStrengthOnlyTouchesStrength(t *testing.T) {
	b := NewBuilder(Empty())
	c := newConcept("strength target", types.SemanticDefinitional)
	c.Confidence = 0.75
	b.UpsertConcept(c)
	base := b.Finish(1)

	b2 := NewBuilder(base)
	b2.SetStrength(c.ID, 0.2)
	snap := b2.Finish(2)

	got, ok := snap.GetConcept(c.ID)
	if !ok {
		t.Fatal("expected concept to still exist")
	}
	if got.Strength != 0.2 {
		t.Fatalf("expected strength 0.2, got %v", got.Strength)
	}
	if got.Confidence != 0.75 {
		t.Fatalf("expected confidence untouched at 0.75, got %v", got.Confidence)
	}
}

func TestBuilderMarkUnindexedFlipsIndexedFlag(t *testing.T) {
	b := NewBuilder(Empty())
	c := newConcept("vectorless now", types.SemanticDefinitional)
	c.Indexed = true
	b.UpsertConcept(c)
	base := b.Finish(1)

	b2 := NewBuilder(base)
	b2.MarkUnindexed(c.ID)
	snap := b2.Finish(2)

	got, _ := snap.GetConcept(c.ID)
	if got.Indexed {
		t.Fatal("expected Indexed to be false after MarkUnindexed")
	}
}

func TestBuilderPriorConceptDistinguishesFreshFromReinforced(t *testing.T) {
	b := NewBuilder(Empty())
	if _, ok := b.PriorConcept(types.NewConceptID([]byte("never seen"))); ok {
		t.Fatal("expected no prior concept for a fresh id")
	}

	c := newConcept("known", types.SemanticDefinitional)
	b.UpsertConcept(c)
	base := b.Finish(1)

	b2 := NewBuilder(base)
	prior, ok := b2.PriorConcept(c.ID)
	if !ok {
		t.Fatal("expected a prior concept")
	}
	if string(prior.Content) != "known" {
		t.Fatalf("got content %q", prior.Content)
	}
}
