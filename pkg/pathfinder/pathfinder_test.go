package pathfinder

import (
	"testing"
	"time"

	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
)

func concept(name string) *types.Concept {
	now := time.Now()
	return &types.Concept{
		ID: types.NewConceptID([]byte(name)), Content: []byte(name),
		Strength: 1.0, Confidence: 1.0,
		Created: now, LastAccessed: now, LastReinforced: now,
	}
}

func assoc(from, to types.ConceptID, weight float32) *types.Association {
	now := time.Now()
	return &types.Association{Source: from, Target: to, Type: types.AssocSemantic, Weight: weight, Created: now, LastReinforced: now}
}

// a -> b -> d  and a -> c -> d, so two paths of equal length exist.
func buildDiamond() (*snapshot.Snapshot, types.ConceptID, types.ConceptID) {
	a, b, c, d := concept("a"), concept("b"), concept("c"), concept("d")
	builder := snapshot.NewBuilder(snapshot.Empty())
	for _, cpt := range []*types.Concept{a, b, c, d} {
		builder.UpsertConcept(cpt)
	}
	builder.UpsertAssociation(assoc(a.ID, b.ID, 0.9))
	builder.UpsertAssociation(assoc(b.ID, d.ID, 0.9))
	builder.UpsertAssociation(assoc(a.ID, c.ID, 0.5))
	builder.UpsertAssociation(assoc(c.ID, d.ID, 0.5))
	return builder.Finish(4), a.ID, d.ID
}

func TestFindPathsReturnsDiverseRoutes(t *testing.T) {
	snap, source, target := buildDiamond()
	opts := DefaultOptions()

	paths := FindPaths(snap, source, target, opts)
	if len(paths) == 0 {
		t.Fatal("expected at least one path")
	}
	for _, p := range paths {
		if p.Nodes[0] != source || p.Nodes[len(p.Nodes)-1] != target {
			t.Fatalf("path %v does not span source to target", p.Nodes)
		}
	}
	// best path should be the higher-weight b-hop route.
	if paths[0].Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %f", paths[0].Confidence)
	}
	if len(paths[0].Nodes) != 3 || paths[0].Nodes[1] != types.NewConceptID([]byte("b")) {
		t.Fatalf("expected best path to go through b, got %v", paths[0].Nodes)
	}
}

func TestFindPathsNoRouteReturnsEmpty(t *testing.T) {
	builder := snapshot.NewBuilder(snapshot.Empty())
	a, b := concept("isolated-a"), concept("isolated-b")
	builder.UpsertConcept(a)
	builder.UpsertConcept(b)
	snap := builder.Finish(2)

	paths := FindPaths(snap, a.ID, b.ID, DefaultOptions())
	if len(paths) != 0 {
		t.Fatalf("expected no paths between disconnected concepts, got %d", len(paths))
	}
}

func TestFindPathsRespectsMaxDepth(t *testing.T) {
	snap, source, target := buildDiamond()
	opts := DefaultOptions()
	opts.MaxDepth = 1 // target is 2 hops away, should be unreachable

	paths := FindPaths(snap, source, target, opts)
	if len(paths) != 0 {
		t.Fatalf("expected no paths within depth 1, got %d", len(paths))
	}
}

func TestFindPathsConfidenceFloorPrunesWeakRoutes(t *testing.T) {
	snap, source, target := buildDiamond()
	opts := DefaultOptions()
	opts.ConfidenceFloor = 0.99 // no single-hop product of weight*decay reaches this

	paths := FindPaths(snap, source, target, opts)
	if len(paths) != 0 {
		t.Fatalf("expected confidence floor to prune all routes, got %d", len(paths))
	}
}

func TestFindPathsIgnoresSelfLoopWithoutPath(t *testing.T) {
	snap, source, _ := buildDiamond()
	paths := FindPaths(snap, source, source, DefaultOptions())
	if len(paths) != 0 {
		t.Fatalf("expected no trivial zero-hop path for source==target, got %d", len(paths))
	}
}
