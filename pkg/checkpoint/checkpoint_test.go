package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
)

func TestCreateAndLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chk")
	mgr, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer mgr.Close()

	builder := snapshot.NewBuilder(snapshot.Empty())
	now := time.Now()
	c1 := &types.Concept{ID: types.NewConceptID([]byte("alpha")), Content: []byte("alpha"), Strength: 0.5, Confidence: 0.9, Created: now, LastAccessed: now, LastReinforced: now}
	c2 := &types.Concept{ID: types.NewConceptID([]byte("beta")), Content: []byte("beta"), Strength: 0.2, Confidence: 0.4, Created: now, LastAccessed: now, LastReinforced: now}
	builder.UpsertConcept(c1)
	builder.UpsertConcept(c2)
	builder.UpsertAssociation(&types.Association{Source: c1.ID, Target: c2.ID, Type: types.AssocCausal, Weight: 0.7, Created: now, LastReinforced: now})
	snap := builder.Finish(42)

	if err := mgr.Create(snap); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := mgr.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Version != 42 {
		t.Fatalf("expected version 42, got %d", loaded.Version)
	}
	got, ok := loaded.GetConcept(c1.ID)
	if !ok || got.Strength != 0.5 {
		t.Fatalf("concept alpha not restored correctly: %+v", got)
	}
	neighbors := loaded.GetNeighbors(c1.ID, types.AssocCausal, 0)
	if len(neighbors) != 1 || neighbors[0].Target != c2.ID {
		t.Fatalf("association not restored: %+v", neighbors)
	}
}

func TestLoadEmptyStoreReturnsEmptySnapshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chk")
	mgr, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer mgr.Close()

	snap, err := mgr.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Version != 0 || snap.ConceptCount() != 0 {
		t.Fatalf("expected empty snapshot, got version=%d count=%d", snap.Version, snap.ConceptCount())
	}
}
