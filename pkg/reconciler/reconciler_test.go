package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// fakeIndexer tracks Insert/Remove calls without touching a real ANN index.
type fakeIndexer struct {
	inserted map[types.ConceptID][]float32
	failIDs  map[types.ConceptID]bool
	removed  []types.ConceptID
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{inserted: make(map[types.ConceptID][]float32), failIDs: make(map[types.ConceptID]bool)}
}

func (f *fakeIndexer) Insert(id types.ConceptID, vector []float32) error {
	if f.failIDs[id] {
		return errFakeInsert
	}
	f.inserted[id] = vector
	return nil
}

func (f *fakeIndexer) Remove(id types.ConceptID) {
	f.removed = append(f.removed, id)
}

type fakeInsertErr struct{}

func (fakeInsertErr) Error() string { return "fake insert failure" }

var errFakeInsert = fakeInsertErr{}

func conceptMutation(seq types.Sequence, content string, vector []float32) *writeplane.Mutation {
	now := time.Now()
	return &writeplane.Mutation{
		Sequence: seq, Timestamp: now, Kind: writeplane.MutationConceptUpsert,
		Concept: &types.Concept{
			ID: types.NewConceptID([]byte(content)), Content: []byte(content), Vector: vector,
			Strength: 0.5, Confidence: 0.5, Semantic: types.SemanticDefinitional,
			Created: now, LastAccessed: now, LastReinforced: now, AccessCount: 1, Indexed: vector != nil,
		},
	}
}

func newTestReconciler(indexer Indexer) (*Reconciler, *writeplane.Queue) {
	queue := writeplane.NewQueue(1024, 900)
	r := New(snapshot.Empty(), queue, indexer, DefaultOptions(), zerolog.Nop())
	return r, queue
}

func TestReconcilerRunAppliesQueuedMutations(t *testing.T) {
	indexer := newFakeIndexer()
	r, queue := newTestReconciler(indexer)

	m := conceptMutation(1, "reconciled concept", nil)
	if err := queue.Push(m); err != nil {
		t.Fatalf("queue.Push: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for r.Load().Version < 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for reconciler to apply the mutation")
		}
		time.Sleep(time.Millisecond)
	}

	got, ok := r.Load().GetConcept(m.Concept.ID)
	if !ok {
		t.Fatal("expected concept to be visible after reconciliation")
	}
	if string(got.Content) != "reconciled concept" {
		t.Fatalf("got content %q", got.Content)
	}
}

func TestReconcilerReinforcesRepeatedConceptInsteadOfOverwriting(t *testing.T) {
	indexer := newFakeIndexer()
	r, queue := newTestReconciler(indexer)

	first := conceptMutation(1, "repeated", nil)
	if err := queue.Push(first); err != nil {
		t.Fatalf("push first: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for r.Load().Version < 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for first reconciliation")
		}
		time.Sleep(time.Millisecond)
	}

	second := conceptMutation(2, "repeated", nil)
	second.Concept.Strength = 0.9
	if err := queue.Push(second); err != nil {
		t.Fatalf("push second: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for r.Load().Version < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for second reconciliation")
		}
		time.Sleep(time.Millisecond)
	}

	got, ok := r.Load().GetConcept(first.Concept.ID)
	if !ok {
		t.Fatal("expected concept to still exist")
	}
	if got.AccessCount != 2 {
		t.Fatalf("expected access count to accumulate to 2, got %d", got.AccessCount)
	}
	if got.Strength <= 0.5 {
		t.Fatalf("expected strength to move up from reinforcement, got %v", got.Strength)
	}
}

func TestReconcilerMarksUnindexedWhenInsertFails(t *testing.T) {
	indexer := newFakeIndexer()
	r, queue := newTestReconciler(indexer)

	m := conceptMutation(1, "doomed vector", []float32{1, 2, 3, 4})
	indexer.failIDs[m.Concept.ID] = true
	if err := queue.Push(m); err != nil {
		t.Fatalf("push: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for r.Load().Version < 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for reconciliation")
		}
		time.Sleep(time.Millisecond)
	}

	got, ok := r.Load().GetConcept(m.Concept.ID)
	if !ok {
		t.Fatal("expected concept to still be visible despite the failed ANN insert")
	}
	if got.Indexed {
		t.Fatal("expected Indexed to be false after a failed ANN insert")
	}
}

func TestReconcilerDeleteConceptRemovesFromIndex(t *testing.T) {
	indexer := newFakeIndexer()
	r, queue := newTestReconciler(indexer)

	m := conceptMutation(1, "soon deleted", []float32{1, 2, 3, 4})
	if err := queue.Push(m); err != nil {
		t.Fatalf("push concept: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for r.Load().Version < 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for initial reconciliation")
		}
		time.Sleep(time.Millisecond)
	}

	del := &writeplane.Mutation{Sequence: 2, Timestamp: time.Now(), Kind: writeplane.MutationConceptDelete, DeleteID: m.Concept.ID}
	if err := queue.Push(del); err != nil {
		t.Fatalf("push delete: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for r.Load().Version < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for delete reconciliation")
		}
		time.Sleep(time.Millisecond)
	}

	if _, ok := r.Load().GetConcept(m.Concept.ID); ok {
		t.Fatal("expected concept to be hidden after delete")
	}
	if len(indexer.removed) != 1 || indexer.removed[0] != m.Concept.ID {
		t.Fatalf("expected Indexer.Remove to be called with %v, got %v", m.Concept.ID, indexer.removed)
	}
}
