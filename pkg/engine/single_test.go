package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapsedb/synapse/pkg/ann"
	"github.com/synapsedb/synapse/pkg/pathfinder"
	"github.com/synapsedb/synapse/pkg/reconciler"
	"github.com/synapsedb/synapse/pkg/shard"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/wal"
)

func openTestShard(t *testing.T) *shard.Shard {
	t.Helper()
	opts := shard.Options{
		Dir:             t.TempDir(),
		VectorDimension: 4,
		Reconciler:      reconciler.DefaultOptions(),
		WAL:             wal.DefaultOptions(),
		ANN:             ann.DefaultOptions(),
	}
	sh, err := shard.Open(0, opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("shard.Open: %v", err)
	}
	sh.Start()
	t.Cleanup(func() {
		if err := sh.Stop(context.Background()); err != nil {
			t.Errorf("shard.Stop: %v", err)
		}
	})
	return sh
}

func TestSingleEngineLearnAndGetConcept(t *testing.T) {
	sh := openTestShard(t)
	eng := NewSingle(sh)

	seq, err := eng.LearnConcept([]byte("hello world"), []float32{0.1, 0.2, 0.3, 0.4}, 0.8, 0.9, types.SemanticDefinitional)
	if err != nil {
		t.Fatalf("LearnConcept: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.WaitForVersion(ctx, 0, seq); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}

	id := types.NewConceptID([]byte("hello world"))
	c, err := eng.GetConcept(id)
	if err != nil {
		t.Fatalf("GetConcept: %v", err)
	}
	if string(c.Content) != "hello world" {
		t.Fatalf("content mismatch: %q", c.Content)
	}

	if eng.SupportsTxn() {
		t.Fatal("SingleEngine must not claim transaction support")
	}
}

func TestSingleEngineLearnAssociationRejectsUnknownConcept(t *testing.T) {
	sh := openTestShard(t)
	eng := NewSingle(sh)

	ghost := types.NewConceptID([]byte("does-not-exist"))
	other := types.NewConceptID([]byte("also-missing"))
	if _, err := eng.LearnAssociation(ghost, other, types.AssocSemantic, 0.5); err == nil {
		t.Fatal("expected error associating unknown concepts")
	}
}

func TestSingleEngineStatsReflectsLearnedConcepts(t *testing.T) {
	sh := openTestShard(t)
	eng := NewSingle(sh)

	seq, err := eng.LearnConcept([]byte("tracked"), nil, 1.0, 1.0, types.SemanticEvent)
	if err != nil {
		t.Fatalf("LearnConcept: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.WaitForVersion(ctx, 0, seq); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}

	st := eng.Stats()
	if st.Concepts != 1 {
		t.Fatalf("expected 1 concept, got %d", st.Concepts)
	}
	if st.ShardCount != 1 {
		t.Fatalf("expected shard count 1 for single engine, got %d", st.ShardCount)
	}
}

func TestSingleEngineFindPathsRejectsUnknownEndpoint(t *testing.T) {
	sh := openTestShard(t)
	eng := NewSingle(sh)

	source := types.NewConceptID([]byte("ghost-source"))
	target := types.NewConceptID([]byte("ghost-target"))
	if _, err := eng.FindPaths(source, target, pathfinder.DefaultOptions()); err == nil {
		t.Fatal("expected error for unknown path endpoints")
	}
}

func TestSingleEngineFlushCheckpointsAndReturnsSequence(t *testing.T) {
	sh := openTestShard(t)
	eng := NewSingle(sh)

	seq, err := eng.LearnConcept([]byte("flush-me"), nil, 1.0, 1.0, types.SemanticDefinitional)
	if err != nil {
		t.Fatalf("LearnConcept: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.WaitForVersion(ctx, 0, seq); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}
	flushed, err := eng.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if flushed < seq {
		t.Fatalf("expected Flush to return a sequence of at least %d, got %d", seq, flushed)
	}
}
