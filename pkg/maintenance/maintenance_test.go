package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapsedb/synapse/pkg/ann"
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

func learnAndWait(t *testing.T, sh *shard.Shard, content string) types.ConceptID {
	t.Helper()
	seq, err := sh.WritePlane().LearnConcept([]byte(content), nil, 1.0, 1.0, types.SemanticDefinitional)
	if err != nil {
		t.Fatalf("LearnConcept: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sh.WaitForVersion(ctx, seq); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}
	return types.NewConceptID([]byte(content))
}

func TestRunHealthWritesMetricConcepts(t *testing.T) {
	sh := openTestShard(t)
	learnAndWait(t, sh, "tracked-for-health")

	opts := DefaultOptions()
	sched := New([]*shard.Shard{sh}, opts, zerolog.Nop(), nil)
	sched.runHealth(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var found bool
	for !found {
		snap := sh.Snapshot()
		snap.AllConcepts(func(c *types.Concept) bool {
			if string(c.Content) == "engine.health.concepts=1" {
				found = true
				return true
			}
			return false
		})
		if found {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatal("timed out waiting for health metric concept to become visible")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunTriggersFiresReinforceAction(t *testing.T) {
	sh := openTestShard(t)
	targetContent := []byte("a concept strong enough to trigger reinforcement")
	// Strength starts below the reinforcement cap so the trigger's
	// reinforce action has visible room to move it.
	targetSeq, err := sh.WritePlane().LearnConcept(targetContent, nil, 0.5, 1.0, types.SemanticDefinitional)
	if err != nil {
		t.Fatalf("LearnConcept target: %v", err)
	}
	target := types.NewConceptID(targetContent)

	ruleContent := []byte("strength>=0.5 => reinforce:0.2")
	seq, err := sh.WritePlane().LearnConcept(ruleContent, nil, 1.0, 1.0, types.SemanticRule)
	if err != nil {
		t.Fatalf("LearnConcept rule: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sh.WaitForVersion(ctx, targetSeq); err != nil {
		t.Fatalf("WaitForVersion(target): %v", err)
	}
	if err := sh.WaitForVersion(ctx, seq); err != nil {
		t.Fatalf("WaitForVersion(rule): %v", err)
	}

	sched := New([]*shard.Shard{sh}, DefaultOptions(), zerolog.Nop(), nil)
	sched.runTriggers(context.Background())

	before, _ := sh.Snapshot().GetConcept(target)
	if before == nil {
		t.Fatal("expected target concept to exist")
	}
	// runTriggers enqueues a DecayConcept write asynchronously through the
	// write plane; poll until it lands or time out.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	for {
		c, ok := sh.Snapshot().GetConcept(target)
		if ok && c.Strength != before.Strength {
			return
		}
		select {
		case <-ctx2.Done():
			t.Fatal("timed out waiting for trigger-driven reinforcement to apply")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunGapDetectionPublishesIsolatedConcept(t *testing.T) {
	sh := openTestShard(t)
	learnAndWait(t, sh, "isolated concept with no associations")

	sched := New([]*shard.Shard{sh}, DefaultOptions(), zerolog.Nop(), nil)
	events := sched.Hub().Subscribe("test")

	sched.runGapDetection(context.Background())

	select {
	case ev := <-events:
		if ev.Kind != EventGapIsolated {
			t.Fatalf("expected EventGapIsolated, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an isolated-concept event to be published")
	}
}
