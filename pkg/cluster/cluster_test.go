package cluster

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

func openTestCluster(t *testing.T, count int) *Cluster {
	t.Helper()
	shards := make([]*shard.Shard, count)
	for i := 0; i < count; i++ {
		opts := shard.Options{
			Dir:             t.TempDir(),
			VectorDimension: 4,
			Reconciler:      reconciler.DefaultOptions(),
			WAL:             wal.DefaultOptions(),
			ANN:             ann.DefaultOptions(),
		}
		sh, err := shard.Open(i, opts, zerolog.Nop())
		if err != nil {
			t.Fatalf("shard.Open(%d): %v", i, err)
		}
		sh.Start()
		t.Cleanup(func() {
			if err := sh.Stop(context.Background()); err != nil {
				t.Errorf("shard.Stop: %v", err)
			}
		})
		shards[i] = sh
	}
	return New(shards)
}

func waitForShardVersion(t *testing.T, sh *shard.Shard, seq types.Sequence) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sh.WaitForVersion(ctx, seq); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}
}

func TestClusterShardByIDFindsOwningShard(t *testing.T) {
	c := openTestCluster(t, 4)
	for _, want := range c.Shards() {
		got := c.ShardByID(want.ID)
		if got != want {
			t.Fatalf("ShardByID(%d) returned a different shard", want.ID)
		}
	}
	if c.ShardByID(999) != nil {
		t.Fatal("expected ShardByID to return nil for an unknown id")
	}
}

func TestClusterLearnConceptRoutesDeterministically(t *testing.T) {
	c := openTestCluster(t, 4)
	content := []byte("routed concept")
	seq, err := c.LearnConcept(content, nil, 1.0, 1.0, types.SemanticDefinitional)
	if err != nil {
		t.Fatalf("LearnConcept: %v", err)
	}

	id := types.NewConceptID(content)
	owner := c.ShardFor(id)
	waitForShardVersion(t, owner, seq)

	got, err := c.GetConcept(id)
	if err != nil {
		t.Fatalf("GetConcept: %v", err)
	}
	if string(got.Content) != string(content) {
		t.Fatalf("got content %q, want %q", got.Content, content)
	}
}

func TestClusterCombinedStatsSumsAcrossShards(t *testing.T) {
	c := openTestCluster(t, 3)
	for i := 0; i < 6; i++ {
		content := []byte{byte('a' + i)}
		seq, err := c.LearnConcept(content, nil, 1.0, 1.0, types.SemanticDefinitional)
		if err != nil {
			t.Fatalf("LearnConcept: %v", err)
		}
		waitForShardVersion(t, c.ShardFor(types.NewConceptID(content)), seq)
	}

	st := c.CombinedStats()
	if st.Concepts != 6 {
		t.Fatalf("expected 6 concepts combined, got %d", st.Concepts)
	}
	if len(st.PerShard) != 3 {
		t.Fatalf("expected 3 per-shard entries, got %d", len(st.PerShard))
	}
}
