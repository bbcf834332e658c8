package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/synapsedb/synapse/pkg/config"
	"github.com/synapsedb/synapse/pkg/engine"
)

func testConfig(t *testing.T, mode config.Mode, numShards int) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.StoragePath = t.TempDir()
	cfg.Mode = mode
	cfg.NumShards = numShards
	cfg.VectorDimension = 4
	return cfg
}

func TestOpenShardsSingleModeOpensOneShard(t *testing.T) {
	cfg := testConfig(t, config.ModeSingle, 0)
	shards, err := openShards(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openShards: %v", err)
	}
	defer func() {
		for _, sh := range shards {
			sh.Stop(context.Background())
		}
	}()
	if len(shards) != 1 {
		t.Fatalf("expected 1 shard in single mode, got %d", len(shards))
	}
}

func TestOpenShardsShardedModeOpensEachIntoOwnSubdirectory(t *testing.T) {
	cfg := testConfig(t, config.ModeSharded, 3)
	shards, err := openShards(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openShards: %v", err)
	}
	defer func() {
		for _, sh := range shards {
			sh.Stop(context.Background())
		}
	}()
	if len(shards) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(shards))
	}
	for i, sh := range shards {
		if sh.ID != i {
			t.Fatalf("expected shard %d to have ID %d, got %d", i, i, sh.ID)
		}
		dir := filepath.Join(cfg.StoragePath, fmt.Sprintf("shard-%d", i))
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected shard %d to have its own directory %s: %v", i, dir, err)
		}
	}
}

func TestBuildEngineSingleModeDoesNotOpenCoordinatorLog(t *testing.T) {
	cfg := testConfig(t, config.ModeSingle, 0)
	shards, err := openShards(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openShards: %v", err)
	}
	defer shards[0].Stop(context.Background())

	eng, coordLog, err := buildEngine(cfg, shards, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	if coordLog != nil {
		coordLog.Close()
		t.Fatal("expected no coordinator log in single mode")
	}
	if eng.SupportsTxn() {
		t.Fatal("expected a single-shard engine to not support txn")
	}
}

func TestBuildEngineShardedModeOpensCoordinatorAndSupportsTxn(t *testing.T) {
	cfg := testConfig(t, config.ModeSharded, 2)
	shards, err := openShards(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openShards: %v", err)
	}
	defer func() {
		for _, sh := range shards {
			sh.Stop(context.Background())
		}
	}()

	eng, coordLog, err := buildEngine(cfg, shards, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	if coordLog == nil {
		t.Fatal("expected a coordinator log to be opened in sharded mode")
	}
	defer coordLog.Close()
	if !eng.SupportsTxn() {
		t.Fatal("expected a clustered engine to support txn")
	}
	if _, ok := eng.(engine.Engine); !ok {
		t.Fatal("expected buildEngine to return a value satisfying engine.Engine")
	}
}
