// Command synapsed is the storage substrate's own daemon entrypoint: it
// resolves configuration, opens one shard or a sharded cluster, starts
// background maintenance, and serves the wire protocol until signalled to
// stop (§6). It is not the administrative CLI named as an external
// collaborator elsewhere — that talks to this daemon over the wire
// protocol from outside this repo.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/synapsedb/synapse/pkg/ann"
	"github.com/synapsedb/synapse/pkg/cluster"
	"github.com/synapsedb/synapse/pkg/config"
	"github.com/synapsedb/synapse/pkg/engine"
	"github.com/synapsedb/synapse/pkg/maintenance"
	"github.com/synapsedb/synapse/pkg/protocol"
	"github.com/synapsedb/synapse/pkg/reconciler"
	"github.com/synapsedb/synapse/pkg/shard"
	"github.com/synapsedb/synapse/pkg/telemetry"
	"github.com/synapsedb/synapse/pkg/txn"
	"github.com/synapsedb/synapse/pkg/wal"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "synapsed",
	Short: "Synapse memory substrate daemon",
	RunE:  runServe,
}

func init() {
	flags := rootCmd.Flags()
	defaults := config.Defaults()
	flags.String("storage-path", defaults.StoragePath, "base path for storage and WAL files (STORAGE_PATH)")
	flags.String("storage-host", defaults.StorageHost, "bind address (STORAGE_HOST)")
	flags.Int("storage-port", defaults.StoragePort, "bind port (STORAGE_PORT)")
	flags.Int("vector-dimension", defaults.VectorDimension, "shard-wide vector dimension (VECTOR_DIMENSION)")
	flags.String("storage-mode", string(defaults.Mode), "single or sharded (STORAGE_MODE)")
	flags.Int("num-shards", defaults.NumShards, "number of shards when sharded (NUM_SHARDS)")
	flags.Bool("secure-mode", defaults.SecureMode, "enable TLS 1.3 + HMAC auth (SECURE_MODE)")
	flags.Int("reconcile-interval-ms", defaults.ReconcileIntervalMS, "reconciler base interval (RECONCILE_INTERVAL_MS)")
	flags.Int("memory-threshold", defaults.MemoryThreshold, "pending mutations before forced checkpoint (MEMORY_THRESHOLD)")
	flags.Bool("autonomy", defaults.Autonomy, "enable background maintenance (AUTONOMY)")
	flags.String("metrics-addr", ":9090", "bind address for the Prometheus /metrics endpoint")
	flags.String("sentry-dsn", "", "Sentry DSN for durability-failure crash reporting; blank disables it")
	flags.Bool("log-pretty", false, "human-readable console logging instead of JSON")
}

func runServe(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	flagCfg := config.Defaults()
	flagCfg.StoragePath, _ = flags.GetString("storage-path")
	flagCfg.StorageHost, _ = flags.GetString("storage-host")
	flagCfg.StoragePort, _ = flags.GetInt("storage-port")
	flagCfg.VectorDimension, _ = flags.GetInt("vector-dimension")
	mode, _ := flags.GetString("storage-mode")
	flagCfg.Mode = config.Mode(mode)
	flagCfg.NumShards, _ = flags.GetInt("num-shards")
	flagCfg.SecureMode, _ = flags.GetBool("secure-mode")
	flagCfg.ReconcileIntervalMS, _ = flags.GetInt("reconcile-interval-ms")
	flagCfg.MemoryThreshold, _ = flags.GetInt("memory-threshold")
	flagCfg.Autonomy, _ = flags.GetBool("autonomy")

	cfg, err := config.FromEnv(flagCfg)
	if err != nil {
		return err
	}

	pretty, _ := flags.GetBool("log-pretty")
	log := telemetry.NewLogger("synapsed", zerolog.InfoLevel, pretty)

	dsn, _ := flags.GetString("sentry-dsn")
	if err := telemetry.InitSentry(dsn, "production"); err != nil {
		log.Warn().Err(err).Msg("sentry init failed, continuing without crash reporting")
	}

	metrics := telemetry.NewMetrics()
	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	shards, err := openShards(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		for _, sh := range shards {
			if err := sh.Stop(stopCtx); err != nil {
				log.Error().Err(err).Msg("shard stop failed")
			}
		}
	}()
	for _, sh := range shards {
		sh.Start()
	}

	eng, coordLog, err := buildEngine(cfg, shards, log)
	if err != nil {
		return err
	}
	if coordLog != nil {
		defer coordLog.Close()
	}

	if cfg.Autonomy {
		sched := maintenance.New(shards, maintenance.DefaultOptions(), log, metrics)
		sched.Start(ctx)
	}

	metricsAddr, _ := flags.GetString("metrics-addr")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	if cfg.SecureMode {
		// Certificate provisioning isn't part of the env table (§6.2) —
		// operators terminate TLS in front of synapsed or supply a
		// TLSConfig via a wrapper that embeds this command, so this
		// build proceeds without one rather than guessing at cert paths.
		log.Warn().Msg("secure_mode=true but no TLS certificate source is configured; serving without TLS")
	}

	srv, err := protocol.New(protocol.Options{
		Addr:                  fmt.Sprintf("%s:%d", cfg.StorageHost, cfg.StoragePort),
		RateLimit:             1000,
		RateBurst:             2000,
		Deadline:              30 * time.Second,
		ExpensiveOpsPerSecond: 200,
		ExpensiveOpsBurst:     50,
	}, eng, log)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func openShards(cfg config.Config, log zerolog.Logger) ([]*shard.Shard, error) {
	count := 1
	if cfg.Mode == config.ModeSharded {
		count = cfg.NumShards
	}

	opts := shard.Options{
		VectorDimension: cfg.VectorDimension,
		Reconciler: reconciler.Options{
			BaseInterval:    time.Duration(cfg.ReconcileIntervalMS) * time.Millisecond,
			MinInterval:     time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			BatchSize:       10_000,
			MemoryThreshold: cfg.MemoryThreshold,
		},
		WAL: wal.DefaultOptions(),
		ANN: ann.DefaultOptions(),
	}

	shards := make([]*shard.Shard, count)
	for i := 0; i < count; i++ {
		dir := cfg.StoragePath
		if count > 1 {
			dir = filepath.Join(cfg.StoragePath, fmt.Sprintf("shard-%d", i))
		}
		shardOpts := opts
		shardOpts.Dir = dir
		sh, err := shard.Open(i, shardOpts, log)
		if err != nil {
			for _, opened := range shards[:i] {
				if opened != nil {
					opened.Stop(context.Background())
				}
			}
			return nil, err
		}
		shards[i] = sh
	}
	return shards, nil
}

// buildEngine dispatches single vs sharded per §9's narrow capability set,
// and for sharded mode brings up the transaction coordinator with its
// durable decision log at StoragePath/coordinator.log, resolving any transaction left
// prepared by a prior crash before the engine serves its first request
// (§4.6 step 3).
func buildEngine(cfg config.Config, shards []*shard.Shard, log zerolog.Logger) (engine.Engine, *txn.Log, error) {
	if cfg.Mode == config.ModeSingle {
		return engine.NewSingle(shards[0]), nil, nil
	}

	coordLogPath := filepath.Join(cfg.StoragePath, "coordinator.log")
	coordLog, err := txn.OpenLog(coordLogPath)
	if err != nil {
		return nil, nil, err
	}

	txnShards := make(map[int]txn.Shard, len(shards))
	for _, sh := range shards {
		txnShards[sh.ID] = sh
	}
	coordinator := txn.NewCoordinator(txnShards, coordLog)
	if err := coordinator.ResolvePending(); err != nil {
		coordLog.Close()
		return nil, nil, err
	}

	c := cluster.New(shards)
	log.Info().Int("shards", len(shards)).Msg("sharded engine ready")
	return engine.NewClustered(c, coordinator), coordLog, nil
}
