// Package shard assembles one shard's durable write path, immutable read
// plane and background reconciliation loop into a single unit (§3, §4),
// adapted from the teacher's StorageEngine which wires a WAL, a checkpoint
// manager and a B+Tree behind one facade the same way.
package shard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/synapsedb/synapse/pkg/ann"
	"github.com/synapsedb/synapse/pkg/checkpoint"
	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/reconciler"
	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/wal"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// Options configures one shard instance.
type Options struct {
	Dir             string // shard-local directory: holds wal/ and checkpoint/
	VectorDimension int
	Reconciler      reconciler.Options
	WAL             wal.Options
	ANN             ann.Options
}

// Shard is a fully self-contained storage unit: its own WAL segment, write
// plane, ANN index, reconciler and checkpoint store. A single-shard
// deployment (§6.2 STORAGE_MODE=single) is exactly one of these; a sharded
// deployment is many, dispatched by pkg/cluster.
type Shard struct {
	ID int

	wal        *wal.Writer
	writePlane *writeplane.WritePlane
	reconciler *reconciler.Reconciler
	index      *ann.Index
	checkpoint *checkpoint.Manager
	log        zerolog.Logger

	txnMu       sync.Mutex
	pendingTxns map[string]*txnState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Stats summarizes one shard's population for the wire protocol's Stats
// request (§6.1) and cluster-wide aggregation (§4.6 "Global stats: summed
// across shards").
type Stats struct {
	Concepts     int
	Associations int
	Sequence     types.Sequence
	QueueDepth   int64
	ANNDegraded  bool
}

// Stats reports this shard's current population and write-path backlog.
func (s *Shard) Stats() Stats {
	snap := s.Snapshot()
	var assocs int
	snap.AllAssociations(func(a *types.Association) bool {
		if !a.Deleted {
			assocs++
		}
		return false
	})
	return Stats{
		Concepts:     snap.ConceptCount(),
		Associations: assocs,
		Sequence:     snap.Version,
		QueueDepth:   s.writePlane.QueueDepth(),
		ANNDegraded:  s.index.IsDegraded(),
	}
}

// Open brings up a shard, recovering from the latest checkpoint plus WAL
// replay if the directory already has state (§4.4).
func Open(id int, opts Options, log zerolog.Logger) (*Shard, error) {
	log = log.With().Int("shard", id).Logger()

	walDir := filepath.Join(opts.Dir, "wal")
	chkDir := filepath.Join(opts.Dir, "checkpoint")

	chk, err := checkpoint.Open(chkDir)
	if err != nil {
		return nil, synerrors.Wrap(err, "open checkpoint store")
	}

	base, err := chk.Load()
	if err != nil {
		chk.Close()
		return nil, synerrors.Wrap(err, "load checkpoint")
	}

	index := ann.New(opts.VectorDimension, opts.ANN)
	base.AllConcepts(func(c *types.Concept) bool {
		if c.Vector != nil {
			_ = index.Insert(c.ID, c.Vector)
		}
		return false
	})

	if err := os.MkdirAll(walDir, 0o755); err != nil {
		chk.Close()
		return nil, synerrors.Wrap(err, "create wal dir")
	}
	walPath := filepath.Join(walDir, "current.wal")
	walWriter, err := wal.NewWriter(walPath, opts.WAL, uint32(opts.VectorDimension))
	if err != nil {
		chk.Close()
		return nil, synerrors.Wrap(err, "open wal")
	}

	replayed, highestSeq, pendingTxns, err := replayWAL(walPath, base.Version)
	if err != nil {
		walWriter.Close()
		chk.Close()
		return nil, synerrors.Wrap(err, "replay wal")
	}

	queue := writeplane.NewQueue(1<<16, 1<<15)
	seqAlloc := writeplane.NewSequenceAllocator(highestSeq)

	rec := reconciler.New(base, queue, index, opts.Reconciler, log)
	for _, m := range replayed {
		_ = queue.Push(m)
	}

	wp := writeplane.New(walWriter, seqAlloc, queue, rec, opts.VectorDimension)

	s := &Shard{
		ID: id, wal: walWriter, writePlane: wp, reconciler: rec,
		index: index, checkpoint: chk, log: log,
		pendingTxns: pendingTxns,
	}
	if len(pendingTxns) > 0 {
		log.Warn().Int("count", len(pendingTxns)).Msg("recovered prepared transactions awaiting coordinator resolution")
	}
	return s, nil
}

// Start launches the background reconciliation and checkpoint-trigger
// loops. Stop must be called before the process exits.
func (s *Shard) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.reconciler.Run(ctx) }()
	go func() { defer s.wg.Done(); s.checkpointLoop(ctx) }()
}

func (s *Shard) checkpointLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reconciler.CheckpointSignal:
			snap := s.reconciler.Load()
			if err := s.checkpoint.Create(snap); err != nil {
				s.log.Error().Err(err).Msg("forced checkpoint failed")
				continue
			}
			if err := s.wal.Sync(); err != nil {
				s.log.Error().Err(err).Msg("wal sync after checkpoint failed")
			}
			s.log.Info().Uint64("version", uint64(snap.Version)).Msg("checkpoint written")
		}
	}
}

// Checkpoint forces an out-of-band checkpoint at the current snapshot
// version, used by maintenance jobs and graceful shutdown.
func (s *Shard) Checkpoint() error {
	return s.checkpoint.Create(s.reconciler.Load())
}

// Stop halts background loops and flushes the WAL, taking a final
// checkpoint so the next Open has as little to replay as possible.
func (s *Shard) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return &synerrors.TimeoutError{Op: "shard stop"}
	}

	if err := s.Checkpoint(); err != nil {
		s.log.Warn().Err(err).Msg("final checkpoint failed during shutdown")
	}
	if err := s.wal.Close(); err != nil {
		return synerrors.Wrap(err, "close wal")
	}
	return s.checkpoint.Close()
}

// Snapshot returns the currently published read-plane view.
func (s *Shard) Snapshot() *snapshot.Snapshot { return s.reconciler.Load() }

// WritePlane exposes the shard's write entrypoint.
func (s *Shard) WritePlane() *writeplane.WritePlane { return s.writePlane }

// Index exposes the shard's vector index for semantic_search.
func (s *Shard) Index() *ann.Index { return s.index }

// WaitForVersion blocks until the snapshot reaches at least seq or the
// context is cancelled, used by callers that need read-your-writes after a
// learn call returns (§4.1's sequence-but-not-yet-visible contract).
func (s *Shard) WaitForVersion(ctx context.Context, seq types.Sequence) error {
	const pollInterval = 500 * time.Microsecond
	for {
		if s.reconciler.Load().Version >= seq {
			return nil
		}
		select {
		case <-ctx.Done():
			return &synerrors.TimeoutError{Op: fmt.Sprintf("wait for version %d", seq)}
		case <-time.After(pollInterval):
		}
	}
}
