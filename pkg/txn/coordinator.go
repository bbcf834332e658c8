package txn

import (
	"sync"

	"github.com/google/uuid"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// Shard is the subset of *pkg/shard.Shard the coordinator needs; named
// here so the coordinator can be tested against a fake without importing
// the shard package (which would otherwise import back into cluster/txn
// wiring in the daemon).
type Shard interface {
	PrepareTxn(txnID string, entries []writeplane.BatchEntry) error
	CommitTxn(txnID string) ([]types.Sequence, error)
	AbortTxn(txnID string) error
	PendingTxns() []string
}

// ShardMutation groups one shard's share of a cross-shard write (§4.6).
type ShardMutation struct {
	ShardID int
	Entries []writeplane.BatchEntry
}

// Coordinator drives prepare/commit/abort across a fixed shard set and
// keeps the one durable decision log recovery depends on (§4.6).
type Coordinator struct {
	shards map[int]Shard
	log    *Log

	mu   sync.Mutex
	open map[string][]int // txn id -> shards prepared by an explicit Begin
}

// NewCoordinator wires a coordinator over shards, keyed by shard id, with
// its decision log already open.
func NewCoordinator(shards map[int]Shard, log *Log) *Coordinator {
	return &Coordinator{shards: shards, log: log, open: make(map[string][]int)}
}

// NewTxnID generates a fresh transaction identifier (§4.A: google/uuid is
// the pack's identifier library of choice for this kind of correlation
// id, already used for WAL-unrelated concerns elsewhere in the teacher).
func NewTxnID() string {
	return uuid.NewString()
}

// Execute runs the full prepare/commit (or abort) protocol for one
// transaction across the shards named in mutations (§4.6 steps 1-2). It
// returns per-shard commit sequences on success.
func (c *Coordinator) Execute(txnID string, mutations []ShardMutation) (map[int][]types.Sequence, error) {
	prepared := make([]int, 0, len(mutations))

	for _, sm := range mutations {
		s, ok := c.shards[sm.ShardID]
		if !ok {
			c.abortPrepared(txnID, prepared)
			return nil, &synerrors.ValidationError{Reason: "unknown shard in transaction"}
		}
		if err := s.PrepareTxn(txnID, sm.Entries); err != nil {
			c.abortPrepared(txnID, prepared)
			_ = c.log.Record(txnID, OutcomeAbort)
			return nil, err
		}
		prepared = append(prepared, sm.ShardID)
	}

	// Every shard voted ok: the decision is durably committed before any
	// shard is told to apply it, so a crash after this point always
	// resolves to commit on replay (§4.6 step 2-3).
	if err := c.log.Record(txnID, OutcomeCommit); err != nil {
		c.abortPrepared(txnID, prepared)
		return nil, err
	}

	results := make(map[int][]types.Sequence, len(prepared))
	for _, shardID := range prepared {
		seqs, err := c.shards[shardID].CommitTxn(txnID)
		if err != nil {
			// The outcome is already durably "commit"; a shard that
			// failed to apply it here will re-apply from PendingTxns on
			// its own replay rather than being rolled back (§4.6
			// "no shard is left prepared indefinitely").
			continue
		}
		results[shardID] = seqs
	}
	return results, nil
}

func (c *Coordinator) abortPrepared(txnID string, shardIDs []int) {
	for _, id := range shardIDs {
		_ = c.shards[id].AbortTxn(txnID)
	}
}

// Begin opens an explicit transaction for a client driving prepare/commit
// itself over the wire (§6.1 0x40 BeginTxn), as opposed to LearnBatch's
// implicit two-phase commit. It prepares an empty mutation set on every
// named shard, reserving the transaction id there until Commit or Abort
// names a payload; any shard refusing the prepare rolls the others back
// (§4.6 step 1).
func (c *Coordinator) Begin(txnID string, shardIDs []int) error {
	prepared := make([]int, 0, len(shardIDs))
	for _, id := range shardIDs {
		s, ok := c.shards[id]
		if !ok {
			c.abortPrepared(txnID, prepared)
			return &synerrors.ValidationError{Reason: "unknown shard in begin_txn"}
		}
		if err := s.PrepareTxn(txnID, nil); err != nil {
			c.abortPrepared(txnID, prepared)
			return err
		}
		prepared = append(prepared, id)
	}

	c.mu.Lock()
	c.open[txnID] = prepared
	c.mu.Unlock()
	return nil
}

// Commit durably records the commit decision, then tells every shard
// named in the matching Begin to apply its prepared entries (§4.6 step 2).
// Unknown txn ids (never begun, or already resolved) are rejected rather
// than silently acknowledged.
func (c *Coordinator) Commit(txnID string) (map[int][]types.Sequence, error) {
	c.mu.Lock()
	shardIDs, ok := c.open[txnID]
	if ok {
		delete(c.open, txnID)
	}
	c.mu.Unlock()
	if !ok {
		return nil, &synerrors.ValidationError{Reason: "commit of unknown or already resolved transaction"}
	}

	if err := c.log.Record(txnID, OutcomeCommit); err != nil {
		c.abortPrepared(txnID, shardIDs)
		return nil, err
	}

	results := make(map[int][]types.Sequence, len(shardIDs))
	for _, id := range shardIDs {
		seqs, err := c.shards[id].CommitTxn(txnID)
		if err != nil {
			// The durable outcome is already "commit"; a shard that fails
			// to apply it now re-applies from PendingTxns on its own
			// replay rather than being rolled back (§4.6 "no shard is left
			// prepared indefinitely").
			continue
		}
		results[id] = seqs
	}
	return results, nil
}

// Abort durably records the abort decision and discards the prepared
// entries on every shard named in the matching Begin (§4.6 step 2). An
// unknown txn id is a no-op success: there is nothing prepared to discard.
func (c *Coordinator) Abort(txnID string) error {
	c.mu.Lock()
	shardIDs, ok := c.open[txnID]
	if ok {
		delete(c.open, txnID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	_ = c.log.Record(txnID, OutcomeAbort)
	c.abortPrepared(txnID, shardIDs)
	return nil
}

// ResolvePending is run once at startup after every shard has replayed
// its WAL: any transaction a shard still has prepared but unresolved is
// looked up in the durable log and driven to its recorded outcome, or
// aborted by default if the log never recorded one (§4.6 step 3, §9 open
// question).
func (c *Coordinator) ResolvePending() error {
	for _, s := range c.shards {
		for _, txnID := range s.PendingTxns() {
			switch c.log.Lookup(txnID) {
			case OutcomeCommit:
				if _, err := s.CommitTxn(txnID); err != nil {
					return err
				}
			default:
				if err := s.AbortTxn(txnID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
