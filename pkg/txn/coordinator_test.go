package txn

import (
	"path/filepath"
	"testing"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

type fakeShard struct {
	id           int
	prepareErr   error
	commitErr    error
	prepared     map[string][]writeplane.BatchEntry
	committed    []string
	aborted      []string
	pendingTxns  []string
	nextSeq      types.Sequence
}

func newFakeShard(id int) *fakeShard {
	return &fakeShard{id: id, prepared: make(map[string][]writeplane.BatchEntry), nextSeq: 100}
}

func (f *fakeShard) PrepareTxn(txnID string, entries []writeplane.BatchEntry) error {
	if f.prepareErr != nil {
		return f.prepareErr
	}
	f.prepared[txnID] = entries
	return nil
}

func (f *fakeShard) CommitTxn(txnID string) ([]types.Sequence, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	entries, ok := f.prepared[txnID]
	if !ok {
		return nil, &synerrors.ValidationError{Reason: "commit of unprepared txn"}
	}
	seqs := make([]types.Sequence, len(entries))
	for i := range entries {
		f.nextSeq++
		seqs[i] = f.nextSeq
	}
	f.committed = append(f.committed, txnID)
	delete(f.prepared, txnID)
	return seqs, nil
}

func (f *fakeShard) AbortTxn(txnID string) error {
	f.aborted = append(f.aborted, txnID)
	delete(f.prepared, txnID)
	return nil
}

func (f *fakeShard) PendingTxns() []string { return f.pendingTxns }

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coordinator.log")
	log, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func conceptEntry(content string) writeplane.BatchEntry {
	return writeplane.BatchEntry{Concept: &writeplane.ConceptInput{Content: []byte(content), Strength: 1, Confidence: 1}}
}

func TestCoordinatorExecuteCommitsAcrossShards(t *testing.T) {
	s0, s1 := newFakeShard(0), newFakeShard(1)
	c := NewCoordinator(map[int]Shard{0: s0, 1: s1}, openTestLog(t))

	txnID := NewTxnID()
	results, err := c.Execute(txnID, []ShardMutation{
		{ShardID: 0, Entries: []writeplane.BatchEntry{conceptEntry("a")}},
		{ShardID: 1, Entries: []writeplane.BatchEntry{conceptEntry("b")}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results[0]) != 1 || len(results[1]) != 1 {
		t.Fatalf("expected one sequence per shard, got %+v", results)
	}
	if len(s0.committed) != 1 || len(s1.committed) != 1 {
		t.Fatalf("expected both shards to commit, got s0=%v s1=%v", s0.committed, s1.committed)
	}
}

func TestCoordinatorExecuteAbortsAllOnPrepareFailure(t *testing.T) {
	s0, s1 := newFakeShard(0), newFakeShard(1)
	s1.prepareErr = &synerrors.ValidationError{Reason: "vector dimension mismatch"}
	c := NewCoordinator(map[int]Shard{0: s0, 1: s1}, openTestLog(t))

	txnID := NewTxnID()
	_, err := c.Execute(txnID, []ShardMutation{
		{ShardID: 0, Entries: []writeplane.BatchEntry{conceptEntry("a")}},
		{ShardID: 1, Entries: []writeplane.BatchEntry{conceptEntry("b")}},
	})
	if err == nil {
		t.Fatal("expected Execute to fail when one shard rejects prepare")
	}
	if len(s0.aborted) != 1 {
		t.Fatalf("expected shard 0 to be rolled back after shard 1's prepare failed, got %v", s0.aborted)
	}
	if len(s1.committed) != 0 {
		t.Fatal("shard 1 should never have committed")
	}
}

func TestCoordinatorExecuteRejectsUnknownShard(t *testing.T) {
	s0 := newFakeShard(0)
	c := NewCoordinator(map[int]Shard{0: s0}, openTestLog(t))

	_, err := c.Execute(NewTxnID(), []ShardMutation{
		{ShardID: 0, Entries: []writeplane.BatchEntry{conceptEntry("a")}},
		{ShardID: 99, Entries: []writeplane.BatchEntry{conceptEntry("b")}},
	})
	if err == nil {
		t.Fatal("expected error referencing an unknown shard id")
	}
	if len(s0.aborted) != 1 {
		t.Fatalf("expected shard 0 to be aborted after the unknown shard was hit, got %v", s0.aborted)
	}
}

func TestCoordinatorResolvePendingCommitsWhenLogSaysCommit(t *testing.T) {
	log := openTestLog(t)
	txnID := NewTxnID()
	if err := log.Record(txnID, OutcomeCommit); err != nil {
		t.Fatalf("Record: %v", err)
	}

	s0 := newFakeShard(0)
	s0.prepared[txnID] = []writeplane.BatchEntry{conceptEntry("recovered")}
	s0.pendingTxns = []string{txnID}

	c := NewCoordinator(map[int]Shard{0: s0}, log)
	if err := c.ResolvePending(); err != nil {
		t.Fatalf("ResolvePending: %v", err)
	}
	if len(s0.committed) != 1 {
		t.Fatalf("expected the pending txn to be committed, got committed=%v aborted=%v", s0.committed, s0.aborted)
	}
}

func TestCoordinatorBeginThenCommitAppliesOnEveryShard(t *testing.T) {
	s0, s1 := newFakeShard(0), newFakeShard(1)
	c := NewCoordinator(map[int]Shard{0: s0, 1: s1}, openTestLog(t))

	txnID := NewTxnID()
	if err := c.Begin(txnID, []int{0, 1}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, ok := s0.prepared[txnID]; !ok {
		t.Fatal("expected shard 0 to have a prepared entry after Begin")
	}

	if _, err := c.Commit(txnID); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(s0.committed) != 1 || len(s1.committed) != 1 {
		t.Fatalf("expected both shards to commit, got s0=%v s1=%v", s0.committed, s1.committed)
	}
}

func TestCoordinatorBeginThenAbortDiscardsOnEveryShard(t *testing.T) {
	s0, s1 := newFakeShard(0), newFakeShard(1)
	c := NewCoordinator(map[int]Shard{0: s0, 1: s1}, openTestLog(t))

	txnID := NewTxnID()
	if err := c.Begin(txnID, []int{0, 1}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := c.Abort(txnID); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if len(s0.aborted) != 1 || len(s1.aborted) != 1 {
		t.Fatalf("expected both shards to abort, got s0=%v s1=%v", s0.aborted, s1.aborted)
	}

	if _, err := c.Commit(txnID); err == nil {
		t.Fatal("expected committing an aborted transaction to fail")
	}
}

func TestCoordinatorCommitUnknownTxnIDReturnsError(t *testing.T) {
	s0 := newFakeShard(0)
	c := NewCoordinator(map[int]Shard{0: s0}, openTestLog(t))

	if _, err := c.Commit("never-begun"); err == nil {
		t.Fatal("expected an error committing a transaction that was never begun")
	}
}

func TestCoordinatorAbortUnknownTxnIDIsANoOp(t *testing.T) {
	s0 := newFakeShard(0)
	c := NewCoordinator(map[int]Shard{0: s0}, openTestLog(t))

	if err := c.Abort("never-begun"); err != nil {
		t.Fatalf("expected aborting an unknown txn id to be a no-op, got %v", err)
	}
}

func TestCoordinatorBeginRejectsUnknownShard(t *testing.T) {
	s0 := newFakeShard(0)
	c := NewCoordinator(map[int]Shard{0: s0}, openTestLog(t))

	txnID := NewTxnID()
	if err := c.Begin(txnID, []int{0, 99}); err == nil {
		t.Fatal("expected Begin to fail when a shard id is unknown")
	}
	if len(s0.aborted) != 1 {
		t.Fatalf("expected shard 0 to be rolled back after the unknown shard was hit, got %v", s0.aborted)
	}
}

func TestCoordinatorResolvePendingAbortsWhenLogHasNoDecision(t *testing.T) {
	log := openTestLog(t)
	txnID := NewTxnID() // never recorded

	s0 := newFakeShard(0)
	s0.prepared[txnID] = []writeplane.BatchEntry{conceptEntry("orphaned")}
	s0.pendingTxns = []string{txnID}

	c := NewCoordinator(map[int]Shard{0: s0}, log)
	if err := c.ResolvePending(); err != nil {
		t.Fatalf("ResolvePending: %v", err)
	}
	if len(s0.aborted) != 1 {
		t.Fatalf("expected the undecided txn to default to abort, got committed=%v aborted=%v", s0.committed, s0.aborted)
	}
}
