package shard

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/wal"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// preparedPayload is the bson-encoded body of a KindTxnPrepared WAL record:
// the transaction id plus everything needed to replay the batch on commit
// (§4.6 step 1: "naming a transaction id and the mutation payloads").
type preparedPayload struct {
	TxnID   string                  `bson:"txn_id"`
	Entries []writeplane.BatchEntry `bson:"entries"`
}

type markerPayload struct {
	TxnID string `bson:"txn_id"`
}

// txnState holds a shard's view of one in-flight cross-shard transaction
// between prepare and its eventual commit or abort.
type txnState struct {
	entries []writeplane.BatchEntry
}

// PrepareTxn checks that every concept entry has content and that every
// association's endpoints exist in the current snapshot; vector dimension
// and semantic type are not checked here. It then WAL-appends a prepared
// marker without applying
// anything to the write queue (§4.6 step 1). The entries themselves only
// become visible mutations on CommitTxn.
func (s *Shard) PrepareTxn(txnID string, entries []writeplane.BatchEntry) error {
	snap := s.Snapshot()
	for _, e := range entries {
		switch {
		case e.Concept != nil:
			if len(e.Concept.Content) == 0 {
				return &synerrors.ValidationError{Reason: "empty content in prepared txn batch"}
			}
		case e.Association != nil:
			if _, ok := snap.GetConcept(e.Association.Source); !ok {
				return &synerrors.UnknownConceptError{ID: uint64(e.Association.Source)}
			}
			if _, ok := snap.GetConcept(e.Association.Target); !ok {
				return &synerrors.UnknownConceptError{ID: uint64(e.Association.Target)}
			}
		default:
			return &synerrors.ValidationError{Reason: "prepared txn entry has neither concept nor association"}
		}
	}

	payload, err := bson.Marshal(preparedPayload{TxnID: txnID, Entries: entries})
	if err != nil {
		return synerrors.Wrap(err, "encode prepared txn payload")
	}
	if _, err := s.writePlane.AppendMarker(wal.KindTxnPrepared, payload); err != nil {
		return err
	}

	s.txnMu.Lock()
	if s.pendingTxns == nil {
		s.pendingTxns = make(map[string]*txnState)
	}
	s.pendingTxns[txnID] = &txnState{entries: entries}
	s.txnMu.Unlock()
	return nil
}

// CommitTxn applies a previously prepared transaction's entries through
// the ordinary write path and WAL-appends a commit marker (§4.6 step 2).
// It is an error to commit a transaction this shard never prepared (or
// already resolved) — the coordinator is expected to track which shards
// it sent a prepare to.
func (s *Shard) CommitTxn(txnID string) ([]types.Sequence, error) {
	s.txnMu.Lock()
	st, ok := s.pendingTxns[txnID]
	if ok {
		delete(s.pendingTxns, txnID)
	}
	s.txnMu.Unlock()
	if !ok {
		return nil, &synerrors.NotFoundError{ID: 0}
	}

	seqs, err := s.writePlane.LearnBatch(st.entries)
	if err != nil {
		return nil, err
	}

	payload, err := bson.Marshal(markerPayload{TxnID: txnID})
	if err != nil {
		return seqs, synerrors.Wrap(err, "encode commit txn marker")
	}
	if _, err := s.writePlane.AppendMarker(wal.KindTxnCommit, payload); err != nil {
		return seqs, err
	}
	return seqs, nil
}

// AbortTxn discards a prepared transaction's entries and WAL-appends an
// abort marker, leaving no trace in the snapshot (§4.6 step 2).
func (s *Shard) AbortTxn(txnID string) error {
	s.txnMu.Lock()
	delete(s.pendingTxns, txnID)
	s.txnMu.Unlock()

	payload, err := bson.Marshal(markerPayload{TxnID: txnID})
	if err != nil {
		return synerrors.Wrap(err, "encode abort txn marker")
	}
	_, err = s.writePlane.AppendMarker(wal.KindTxnAbort, payload)
	return err
}

// PendingTxns returns the ids of transactions this shard prepared but
// never saw a commit or abort marker for, used at recovery to ask the
// coordinator's durable log for their outcome (§4.6 step 3).
func (s *Shard) PendingTxns() []string {
	s.txnMu.Lock()
	defer s.txnMu.Unlock()
	ids := make([]string, 0, len(s.pendingTxns))
	for id := range s.pendingTxns {
		ids = append(ids, id)
	}
	return ids
}
