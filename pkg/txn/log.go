// Package txn implements the two-phase commit coordinator for mutations
// that span more than one shard (§4.6). Prepare and resolve are driven
// from here; the durable per-shard state they depend on lives in
// pkg/shard's prepared/commit/abort WAL markers.
package txn

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

// Outcome is the coordinator's durable decision for one transaction.
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	OutcomeCommit
	OutcomeAbort
)

type logRecord struct {
	TxnID   string `bson:"txn_id"`
	Outcome uint8  `bson:"outcome"`
}

// Log is the durable coordinator log of §4.6 step 3, a file outside any
// shard's directory (cmd/synapsed opens it at StoragePath/coordinator.log):
// a simple append-only file of txn-id -> outcome records,
// fsynced on every write, that recovery consults to resolve a shard's
// dangling prepared transactions unambiguously. It is deliberately
// independent of the shard WAL format since it never needs replay, only
// point lookups by transaction id.
type Log struct {
	mu      sync.Mutex
	file    *os.File
	outcome map[string]Outcome
}

// OpenLog opens (creating if absent) the coordinator log at path and
// loads every previously recorded outcome into memory.
func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, synerrors.Wrap(err, "open coordinator log")
	}
	l := &Log{file: f, outcome: make(map[string]Outcome)}
	if err := l.load(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// load reads every length-prefixed record from the start of the file. A
// truncated or corrupt final record stops the scan, mirroring the WAL's
// own tolerance for a torn tail (§4.4).
func (l *Log) load() error {
	if _, err := l.file.Seek(0, 0); err != nil {
		return err
	}
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(l.file, lenBuf[:]); err != nil {
			break
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(l.file, buf); err != nil {
			break
		}
		var rec logRecord
		if err := bson.Unmarshal(buf, &rec); err != nil {
			break
		}
		l.outcome[rec.TxnID] = Outcome(rec.Outcome)
	}
	_, err := l.file.Seek(0, io.SeekEnd)
	return err
}

// Record durably writes txnID's outcome and fsyncs before returning, so a
// crash immediately after Record always leaves the decision recoverable
// (§4.6 step 3 "the coordinator's log is authoritative").
func (l *Log) Record(txnID string, outcome Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := bson.Marshal(logRecord{TxnID: txnID, Outcome: uint8(outcome)})
	if err != nil {
		return synerrors.Wrap(err, "encode coordinator log record")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	if _, err := l.file.Write(lenBuf[:]); err != nil {
		return &synerrors.DurabilityError{Cause: err}
	}
	if _, err := l.file.Write(raw); err != nil {
		return &synerrors.DurabilityError{Cause: err}
	}
	if err := l.file.Sync(); err != nil {
		return &synerrors.DurabilityError{Cause: err}
	}
	l.outcome[txnID] = outcome
	return nil
}

// Lookup returns the recorded outcome for txnID, or OutcomeUnknown if the
// coordinator never reached a decision — which recovery treats as an
// abort by default (§4.6 step 3, §9 open question resolved: no durable
// commit record means the transaction never committed anywhere).
func (l *Log) Lookup(txnID string) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcome[txnID]
}

// Close releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
