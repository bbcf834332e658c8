package shard

import (
	"io"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/wal"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// replayWAL reads every record with Sequence > afterVersion from the
// segment at path, turning each into a Mutation for the reconciler to
// re-apply on startup (§4.4 recovery step 2). A missing file means a
// fresh shard and replays nothing. Truncated or checksum-mismatched tail
// records stop replay at that point, per §4.4, rather than failing
// startup outright — the WAL's own invariant is that everything before
// the bad record is already durable.
//
// Two-phase commit markers (§4.6 step 3) are folded in alongside ordinary
// mutations: a KindTxnPrepared record seeds a pending-transaction entry,
// a matching KindTxnCommit or KindTxnAbort resolves it. Anything still
// pending once replay ends is returned for the coordinator's durable log
// to resolve.
func replayWAL(path string, afterVersion types.Sequence) ([]*writeplane.Mutation, types.Sequence, map[string]*txnState, error) {
	highest := afterVersion

	r, err := wal.NewReader(path, 0)
	if os.IsNotExist(err) {
		return nil, highest, nil, nil
	}
	if err != nil {
		return nil, highest, nil, err
	}
	defer r.Close()

	var mutations []*writeplane.Mutation
	pending := make(map[string]*txnState)

	for {
		rec, err := r.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		if rec.Header.Sequence > highest {
			highest = rec.Header.Sequence
		}

		if rec.Header.Sequence <= afterVersion {
			wal.ReleaseRecord(rec)
			continue
		}

		switch rec.Header.Kind {
		case wal.KindTxnPrepared:
			var p preparedPayload
			if bson.Unmarshal(rec.Payload, &p) == nil {
				pending[p.TxnID] = &txnState{entries: p.Entries}
			}

		case wal.KindTxnCommit, wal.KindTxnAbort:
			var p markerPayload
			if bson.Unmarshal(rec.Payload, &p) == nil {
				delete(pending, p.TxnID)
			}

		default:
			m, decodeErr := writeplane.DecodeMutation(
				rec.Header.Sequence,
				time.Unix(0, rec.Header.Timestamp),
				rec.Header.Kind,
				rec.Payload,
			)
			if decodeErr == nil {
				mutations = append(mutations, m)
			}
		}
		wal.ReleaseRecord(rec)
	}
	return mutations, highest, pending, nil
}
