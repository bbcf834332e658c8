// Package checkpoint persists periodic full-snapshot dumps so recovery
// doesn't have to replay a shard's entire WAL history from sequence zero
// (§4.4, §4.A). The teacher keeps checkpoints as individual
// write-temp-then-rename files named by LSN; here the same write-once,
// keep-latest-few shape is backed by cockroachdb/pebble, an embedded LSM
// store already in the reference pack, so checkpoint writes get
// crash-safe atomic batches and range-delete cleanup for free instead of
// hand-rolled file renaming.
package checkpoint

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
)

const (
	// keepLatest bounds how many checkpoint generations are retained,
	// mirroring the teacher's cleanOldCheckpoints but keeping a short
	// tail instead of exactly one, so a corrupt latest checkpoint still
	// leaves a recoverable predecessor.
	keepLatest = 3
)

var metaKey = []byte("meta")

// Manager owns one shard's checkpoint store.
type Manager struct {
	db      *pebble.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens (creating if absent) the pebble store rooted at dir.
func Open(dir string) (*Manager, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, synerrors.Wrap(err, "open checkpoint store")
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, synerrors.Wrap(err, "init zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, synerrors.Wrap(err, "init zstd decoder")
	}
	return &Manager{db: db, encoder: enc, decoder: dec}, nil
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	m.decoder.Close()
	return m.db.Close()
}

func snapshotKey(version types.Sequence) []byte {
	buf := make([]byte, len("snapshot/")+8)
	copy(buf, "snapshot/")
	binary.BigEndian.PutUint64(buf[len("snapshot/"):], uint64(version))
	return buf
}

// Create compresses and durably stores snap as a new checkpoint
// generation, then prunes older generations beyond keepLatest (§4.4).
func (m *Manager) Create(snap *snapshot.Snapshot) error {
	raw, err := serializeSnapshot(snap)
	if err != nil {
		return synerrors.Wrap(err, "serialize checkpoint")
	}
	compressed := m.encoder.EncodeAll(raw, nil)

	batch := m.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(snapshotKey(snap.Version), compressed, nil); err != nil {
		return synerrors.Wrap(err, "stage checkpoint write")
	}
	if err := batch.Set(metaKey, binary.BigEndian.AppendUint64(nil, uint64(snap.Version)), nil); err != nil {
		return synerrors.Wrap(err, "stage checkpoint meta")
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &synerrors.DurabilityError{Cause: err}
	}
	return m.pruneOlderThan(snap.Version)
}

func (m *Manager) pruneOlderThan(latest types.Sequence) error {
	versions, err := m.listVersions()
	if err != nil {
		return err
	}
	if len(versions) <= keepLatest {
		return nil
	}
	cutoff := len(versions) - keepLatest
	for _, v := range versions[:cutoff] {
		if err := m.db.Delete(snapshotKey(v), nil); err != nil {
			return synerrors.Wrap(err, "prune old checkpoint")
		}
	}
	return nil
}

func (m *Manager) listVersions() ([]types.Sequence, error) {
	iter, err := m.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("snapshot/"),
		UpperBound: []byte("snapshot0"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var versions []types.Sequence
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) < 8 {
			continue
		}
		versions = append(versions, types.Sequence(binary.BigEndian.Uint64(key[len(key)-8:])))
	}
	return versions, iter.Error()
}

// LatestVersion reports the most recently stored checkpoint version, or
// false if the store has none yet (fresh shard).
func (m *Manager) LatestVersion() (types.Sequence, bool, error) {
	v, closer, err := m.db.Get(metaKey)
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, synerrors.Wrap(err, "read checkpoint meta")
	}
	defer closer.Close()
	if len(v) < 8 {
		return 0, false, &synerrors.IncompatibleFormatError{Reason: "checkpoint meta record truncated"}
	}
	return types.Sequence(binary.BigEndian.Uint64(v)), true, nil
}

// Load reconstructs the snapshot at the latest stored checkpoint version
// (§4.4 recovery step 1: "locate latest checkpoint"). The caller then
// replays WAL records with Sequence > the returned snapshot's Version.
func (m *Manager) Load() (*snapshot.Snapshot, error) {
	version, ok, err := m.LatestVersion()
	if err != nil {
		return nil, err
	}
	if !ok {
		return snapshot.Empty(), nil
	}

	compressed, closer, err := m.db.Get(snapshotKey(version))
	if err != nil {
		return nil, synerrors.Wrap(err, fmt.Sprintf("read checkpoint %d", version))
	}
	defer closer.Close()

	raw, err := m.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, &synerrors.IncompatibleFormatError{Reason: "checkpoint decompression failed"}
	}

	snap, err := deserializeSnapshot(raw)
	if err != nil {
		return nil, &synerrors.IncompatibleFormatError{Reason: "checkpoint payload corrupt: " + err.Error()}
	}
	return snap, nil
}
