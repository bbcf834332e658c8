package checkpoint

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/synapsedb/synapse/pkg/snapshot"
	"github.com/synapsedb/synapse/pkg/types"
)

// dense is the full-snapshot wire shape written into a checkpoint blob,
// mirroring the teacher's SerializeBPlusTree in spirit: one self-contained
// record holding everything needed to rebuild the in-memory structure,
// rather than the incremental WAL records that produced it.
type dense struct {
	Version      uint64             `bson:"version"`
	Concepts     []conceptRow       `bson:"concepts"`
	Associations []associationRow   `bson:"associations"`
}

type conceptRow struct {
	ID             uint64    `bson:"id"`
	Content        []byte    `bson:"content"`
	Vector         []float32 `bson:"vector,omitempty"`
	Strength       float32   `bson:"strength"`
	Confidence     float32   `bson:"confidence"`
	Semantic       uint8     `bson:"semantic"`
	Created        int64     `bson:"created"`
	LastAccessed   int64     `bson:"last_accessed"`
	LastReinforced int64     `bson:"last_reinforced"`
	AccessCount    uint64    `bson:"access_count"`
	Indexed        bool      `bson:"indexed"`
	Deleted        bool      `bson:"deleted"`
	DeleteSeq      uint64    `bson:"delete_seq,omitempty"`
}

type associationRow struct {
	Source         uint64  `bson:"source"`
	Target         uint64  `bson:"target"`
	Type           uint8   `bson:"type"`
	Weight         float32 `bson:"weight"`
	EvidenceCount  uint64  `bson:"evidence_count"`
	Created        int64   `bson:"created"`
	LastReinforced int64   `bson:"last_reinforced"`
	Deleted        bool    `bson:"deleted"`
	DeleteSeq      uint64  `bson:"delete_seq,omitempty"`
}

// serializeSnapshot flattens snap into the bson dense form.
func serializeSnapshot(snap *snapshot.Snapshot) ([]byte, error) {
	d := dense{Version: uint64(snap.Version)}

	snap.AllConceptsIncludingTombstones(func(c *types.Concept) bool {
		d.Concepts = append(d.Concepts, conceptRow{
			ID: uint64(c.ID), Content: c.Content, Vector: c.Vector,
			Strength: c.Strength, Confidence: c.Confidence, Semantic: uint8(c.Semantic),
			Created: c.Created.UnixNano(), LastAccessed: c.LastAccessed.UnixNano(),
			LastReinforced: c.LastReinforced.UnixNano(), AccessCount: c.AccessCount,
			Indexed: c.Indexed, Deleted: c.Deleted, DeleteSeq: uint64(c.DeleteSeq),
		})
		return false
	})

	snap.AllAssociations(func(a *types.Association) bool {
		d.Associations = append(d.Associations, associationRow{
			Source: uint64(a.Source), Target: uint64(a.Target), Type: uint8(a.Type),
			Weight: a.Weight, EvidenceCount: a.EvidenceCount,
			Created: a.Created.UnixNano(), LastReinforced: a.LastReinforced.UnixNano(),
			Deleted: a.Deleted, DeleteSeq: uint64(a.DeleteSeq),
		})
		return false
	})

	return bson.Marshal(d)
}

// deserializeSnapshot rebuilds a snapshot from a checkpoint blob by
// replaying its rows through a fresh builder, the same code path used for
// WAL replay.
func deserializeSnapshot(data []byte) (*snapshot.Snapshot, error) {
	var d dense
	if err := bson.Unmarshal(data, &d); err != nil {
		return nil, err
	}

	builder := snapshot.NewBuilder(snapshot.Empty())
	for _, row := range d.Concepts {
		c := &types.Concept{
			ID: types.ConceptID(row.ID), Content: row.Content, Vector: row.Vector,
			Strength: row.Strength, Confidence: row.Confidence, Semantic: types.SemanticType(row.Semantic),
			Created: time.Unix(0, row.Created), LastAccessed: time.Unix(0, row.LastAccessed),
			LastReinforced: time.Unix(0, row.LastReinforced), AccessCount: row.AccessCount,
			Indexed: row.Indexed,
		}
		builder.UpsertConcept(c)
		if row.Deleted {
			builder.DeleteConcept(c.ID, types.Sequence(row.DeleteSeq))
		}
	}
	for _, row := range d.Associations {
		a := &types.Association{
			Source: types.ConceptID(row.Source), Target: types.ConceptID(row.Target),
			Type: types.AssociationType(row.Type), Weight: row.Weight, EvidenceCount: row.EvidenceCount,
			Created: time.Unix(0, row.Created), LastReinforced: time.Unix(0, row.LastReinforced),
		}
		builder.UpsertAssociation(a)
		if row.Deleted {
			builder.DeleteAssociation(a.Key(), types.Sequence(row.DeleteSeq))
		}
	}
	return builder.Finish(types.Sequence(d.Version)), nil
}
