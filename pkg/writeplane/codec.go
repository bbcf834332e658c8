package writeplane

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/types"
	"github.com/synapsedb/synapse/pkg/wal"
)

// conceptPayload/associationPayload are the bson-encoded WAL payloads
// (§4.A domain stack: mongo-driver/v2/bson, the same library the teacher
// uses in pkg/storage/bson.go for document validation).
type conceptPayload struct {
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
}

type associationPayload struct {
	Source         uint64  `bson:"source"`
	Target         uint64  `bson:"target"`
	Type           uint8   `bson:"type"`
	Weight         float32 `bson:"weight"`
	EvidenceCount  uint64  `bson:"evidence_count"`
	Created        int64   `bson:"created"`
	LastReinforced int64   `bson:"last_reinforced"`
}

type deletePayload struct {
	ConceptID uint64 `bson:"concept_id,omitempty"`
	Source    uint64 `bson:"source,omitempty"`
	Target    uint64 `bson:"target,omitempty"`
	AssocType uint8  `bson:"assoc_type,omitempty"`
	DeleteSeq uint64 `bson:"delete_seq"`
}

// EncodeMutation serializes m into a WAL record payload and its op-kind.
func EncodeMutation(m *Mutation) (wal.Kind, []byte, error) {
	switch m.Kind {
	case MutationConceptUpsert:
		c := m.Concept
		p := conceptPayload{
			ID: uint64(c.ID), Content: c.Content, Vector: c.Vector,
			Strength: c.Strength, Confidence: c.Confidence, Semantic: uint8(c.Semantic),
			Created: c.Created.UnixNano(), LastAccessed: c.LastAccessed.UnixNano(),
			LastReinforced: c.LastReinforced.UnixNano(), AccessCount: c.AccessCount,
		}
		b, err := bson.Marshal(p)
		return wal.KindConceptUpsert, b, synerrors.Wrap(err, "encode concept payload")

	case MutationAssociationUpsert:
		a := m.Association
		p := associationPayload{
			Source: uint64(a.Source), Target: uint64(a.Target), Type: uint8(a.Type),
			Weight: a.Weight, EvidenceCount: a.EvidenceCount,
			Created: a.Created.UnixNano(), LastReinforced: a.LastReinforced.UnixNano(),
		}
		b, err := bson.Marshal(p)
		return wal.KindAssociationUpsert, b, synerrors.Wrap(err, "encode association payload")

	case MutationConceptDelete:
		p := deletePayload{ConceptID: uint64(m.DeleteID), DeleteSeq: uint64(m.Sequence)}
		b, err := bson.Marshal(p)
		return wal.KindConceptDelete, b, synerrors.Wrap(err, "encode concept delete payload")

	case MutationAssociationDelete:
		p := deletePayload{
			Source: uint64(m.DeleteKey.Source), Target: uint64(m.DeleteKey.Target),
			AssocType: uint8(m.DeleteKey.Type), DeleteSeq: uint64(m.Sequence),
		}
		b, err := bson.Marshal(p)
		return wal.KindAssociationDelete, b, synerrors.Wrap(err, "encode association delete payload")

	case MutationConceptDecay:
		p := decayPayload{ConceptID: uint64(m.DecayID), Strength: m.DecayStrength}
		b, err := bson.Marshal(p)
		return wal.KindConceptDecay, b, synerrors.Wrap(err, "encode decay payload")
	}
	return 0, nil, &synerrors.ValidationError{Reason: "unknown mutation kind"}
}

type decayPayload struct {
	ConceptID uint64  `bson:"concept_id"`
	Strength  float32 `bson:"strength"`
}

// DecodeMutation reverses EncodeMutation, used during WAL replay (§4.4).
func DecodeMutation(seq types.Sequence, ts time.Time, kind wal.Kind, payload []byte) (*Mutation, error) {
	switch kind {
	case wal.KindConceptUpsert:
		var p conceptPayload
		if err := bson.Unmarshal(payload, &p); err != nil {
			return nil, synerrors.Wrap(err, "decode concept payload")
		}
		return &Mutation{
			Sequence: seq, Timestamp: ts, Kind: MutationConceptUpsert,
			Concept: &types.Concept{
				ID: types.ConceptID(p.ID), Content: p.Content, Vector: p.Vector,
				Strength: p.Strength, Confidence: p.Confidence, Semantic: types.SemanticType(p.Semantic),
				Created: time.Unix(0, p.Created), LastAccessed: time.Unix(0, p.LastAccessed),
				LastReinforced: time.Unix(0, p.LastReinforced), AccessCount: p.AccessCount,
				Indexed: true,
			},
		}, nil

	case wal.KindAssociationUpsert:
		var p associationPayload
		if err := bson.Unmarshal(payload, &p); err != nil {
			return nil, synerrors.Wrap(err, "decode association payload")
		}
		return &Mutation{
			Sequence: seq, Timestamp: ts, Kind: MutationAssociationUpsert,
			Association: &types.Association{
				Source: types.ConceptID(p.Source), Target: types.ConceptID(p.Target),
				Type: types.AssociationType(p.Type), Weight: p.Weight, EvidenceCount: p.EvidenceCount,
				Created: time.Unix(0, p.Created), LastReinforced: time.Unix(0, p.LastReinforced),
			},
		}, nil

	case wal.KindConceptDelete:
		var p deletePayload
		if err := bson.Unmarshal(payload, &p); err != nil {
			return nil, synerrors.Wrap(err, "decode concept delete payload")
		}
		return &Mutation{
			Sequence: seq, Timestamp: ts, Kind: MutationConceptDelete,
			DeleteID: types.ConceptID(p.ConceptID),
		}, nil

	case wal.KindAssociationDelete:
		var p deletePayload
		if err := bson.Unmarshal(payload, &p); err != nil {
			return nil, synerrors.Wrap(err, "decode association delete payload")
		}
		return &Mutation{
			Sequence: seq, Timestamp: ts, Kind: MutationAssociationDelete,
			DeleteKey: types.AssociationKey{
				Source: types.ConceptID(p.Source), Target: types.ConceptID(p.Target),
				Type: types.AssociationType(p.AssocType),
			},
		}, nil

	case wal.KindConceptDecay:
		var p decayPayload
		if err := bson.Unmarshal(payload, &p); err != nil {
			return nil, synerrors.Wrap(err, "decode decay payload")
		}
		return &Mutation{
			Sequence: seq, Timestamp: ts, Kind: MutationConceptDecay,
			DecayID: types.ConceptID(p.ConceptID), DecayStrength: p.Strength,
		}, nil
	}
	return nil, &synerrors.IncompatibleFormatError{Reason: "unknown WAL record kind during replay"}
}
