package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/types"
)

// RequestTag is the wire discriminant for a request variant (§6.1 table).
type RequestTag uint8

const (
	TagHealthCheck      RequestTag = 0x01
	TagLearnConcept     RequestTag = 0x10
	TagLearnAssociation RequestTag = 0x11
	TagLearnBatch       RequestTag = 0x12
	TagGetConcept       RequestTag = 0x20
	TagGetNeighbors     RequestTag = 0x21
	TagTextSearch       RequestTag = 0x22
	TagSemanticSearch   RequestTag = 0x23
	TagFindPaths        RequestTag = 0x24
	TagStats            RequestTag = 0x30
	TagFlush            RequestTag = 0x31
	TagBeginTxn         RequestTag = 0x40
	TagCommitTxn        RequestTag = 0x41
	TagAbortTxn         RequestTag = 0x42
)

// ResponseTag is the wire discriminant for a response variant: either the
// success shape for the request it answers, or one of the shared error
// variants (§7).
type ResponseTag uint8

const (
	RespOK ResponseTag = iota
	RespError
)

// Request is the decoded form of any request variant. Exactly the fields
// relevant to Tag are populated; the rest are zero.
type Request struct {
	Tag RequestTag

	Content            []byte
	Vector             []float32
	Strength           float32
	Confidence         float32
	Semantic           types.SemanticType
	Source, Target     types.ConceptID
	AssocType          types.AssociationType
	Weight             float32
	Batch              []BatchItem
	ConceptID          types.ConceptID
	MinVisibleSequence types.Sequence
	HasMinVisible      bool
	Tokens             []string
	K                  int
	EfSearch           int
	MaxDepth           int
	MaxPaths           int
	TxnID              string
	Shards             []int32
}

// BatchItem is one entry of a LearnBatch request, tagged the same way the
// top-level request is.
type BatchItem struct {
	IsConcept  bool
	Content    []byte
	Vector     []float32
	Strength   float32
	Confidence float32
	Semantic   types.SemanticType

	Source, Target types.ConceptID
	AssocType      types.AssociationType
	Weight         float32
}

// Response is the encoded form of any response variant.
type Response struct {
	Tag ResponseTag

	Sequence     types.Sequence
	Sequences    []types.Sequence
	Concept      *ConceptWire
	Neighbors    []NeighborWire
	ScoredHits   []ScoredHitWire
	Paths        []PathWire
	Stats        StatsWire
	ErrorCode    synerrors.Code
	ErrorMessage string
	Status       string
	Uptime       int64
	Version      string
}

// ConceptWire is the wire projection of types.Concept.
type ConceptWire struct {
	ID         types.ConceptID
	Content    []byte
	Vector     []float32
	Strength   float32
	Confidence float32
	Semantic   types.SemanticType
}

// NeighborWire is one (target, association) pair.
type NeighborWire struct {
	Target types.ConceptID
	Type   types.AssociationType
	Weight float32
}

// ScoredHitWire is one ranked search result.
type ScoredHitWire struct {
	ID    types.ConceptID
	Score float32
}

// PathWire is the wire projection of a pathfinder.Path.
type PathWire struct {
	Nodes      []types.ConceptID
	Confidence float32
}

// StatsWire is the wire projection of engine.Stats.
type StatsWire struct {
	Concepts     int64
	Associations int64
	Sequence     types.Sequence
	QueueDepth   int64
	ANNDegraded  bool
	ShardCount   int32
}

type encoder struct{ buf bytes.Buffer }

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) u32(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) u64(v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) f32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	e.buf.Write(b[:])
}
func (e *encoder) bytesField(b []byte) { e.u32(uint32(len(b))); e.buf.Write(b) }
func (e *encoder) str(s string)        { e.bytesField([]byte(s)) }
func (e *encoder) vector(v []float32) {
	e.u8(boolTag(v != nil))
	e.u32(uint32(len(v)))
	for _, f := range v {
		e.f32(f)
	}
}

func boolTag(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) u8() uint8 {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.err = err
	}
	return b
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.err = err
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.err = err
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

func (d *decoder) f32() float32 {
	if d.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.err = err
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:]))
}

func (d *decoder) bytesField() []byte {
	n := d.u32()
	if d.err != nil || n == 0 {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = err
		return nil
	}
	return buf
}

func (d *decoder) str() string { return string(d.bytesField()) }

func (d *decoder) vector() []float32 {
	present := d.u8()
	n := d.u32()
	if present == 0 {
		return nil
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = d.f32()
	}
	return v
}

// DecodeRequest parses a request frame's payload: one tag byte followed
// by the tag's fields (§6.1 "enums as u8 discriminants").
func DecodeRequest(payload []byte) (Request, error) {
	d := &decoder{r: bytes.NewReader(payload)}
	req := Request{Tag: RequestTag(d.u8())}

	switch req.Tag {
	case TagHealthCheck, TagStats, TagFlush:
		// no body

	case TagLearnConcept:
		req.Content = d.bytesField()
		req.Vector = d.vector()
		req.Strength = d.f32()
		req.Confidence = d.f32()
		req.Semantic = types.SemanticType(d.u8())

	case TagLearnAssociation:
		req.Source = types.ConceptID(d.u64())
		req.Target = types.ConceptID(d.u64())
		req.AssocType = types.AssociationType(d.u8())
		req.Weight = d.f32()

	case TagLearnBatch:
		n := d.u32()
		req.Batch = make([]BatchItem, n)
		for i := range req.Batch {
			req.Batch[i] = decodeBatchItem(d)
		}

	case TagGetConcept:
		req.ConceptID = types.ConceptID(d.u64())
		req.HasMinVisible = d.u8() == 1
		req.MinVisibleSequence = types.Sequence(d.u64())

	case TagGetNeighbors:
		req.ConceptID = types.ConceptID(d.u64())
		req.AssocType = types.AssociationType(d.u8())
		req.K = int(d.u32())

	case TagTextSearch:
		n := d.u32()
		req.Tokens = make([]string, n)
		for i := range req.Tokens {
			req.Tokens[i] = d.str()
		}
		req.K = int(d.u32())

	case TagSemanticSearch:
		req.Vector = d.vector()
		req.K = int(d.u32())
		req.EfSearch = int(d.u32())

	case TagFindPaths:
		req.Source = types.ConceptID(d.u64())
		req.Target = types.ConceptID(d.u64())
		req.MaxDepth = int(d.u32())
		req.MaxPaths = int(d.u32())

	case TagBeginTxn:
		req.TxnID = d.str()
		n := d.u32()
		req.Shards = make([]int32, n)
		for i := range req.Shards {
			req.Shards[i] = int32(d.u32())
		}

	case TagCommitTxn, TagAbortTxn:
		req.TxnID = d.str()

	default:
		return Request{}, &synerrors.ProtocolViolationError{Reason: "unknown request tag"}
	}

	if d.err != nil {
		return Request{}, &synerrors.ProtocolViolationError{Reason: "truncated request"}
	}
	return req, nil
}

func decodeBatchItem(d *decoder) BatchItem {
	item := BatchItem{IsConcept: d.u8() == 1}
	if item.IsConcept {
		item.Content = d.bytesField()
		item.Vector = d.vector()
		item.Strength = d.f32()
		item.Confidence = d.f32()
		item.Semantic = types.SemanticType(d.u8())
	} else {
		item.Source = types.ConceptID(d.u64())
		item.Target = types.ConceptID(d.u64())
		item.AssocType = types.AssociationType(d.u8())
		item.Weight = d.f32()
	}
	return item
}

// EncodeResponse serializes resp into a frame payload.
func EncodeResponse(resp Response) []byte {
	e := &encoder{}
	e.u8(uint8(resp.Tag))

	if resp.Tag == RespError {
		e.u8(uint8(resp.ErrorCode))
		e.str(resp.ErrorMessage)
		return e.buf.Bytes()
	}

	e.u64(uint64(resp.Sequence))
	e.u32(uint32(len(resp.Sequences)))
	for _, s := range resp.Sequences {
		e.u64(uint64(s))
	}

	e.u8(boolTag(resp.Concept != nil))
	if resp.Concept != nil {
		c := resp.Concept
		e.u64(uint64(c.ID))
		e.bytesField(c.Content)
		e.vector(c.Vector)
		e.f32(c.Strength)
		e.f32(c.Confidence)
		e.u8(uint8(c.Semantic))
	}

	e.u32(uint32(len(resp.Neighbors)))
	for _, n := range resp.Neighbors {
		e.u64(uint64(n.Target))
		e.u8(uint8(n.Type))
		e.f32(n.Weight)
	}

	e.u32(uint32(len(resp.ScoredHits)))
	for _, h := range resp.ScoredHits {
		e.u64(uint64(h.ID))
		e.f32(h.Score)
	}

	e.u32(uint32(len(resp.Paths)))
	for _, p := range resp.Paths {
		e.u32(uint32(len(p.Nodes)))
		for _, n := range p.Nodes {
			e.u64(uint64(n))
		}
		e.f32(p.Confidence)
	}

	e.u64(uint64(resp.Stats.Concepts))
	e.u64(uint64(resp.Stats.Associations))
	e.u64(uint64(resp.Stats.Sequence))
	e.u64(uint64(resp.Stats.QueueDepth))
	e.u8(boolTag(resp.Stats.ANNDegraded))
	e.u32(uint32(resp.Stats.ShardCount))

	e.str(resp.Status)
	e.u64(uint64(resp.Uptime))
	e.str(resp.Version)

	return e.buf.Bytes()
}

// ErrorResponse builds the shared error variant for err (§7).
func ErrorResponse(err error) Response {
	code := synerrors.CodeOf(err)
	return Response{Tag: RespError, ErrorCode: code, ErrorMessage: err.Error()}
}

// DecodeResponse is EncodeResponse's inverse, used by test clients that
// exercise the wire protocol end to end without a real engine behind it.
func DecodeResponse(payload []byte) (Response, error) {
	d := &decoder{r: bytes.NewReader(payload)}
	resp := Response{Tag: ResponseTag(d.u8())}

	if resp.Tag == RespError {
		resp.ErrorCode = synerrors.Code(d.u8())
		resp.ErrorMessage = d.str()
		if d.err != nil {
			return Response{}, &synerrors.ProtocolViolationError{Reason: "truncated response"}
		}
		return resp, nil
	}

	resp.Sequence = types.Sequence(d.u64())
	n := d.u32()
	resp.Sequences = make([]types.Sequence, n)
	for i := range resp.Sequences {
		resp.Sequences[i] = types.Sequence(d.u64())
	}

	if d.u8() == 1 {
		c := &ConceptWire{}
		c.ID = types.ConceptID(d.u64())
		c.Content = d.bytesField()
		c.Vector = d.vector()
		c.Strength = d.f32()
		c.Confidence = d.f32()
		c.Semantic = types.SemanticType(d.u8())
		resp.Concept = c
	}

	n = d.u32()
	resp.Neighbors = make([]NeighborWire, n)
	for i := range resp.Neighbors {
		resp.Neighbors[i] = NeighborWire{
			Target: types.ConceptID(d.u64()),
			Type:   types.AssociationType(d.u8()),
			Weight: d.f32(),
		}
	}

	n = d.u32()
	resp.ScoredHits = make([]ScoredHitWire, n)
	for i := range resp.ScoredHits {
		resp.ScoredHits[i] = ScoredHitWire{ID: types.ConceptID(d.u64()), Score: d.f32()}
	}

	n = d.u32()
	resp.Paths = make([]PathWire, n)
	for i := range resp.Paths {
		nodeCount := d.u32()
		nodes := make([]types.ConceptID, nodeCount)
		for j := range nodes {
			nodes[j] = types.ConceptID(d.u64())
		}
		resp.Paths[i] = PathWire{Nodes: nodes, Confidence: d.f32()}
	}

	resp.Stats.Concepts = int64(d.u64())
	resp.Stats.Associations = int64(d.u64())
	resp.Stats.Sequence = types.Sequence(d.u64())
	resp.Stats.QueueDepth = int64(d.u64())
	resp.Stats.ANNDegraded = d.u8() == 1
	resp.Stats.ShardCount = int32(d.u32())

	resp.Status = d.str()
	resp.Uptime = int64(d.u64())
	resp.Version = d.str()

	if d.err != nil {
		return Response{}, &synerrors.ProtocolViolationError{Reason: "truncated response"}
	}
	return resp, nil
}

// EncodeRequest is DecodeRequest's inverse, used by test clients to build
// request frames without duplicating the wire layout.
func EncodeRequest(req Request) []byte {
	e := &encoder{}
	e.u8(uint8(req.Tag))

	switch req.Tag {
	case TagHealthCheck, TagStats, TagFlush:
		// no body

	case TagLearnConcept:
		e.bytesField(req.Content)
		e.vector(req.Vector)
		e.f32(req.Strength)
		e.f32(req.Confidence)
		e.u8(uint8(req.Semantic))

	case TagLearnAssociation:
		e.u64(uint64(req.Source))
		e.u64(uint64(req.Target))
		e.u8(uint8(req.AssocType))
		e.f32(req.Weight)

	case TagLearnBatch:
		e.u32(uint32(len(req.Batch)))
		for _, item := range req.Batch {
			e.u8(boolTag(item.IsConcept))
			if item.IsConcept {
				e.bytesField(item.Content)
				e.vector(item.Vector)
				e.f32(item.Strength)
				e.f32(item.Confidence)
				e.u8(uint8(item.Semantic))
			} else {
				e.u64(uint64(item.Source))
				e.u64(uint64(item.Target))
				e.u8(uint8(item.AssocType))
				e.f32(item.Weight)
			}
		}

	case TagGetConcept:
		e.u64(uint64(req.ConceptID))
		e.u8(boolTag(req.HasMinVisible))
		e.u64(uint64(req.MinVisibleSequence))

	case TagGetNeighbors:
		e.u64(uint64(req.ConceptID))
		e.u8(uint8(req.AssocType))
		e.u32(uint32(req.K))

	case TagTextSearch:
		e.u32(uint32(len(req.Tokens)))
		for _, t := range req.Tokens {
			e.str(t)
		}
		e.u32(uint32(req.K))

	case TagSemanticSearch:
		e.vector(req.Vector)
		e.u32(uint32(req.K))
		e.u32(uint32(req.EfSearch))

	case TagFindPaths:
		e.u64(uint64(req.Source))
		e.u64(uint64(req.Target))
		e.u32(uint32(req.MaxDepth))
		e.u32(uint32(req.MaxPaths))

	case TagBeginTxn:
		e.str(req.TxnID)
		e.u32(uint32(len(req.Shards)))
		for _, sh := range req.Shards {
			e.u32(uint32(sh))
		}

	case TagCommitTxn, TagAbortTxn:
		e.str(req.TxnID)
	}

	return e.buf.Bytes()
}
