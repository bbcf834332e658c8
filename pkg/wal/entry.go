package wal

import (
	"encoding/binary"
	"io"

	"github.com/synapsedb/synapse/pkg/types"
)

// Record header layout (§4.4):
//
//	length (4) | sequence (8) | timestamp (8) | kind (1) | payload | crc32c (4)
//
// length covers everything after itself: sequence + timestamp + kind +
// payload + crc32c. HeaderSize is the fixed portion preceding payload.
const (
	HeaderSize  = 21 // length(4) + sequence(8) + timestamp(8) + kind(1)
	TrailerSize = 4  // crc32c
	WALVersion  = 1
)

// Kind is the WAL op-kind discriminant (§3.1, §4.6).
type Kind uint8

const (
	KindConceptUpsert Kind = iota + 1
	KindAssociationUpsert
	KindConceptDelete
	KindAssociationDelete
	KindCheckpointMarker
	KindTxnPrepared
	KindTxnCommit
	KindTxnAbort
	KindConceptDecay
)

// Header is the fixed-size portion of a WAL record.
type Header struct {
	Length    uint32
	Sequence  types.Sequence
	Timestamp int64 // unix nanos
	Kind      Kind
}

// Encode serializes the header into buf (must be at least HeaderSize long).
func (h *Header) Encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.Length)
	binary.BigEndian.PutUint64(buf[4:12], uint64(h.Sequence))
	binary.BigEndian.PutUint64(buf[12:20], uint64(h.Timestamp))
	buf[20] = byte(h.Kind)
}

// Decode parses buf (must be at least HeaderSize long) into the header.
func (h *Header) Decode(buf []byte) {
	h.Length = binary.BigEndian.Uint32(buf[0:4])
	h.Sequence = types.Sequence(binary.BigEndian.Uint64(buf[4:12]))
	h.Timestamp = int64(binary.BigEndian.Uint64(buf[12:20]))
	h.Kind = Kind(buf[20])
}

// PayloadLen derives the payload length from the record's total length.
func (h *Header) PayloadLen() (uint32, bool) {
	fixedAfterLength := uint32(HeaderSize - 4 + TrailerSize)
	if h.Length < fixedAfterLength {
		return 0, false
	}
	return h.Length - fixedAfterLength, true
}

// Record is a full WAL entry: header, payload and trailing checksum.
type Record struct {
	Header  Header
	Payload []byte
	CRC32   uint32
}

// NewRecord builds a record with the length and checksum fields populated
// from the payload; callers only set Sequence, Timestamp and Kind.
func NewRecord(seq types.Sequence, ts int64, kind Kind, payload []byte) *Record {
	r := &Record{
		Header: Header{
			Sequence:  seq,
			Timestamp: ts,
			Kind:      kind,
		},
		Payload: payload,
	}
	r.CRC32 = CalculateCRC32(payload)
	r.Header.Length = uint32(HeaderSize-4+TrailerSize) + uint32(len(payload))
	return r
}

// WriteTo serializes the record (header + payload + crc32c trailer) to w.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	r.Header.Encode(headerBuf[:])

	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}

	m, err := w.Write(r.Payload)
	total := int64(n + m)
	if err != nil {
		return total, err
	}

	var trailer [TrailerSize]byte
	binary.BigEndian.PutUint32(trailer[:], r.CRC32)
	k, err := w.Write(trailer[:])
	return total + int64(k), err
}
