// Package protocol implements the custom binary wire protocol described
// in §6.1: a length-framed TCP transport carrying tagged request/response
// sums, with an optional HMAC handshake and a per-connection token
// bucket for back-pressure. Framing here mirrors the WAL's own
// length-then-payload discipline (pkg/wal) rather than reaching for a
// general-purpose RPC framework, since the protocol is intentionally a
// narrow, fixed operation set.
package protocol

import (
	"encoding/binary"
	"io"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

// MaxFrameSize bounds a single frame's payload (§6.1 "length in
// [1, 16 777 216]").
const MaxFrameSize = 16 * 1024 * 1024

// ReadFrame reads one length-prefixed frame from r. A length of zero or
// beyond MaxFrameSize is a ProtocolViolation, closing the connection per
// §6.1 "unknown tags close the connection" — the same stance applies to
// any framing violation.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxFrameSize {
		return nil, &synerrors.ProtocolViolationError{Reason: "frame length out of bounds"}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxFrameSize {
		return &synerrors.ProtocolViolationError{Reason: "frame length out of bounds"}
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
