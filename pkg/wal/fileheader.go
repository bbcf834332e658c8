package wal

import (
	"encoding/binary"
	"fmt"
	"io"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

// Magic identifies the on-disk file family in the 16-byte file header
// (§6.3), so opening the wrong file with the wrong reader fails fast
// instead of silently misparsing. Only WAL segments are written with this
// header (MagicWAL); MagicCheckpoint and MagicANN are defined but no file
// in this repository is written with them.
const (
	MagicWAL        uint32 = 0x53594e57 // "SYNW"
	MagicCheckpoint uint32 = 0x53594e43 // "SYNC"
	MagicANN        uint32 = 0x53594e41 // "SYNA"

	FileHeaderSize = 16
)

// FileHeader is the fixed 16-byte header every on-disk file in this engine
// opens with: magic(4) | version(1) | reserved(3) | vector dimension(4) |
// reserved(4).
type FileHeader struct {
	Magic     uint32
	Version   uint8
	VectorDim uint32
}

func (h FileHeader) Encode() []byte {
	buf := make([]byte, FileHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	binary.BigEndian.PutUint32(buf[8:12], h.VectorDim)
	return buf
}

// WriteFileHeader writes the header to a newly created file.
func WriteFileHeader(w io.Writer, h FileHeader) error {
	_, err := w.Write(h.Encode())
	return err
}

// ReadFileHeader reads and validates the header against the expected magic
// and vector dimension, returning IncompatibleFormatError otherwise (§6.3
// "opening a file with an incompatible dimension fails with
// IncompatibleFormat").
func ReadFileHeader(r io.Reader, wantMagic uint32, wantDim uint32) (FileHeader, error) {
	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return FileHeader{}, &synerrors.IncompatibleFormatError{Reason: fmt.Sprintf("short file header: %v", err)}
	}
	h := FileHeader{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		VectorDim: binary.BigEndian.Uint32(buf[8:12]),
	}
	if h.Magic != wantMagic {
		return h, &synerrors.IncompatibleFormatError{Reason: "magic mismatch"}
	}
	if wantDim != 0 && h.VectorDim != 0 && h.VectorDim != wantDim {
		return h, &synerrors.IncompatibleFormatError{
			Reason: fmt.Sprintf("vector dimension mismatch: file has %d, engine wants %d", h.VectorDim, wantDim),
		}
	}
	return h, nil
}
