package wal

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/synapsedb/synapse/pkg/types"
)

// Writer is the WAL's group-commit coordinator (§4.1, §4.4). Any number of
// goroutines may call Append concurrently; the first to arrive for a given
// commit round becomes the leader, sleeps GroupCommitDelay to let
// concurrent followers buffer their own records, then performs a single
// flush+fsync and wakes every waiter — including itself — with the
// outcome. A call returns only after its own record's fsync has
// observably completed.
type Writer struct {
	mu   sync.Mutex
	cond *sync.Cond
	file *os.File
	bufw *bufio.Writer

	options Options

	syncedSeq  types.Sequence
	pendingSeq types.Sequence
	leading    bool
	closed     bool
	lastErr    error
}

// NewWriter opens path for append, writing a fresh file header if the file
// is new (empty). vectorDim is recorded in the header for cross-restart
// IncompatibleFormat detection (§6.3).
func NewWriter(path string, opts Options, vectorDim uint32) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal segment: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := WriteFileHeader(f, FileHeader{Magic: MagicWAL, Version: WALVersion, VectorDim: vectorDim}); err != nil {
			f.Close()
			return nil, err
		}
	}

	w := &Writer{
		file:    f,
		bufw:    bufio.NewWriterSize(f, opts.BufferSize),
		options: opts,
	}
	w.cond = sync.NewCond(&w.mu)
	return w, nil
}

// Append buffers record and blocks until its fsync has completed (or the
// writer has been closed / hit a durability error). The caller is expected
// to have already assigned record.Header.Sequence via the write plane's
// atomic counter (§4.1 step 1) before calling Append.
func (w *Writer) Append(record *Record) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("wal: writer closed")
	}

	if _, err := record.WriteTo(w.bufw); err != nil {
		w.lastErr = err
		w.mu.Unlock()
		return err
	}
	w.pendingSeq = record.Header.Sequence
	target := w.pendingSeq

	for !w.leading && w.syncedSeq < target && w.lastErr == nil {
		w.cond.Wait()
	}
	if w.syncedSeq >= target {
		err := w.lastErr
		w.mu.Unlock()
		return err
	}
	if w.lastErr != nil {
		err := w.lastErr
		w.mu.Unlock()
		return err
	}

	// We are the leader for this commit round.
	w.leading = true
	delay := w.options.GroupCommitDelay
	w.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.mu.Lock()
	syncTarget := w.pendingSeq
	err := w.syncLocked()
	if err == nil {
		w.syncedSeq = syncTarget
	} else {
		w.lastErr = err
	}
	w.leading = false
	w.cond.Broadcast()
	w.mu.Unlock()

	return err
}

// Sync forces an immediate flush+fsync regardless of group-commit pacing,
// used by explicit Flush requests (§6.1 0x31) and checkpointing.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.syncLocked()
	if err == nil {
		w.syncedSeq = w.pendingSeq
	} else {
		w.lastErr = err
	}
	w.cond.Broadcast()
	return err
}

func (w *Writer) syncLocked() error {
	if err := w.bufw.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Path returns the segment's file path.
func (w *Writer) Path() string { return w.file.Name() }

// Close flushes and closes the segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.syncLocked()
	w.cond.Broadcast()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}
