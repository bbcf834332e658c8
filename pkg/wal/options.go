package wal

import "time"

// Options configures a Writer's buffering.
type Options struct {
	// BufferSize is the bufio buffer size before handing bytes to the OS.
	BufferSize int

	// GroupCommitDelay bounds how long the leader waits to pick up
	// followers' already-buffered records before calling fsync, trading
	// latency for larger batches (§4.1 group commit).
	GroupCommitDelay time.Duration
}

// DefaultOptions returns a safe default configuration.
func DefaultOptions() Options {
	return Options{
		BufferSize:       64 * 1024,
		GroupCommitDelay: 200 * time.Microsecond,
	}
}
