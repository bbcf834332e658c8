package wal

import "sync"

// pool.go reuses Records across reads to keep replay off the GC's critical
// path.

var recordPool = sync.Pool{
	New: func() interface{} {
		return &Record{
			Payload: make([]byte, 0, 4096),
		}
	},
}

// AcquireRecord obtains a zeroed record from the pool.
func AcquireRecord() *Record {
	return recordPool.Get().(*Record)
}

// ReleaseRecord returns a record to the pool.
func ReleaseRecord(r *Record) {
	r.Header = Header{}
	r.Payload = r.Payload[:0]
	r.CRC32 = 0
	recordPool.Put(r)
}
