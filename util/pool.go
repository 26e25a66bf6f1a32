package util

import "sync"

// DefaultBufSize is the read-loop buffer size (1 KiB, the RFCOMM
// default MTU range comfortably fits).
const DefaultBufSize = 1024

// BufPool provides reusable byte buffers for transport reads, so that
// sessions switching rapidly between devices do not churn the GC.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
