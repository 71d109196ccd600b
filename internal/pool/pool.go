// Package pool recycles the large byte buffers used to stage snapshots.
package pool

import (
	"bytes"
	"sync"
)

// maxPooledCap keeps one huge snapshot from pinning its buffer forever.
const maxPooledCap = 64 << 20

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// GetBuffer gets an empty buffer from the pool.
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns buf to the pool.
// It resets the buffer before returning it.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledCap {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}
