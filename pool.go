package isopack

import "sync"

// maxPooledBuffer keeps one huge message from pinning memory in the pool.
const maxPooledBuffer = 16 * 1024

// Only scratch buffers used while assembling a packed message are pooled.
// Messages are never pooled.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 1024)
		return &buf
	},
}

func getBuffer() *[]byte {
	bp := bufferPool.Get().(*[]byte)
	*bp = (*bp)[:0]
	return bp
}

func putBuffer(bp *[]byte) {
	if cap(*bp) <= maxPooledBuffer {
		bufferPool.Put(bp)
	}
}
