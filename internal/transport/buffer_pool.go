package transport

import (
	"sync"
)

// bufferPool recycles receive buffers for RFC 5444 packets so the NHDP
// socket's read loop doesn't allocate on every datagram.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 9000)
		return &buf
	},
}

// GetBuffer returns a pooled receive buffer. The caller must return it with
// PutBuffer once the packet has been decoded.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer zeroes and returns a buffer obtained from GetBuffer.
func PutBuffer(bufPtr *[]byte) {
	buf := *bufPtr
	for i := range buf {
		buf[i] = 0
	}
	bufferPool.Put(bufPtr)
}
