package transport

import "sync"

// bufferPool recycles the fixed 9000-byte receive buffers used for every
// socket read, per protocol.MaxMessageSize (RFC 6762 §17 jumbogram
// ceiling): without pooling, one multicast-busy interface allocates a full
// jumbo buffer on every packet.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 9000)
		return &buf
	},
}

// GetBuffer returns a pointer to a 9000-byte buffer. The caller must
// return it with PutBuffer once done (typically via defer).
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
