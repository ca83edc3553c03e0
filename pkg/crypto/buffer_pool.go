// buffer_pool.go pools byte slices for record assembly, avoiding a fresh
// allocation per handshake/application-data record. pkg/wire's codec uses
// the global pool when framing outbound records; size classes are tuned
// for typical handshake message and record sizes rather than bulk transfer.
package crypto

import (
	"sync"

	"github.com/kemtls-go/kemtls-client/internal/constants"
)

// BufferPool provides pooled byte slices sized for record-layer framing.
type BufferPool struct {
	small  sync.Pool // up to 1KB: most handshake messages
	medium sync.Pool // up to 16KB: TLS record size limit
	large  sync.Pool // up to 64KB: Certificate messages with long chains
}

const (
	smallBufferSize  = 1024 + constants.AESNonceSize + constants.AESTagSize
	mediumBufferSize = 16*1024 + constants.AESNonceSize + constants.AESTagSize
	largeBufferSize  = 64*1024 + constants.AESNonceSize + constants.AESTagSize
)

var globalBufferPool = NewBufferPool()

// NewBufferPool creates an independent record-buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small:  sync.Pool{New: func() any { b := make([]byte, smallBufferSize); return &b }},
		medium: sync.Pool{New: func() any { b := make([]byte, mediumBufferSize); return &b }},
		large:  sync.Pool{New: func() any { b := make([]byte, largeBufferSize); return &b }},
	}
}

// Get returns a buffer of at least size bytes, sized from the smallest
// pool class that fits, or allocated directly if size exceeds all classes.
func (p *BufferPool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	var bufPtr *[]byte
	switch {
	case size <= smallBufferSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= mediumBufferSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= largeBufferSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Put returns buf to the pool it came from, zeroing it first since record
// buffers may carry decrypted handshake secrets or application data.
func (p *BufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}
	bufCap := cap(buf)
	if bufCap == 0 {
		return
	}
	buf = buf[:bufCap]
	for i := range buf {
		buf[i] = 0
	}
	bufPtr := &buf
	switch bufCap {
	case smallBufferSize:
		p.small.Put(bufPtr)
	case mediumBufferSize:
		p.medium.Put(bufPtr)
	case largeBufferSize:
		p.large.Put(bufPtr)
	}
}

// GetCryptoBuffer returns a buffer from the global record-buffer pool.
func GetCryptoBuffer(size int) []byte { return globalBufferPool.Get(size) }

// PutCryptoBuffer returns a buffer to the global record-buffer pool.
func PutCryptoBuffer(buf []byte) { globalBufferPool.Put(buf) }
