// codec.go implements the low-level wire primitives handshake messages are
// built from: TLS's big-endian fixed-width integers and <a..b>-style
// length-prefixed vectors (RFC 8446). Message-specific layout lives in
// messages.go and extensions.go; this file only knows about bytes.
package wire

import (
	"encoding/binary"

	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// Writer accumulates a handshake message body by appending fixed-width
// integers and length-prefixed vectors: a single growable buffer rather
// than a streaming encoder.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{buf: make([]byte, 0, 256)} }

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) PutUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) PutUint16(v uint16) { w.buf = append(w.buf, byte(v>>8), byte(v)) }
func (w *Writer) PutUint24(v uint32) { w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v)) }
func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

// PutVec8/16/24 write a length-prefixed opaque vector whose length field is
// 1/2/3 bytes wide, per the TLS presentation-language convention used for
// e.g. <0..255> and <0..2^16-1> vectors.
func (w *Writer) PutVec8(b []byte)  { w.PutUint8(uint8(len(b))); w.PutBytes(b) }
func (w *Writer) PutVec16(b []byte) { w.PutUint16(uint16(len(b))); w.PutBytes(b) }
func (w *Writer) PutVec24(b []byte) { w.PutUint24(uint32(len(b))); w.PutBytes(b) }

// WithLengthPrefixed16 reserves a 2-byte length prefix, runs fn to fill the
// body, then patches the prefix in place. Used for extension lists and
// other vectors whose contents are themselves structured, not a flat byte
// slice available up front.
func (w *Writer) WithLengthPrefixed16(fn func(*Writer)) {
	start := len(w.buf)
	w.PutUint16(0)
	inner := &Writer{buf: w.buf}
	fn(inner)
	w.buf = inner.buf
	binary.BigEndian.PutUint16(w.buf[start:start+2], uint16(len(w.buf)-start-2))
}

// WithLengthPrefixed24 is WithLengthPrefixed16's 3-byte-length counterpart,
// used for the handshake message body itself and Certificate's cert_list.
func (w *Writer) WithLengthPrefixed24(fn func(*Writer)) {
	start := len(w.buf)
	w.PutUint24(0)
	inner := &Writer{buf: w.buf}
	fn(inner)
	w.buf = inner.buf
	v := uint32(len(w.buf) - start - 3)
	w.buf[start], w.buf[start+1], w.buf[start+2] = byte(v>>16), byte(v>>8), byte(v)
}

// Reader consumes a handshake message body written by Writer. Every method
// returns CorruptMessagePayload-friendly errors on underrun so handlers can
// wrap them without re-checking bounds themselves.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() int  { return len(r.buf) - r.pos }
func (r *Reader) Rest() []byte    { return r.buf[r.pos:] }
func (r *Reader) Done() bool      { return r.pos >= len(r.buf) }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return qerrors.ErrShortRead
	}
	return nil
}

func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) Uint24() (uint32, error) {
	if err := r.need(3); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos])<<16 | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])
	r.pos += 3
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+n])
	r.pos += n
	return v, nil
}

func (r *Reader) Vec8() ([]byte, error) {
	n, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

func (r *Reader) Vec16() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

func (r *Reader) Vec24() ([]byte, error) {
	n, err := r.Uint24()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// Sub carves out the next n bytes as an independent Reader, for a vector
// whose contents are a further list of structured entries (extensions,
// certificate entries, key shares).
func (r *Reader) Sub(n int) (*Reader, error) {
	b, err := r.Bytes(n)
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}

// Sub16/Sub24 read a 2/3-byte length prefix and return a sub-Reader over
// exactly that many following bytes.
func (r *Reader) Sub16() (*Reader, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Sub(int(n))
}

func (r *Reader) Sub24() (*Reader, error) {
	n, err := r.Uint24()
	if err != nil {
		return nil, err
	}
	return r.Sub(int(n))
}
