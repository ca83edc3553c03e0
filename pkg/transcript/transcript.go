// Package transcript implements the cryptographic transcript: an
// append-only log of handshake message bodies with on-demand hashing under
// a negotiated algorithm, plus the HelloRetryRequest "rollup" substitution
// RFC 8446 requires. Built around a single owned buffer mutated in place.
package transcript

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// Hash is a running log of handshake message bodies. The hash algorithm is
// unbound until the cipher suite is known (start_hash); add_message may be
// called before or after binding, since early ClientHello bytes must
// survive to be hashed once the algorithm is chosen.
type Hash struct {
	buf       []byte
	hashNew   func() hash.Hash
	hashSize  int
	bound     bool
	firstCH   []byte // the first ClientHello's bytes, retained for HRR rollup
	haveFirst bool
}

// New creates an unbound transcript, ready to accumulate ClientHello bytes
// before the server's cipher suite (and hence hash algorithm) is known.
func New() *Hash {
	return &Hash{}
}

// StartHash binds the hash algorithm. Legal at most once (Rollup does not
// reset the binding): a second call is a programming error in the caller,
// not a peer-triggerable one, so it panics.
func (t *Hash) StartHash(hashSize int) error {
	if t.bound {
		panic("transcript: StartHash called twice")
	}
	hn, err := hashConstructor(hashSize)
	if err != nil {
		return err
	}
	t.hashNew = hn
	t.hashSize = hashSize
	t.bound = true
	return nil
}

func hashConstructor(size int) (func() hash.Hash, error) {
	switch size {
	case sha256.Size:
		return sha256.New, nil
	case sha512.Size384:
		return sha512.New384, nil
	default:
		return nil, qerrors.NewCryptoError("transcript.StartHash", qerrors.ErrInvalidKeySize)
	}
}

// HashSize reports the bound hash's output size, or 0 if unbound.
func (t *Hash) HashSize() int { return t.hashSize }

// AddMessage appends a handshake message's wire body (header + body, no
// record framing) to the transcript. The very first call is remembered
// verbatim so Rollup can replace it later if an HRR arrives.
func (t *Hash) AddMessage(wireBytes []byte) {
	if !t.haveFirst {
		t.firstCH = append([]byte(nil), wireBytes...)
		t.haveFirst = true
	}
	t.buf = append(t.buf, wireBytes...)
}

// Rollup implements the HRR transcript substitution (RFC 8446):
// replace the buffered first ClientHello with
// message_hash(message_hash_type, Hash(CH1)) before appending anything
// else. Must be called exactly once, immediately after StartHash selects
// the server's chosen hash algorithm and before the HelloRetryRequest
// itself is appended.
func (t *Hash) Rollup() error {
	if !t.bound {
		return qerrors.NewCryptoError("transcript.Rollup", qerrors.ErrInvalidKeySize)
	}
	if !t.haveFirst {
		panic("transcript: Rollup called with no buffered ClientHello")
	}
	h := t.hashNew()
	h.Write(t.firstCH)
	digest := h.Sum(nil)

	synthetic := make([]byte, 0, 4+len(digest))
	synthetic = append(synthetic, byte(constants.HandshakeTypeMessageHash))
	synthetic = append(synthetic, byte(len(digest)>>16), byte(len(digest)>>8), byte(len(digest)))
	synthetic = append(synthetic, digest...)

	rest := t.buf[len(t.firstCH):]
	t.buf = append(append([]byte(nil), synthetic...), rest...)
	t.firstCH = synthetic
	return nil
}

// GetCurrentHash digests everything buffered so far under the bound
// algorithm.
func (t *Hash) GetCurrentHash() []byte {
	h := t.hashNew()
	h.Write(t.buf)
	return h.Sum(nil)
}

// GetHashGiven returns H(buffer || extra) without mutating the transcript,
// used for PSK binder signing: the binder value is hashed into the
// transcript it is itself computed over, but the binder list's own length
// prefix has already been written and must not be re-hashed twice.
func (t *Hash) GetHashGiven(extra []byte) []byte {
	h := t.hashNew()
	h.Write(t.buf)
	h.Write(extra)
	return h.Sum(nil)
}

// TakeHandshakeBuf returns a copy of the raw buffered transcript bytes; the
// HRR path uses it to recompute PSK binders for the retried ClientHello.
func (t *Hash) TakeHandshakeBuf() []byte {
	return append([]byte(nil), t.buf...)
}

// AbandonClientAuth is a no-op lifecycle marker: when the client decides
// not to present a certificate (no matching CertificateRequest
// constraints), the running transcript is unaffected and this simply
// documents the decision point.
func (t *Hash) AbandonClientAuth() {}
