// aead.go implements the TLS 1.3 record protection AEAD defined by RFC 8446:
// a per-direction cipher keyed once per epoch, with nonces derived by
// XORing a fixed per-epoch IV against the record sequence number rather
// than carried on the wire. Two ciphers are supported: AES-*-GCM and
// ChaCha20-Poly1305, selected by the negotiated cipher suite.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// AEAD is one direction's (read or write) record protection state for a
// single key epoch: handshake traffic keys, application traffic keys, or a
// traffic key update (KeyUpdate). TLS 1.2 record protection is handled
// separately by the legacy cipher path.
type AEAD struct {
	cipher cipher.AEAD
	suite  constants.CipherSuite
	iv     []byte // fixed_iv, XORed with the sequence number per record

	mu      sync.Mutex
	seq     uint64
	maxSeq  uint64
}

// NewAEAD constructs a record AEAD for suite, keyed with key (32 bytes) and
// a 12-byte fixed IV as produced by the key schedule's traffic key
// derivation (pkg/keyschedule).
func NewAEAD(suite constants.CipherSuite, key, iv []byte) (*AEAD, error) {
	if len(key) != constants.AESKeySize {
		return nil, qerrors.NewCryptoError("NewAEAD", qerrors.ErrInvalidKeySize)
	}
	if len(iv) != constants.AESNonceSize {
		return nil, qerrors.NewCryptoError("NewAEAD", qerrors.ErrInvalidNonce)
	}

	var aeadCipher cipher.AEAD
	switch suite {
	case constants.SuiteAES128GCMSHA256, constants.SuiteAES256GCMSHA384:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}
		aeadCipher, err = cipher.NewGCM(block)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}

	case constants.SuiteChaCha20Poly1305SHA256:
		var err error
		aeadCipher, err = chacha20poly1305.New(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("NewAEAD", err)
		}

	default:
		return nil, qerrors.NewCryptoError("NewAEAD", qerrors.ErrUnknownGroup)
	}

	ivCopy := make([]byte, len(iv))
	copy(ivCopy, iv)

	return &AEAD{
		cipher: aeadCipher,
		suite:  suite,
		iv:     ivCopy,
		// 2^36 records bounds AEAD nonce reuse risk well below the GCM/
		// ChaCha20Poly1305 limit; a KeyUpdate is expected long before this.
		maxSeq: 1 << 36,
	}, nil
}

// Seal encrypts and authenticates a single record's plaintext under the
// next sequence number, returning ciphertext||tag. additionalData is the
// record header TLSInnerPlaintext is bound to.
func (a *AEAD) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce, err := a.nextNonce()
	if err != nil {
		return nil, err
	}
	return a.cipher.Seal(nil, nonce, plaintext, additionalData), nil
}

// Open decrypts and verifies a record at the given sequence number
// (tracked independently per direction by the record layer, an external
// collaborator; this AEAD only computes the nonce).
func (a *AEAD) Open(seq uint64, ciphertext, additionalData []byte) ([]byte, error) {
	if len(ciphertext) < a.cipher.Overhead() {
		return nil, qerrors.NewCryptoError("Open", qerrors.ErrCiphertextTooShort)
	}
	nonce := a.nonceFor(seq)
	plaintext, err := a.cipher.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, qerrors.NewCryptoError("Open", qerrors.ErrAuthenticationFailed)
	}
	return plaintext, nil
}

// nonceFor computes per_record_nonce = fixed_iv XOR pad_to_iv_len(seq).
func (a *AEAD) nonceFor(seq uint64) []byte {
	nonce := make([]byte, len(a.iv))
	copy(nonce, a.iv)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	offset := len(nonce) - 8
	for i := 0; i < 8; i++ {
		nonce[offset+i] ^= seqBytes[i]
	}
	return nonce
}

func (a *AEAD) nextNonce() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seq >= a.maxSeq {
		return nil, qerrors.NewCryptoError("Seal", qerrors.ErrNonceExhausted)
	}
	nonce := a.nonceFor(a.seq)
	a.seq++
	return nonce, nil
}

// Sequence returns the next write sequence number to be used.
func (a *AEAD) Sequence() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq
}

// NeedsKeyUpdate reports whether the cipher is approaching its sequence
// number bound; the caller should send/process a KeyUpdate before then.
func (a *AEAD) NeedsKeyUpdate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq >= (a.maxSeq * 9 / 10)
}

// Suite returns the cipher suite this AEAD was constructed for.
func (a *AEAD) Suite() constants.CipherSuite { return a.suite }

// Overhead returns the AEAD authentication tag size in bytes.
func (a *AEAD) Overhead() int { return a.cipher.Overhead() }

// NonceSize returns the AEAD's required nonce size in bytes.
func (a *AEAD) NonceSize() int { return a.cipher.NonceSize() }
