// hkdf.go implements the TLS 1.3 HKDF-Expand-Label construction from RFC 8446
// on top of golang.org/x/crypto/hkdf. pkg/keyschedule calls these to
// walk the early/handshake/master secret chain; nothing here knows about
// the schedule's state, only the two primitive operations it is built from.
package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/hkdf"

	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// Extract is HKDF-Extract(salt, ikm) for the given hash size (32 for
// SHA-256, 48 for SHA-384). ikm and salt may both be nil, per RFC 5869 -
// the key schedule passes an all-zero salt/ikm of the hash's length for the
// "no earlier secret"/"no PSK" cases rather than nil, matching RFC 8446's
// Derive-Secret(..., "", "") convention.
func Extract(hashSize int, salt, ikm []byte) ([]byte, error) {
	h, err := hashNew(hashSize)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		salt = make([]byte, hashSize)
	}
	if ikm == nil {
		ikm = make([]byte, hashSize)
	}
	return hkdf.Extract(h, ikm, salt), nil
}

// ExpandLabel implements HKDF-Expand-Label(Secret, Label, Context, Length):
//
//	HkdfLabel = struct {
//	    uint16 length = Length;
//	    opaque label<7..255> = "tls13 " + Label;
//	    opaque context<0..255> = Context;
//	}
//	HKDF-Expand(Secret, HkdfLabel, Length)
func ExpandLabel(hashSize int, secret []byte, label string, context []byte, length int) ([]byte, error) {
	if length <= 0 || length > 1<<16 {
		return nil, qerrors.NewCryptoError("ExpandLabel", qerrors.ErrInvalidKeySize)
	}

	fullLabel := "tls13 " + label
	if len(fullLabel) > 255 || len(context) > 255 {
		return nil, qerrors.NewCryptoError("ExpandLabel", qerrors.ErrInvalidKeySize)
	}

	hkdfLabel := make([]byte, 0, 2+1+len(fullLabel)+1+len(context))
	lengthPrefix := make([]byte, 2)
	binary.BigEndian.PutUint16(lengthPrefix, uint16(length))
	hkdfLabel = append(hkdfLabel, lengthPrefix...)
	hkdfLabel = append(hkdfLabel, byte(len(fullLabel)))
	hkdfLabel = append(hkdfLabel, fullLabel...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)

	h, err := hashNew(hashSize)
	if err != nil {
		return nil, err
	}

	reader := hkdf.Expand(h, secret, hkdfLabel)
	out := make([]byte, length)
	if _, err := readFull(reader, out); err != nil {
		return nil, qerrors.NewCryptoError("ExpandLabel", err)
	}
	return out, nil
}
