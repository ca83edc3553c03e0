// random.go wraps the OS CSPRNG with the error taxonomy the rest of the
// handshake engine uses, and provides constant-time comparison and best
// effort zeroization helpers for key material.
package crypto

import (
	"crypto/rand"
	"io"

	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// SecureRandom reads cryptographically secure random bytes into b.
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return qerrors.NewCryptoError("SecureRandom", err)
	}
	return nil
}

// SecureRandomBytes returns n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Reader is an io.Reader over the OS CSPRNG, for APIs (circl, crypto/ecdh)
// that take a reader directly instead of returning an error-wrapped helper.
var Reader = rand.Reader

// ConstantTimeCompare reports whether a and b are equal, in constant time
// with respect to their contents. Used to compare Finished MACs and PSK
// binders, where a short-circuiting == would leak timing information.
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result byte
	for i := range a {
		result |= a[i] ^ b[i]
	}
	return result == 0
}

// Zeroize overwrites b with zeros. Called on traffic secrets and shared
// secrets once they have been consumed by a derivation step.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeMultiple zeroizes every slice in slices.
func ZeroizeMultiple(slices ...[]byte) {
	for _, s := range slices {
		Zeroize(s)
	}
}
