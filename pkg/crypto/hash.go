package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"

	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// hashNew resolves the HKDF hash constructor for a negotiated cipher
// suite's HashOutputSize (constants.CipherSuite.HashOutputSize): 32 bytes
// selects SHA-256, 48 bytes selects SHA-384.
func hashNew(hashSize int) (func() hash.Hash, error) {
	switch hashSize {
	case sha256.Size:
		return sha256.New, nil
	case sha512.Size384:
		return sha512.New384, nil
	default:
		return nil, qerrors.NewCryptoError("hashNew", qerrors.ErrInvalidKeySize)
	}
}

func readFull(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}
