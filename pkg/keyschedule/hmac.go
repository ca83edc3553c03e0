package keyschedule

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// sha256Empty/sha384Empty are the fixed digests of the empty string,
// precomputed so nextSalt's Derive-Secret(..., "derived", "") does not need
// to know which concrete hash.Hash backs pkg/transcript.
var (
	sha256Empty = sha256.Sum256(nil)
	sha384Empty = sha512.Sum384(nil)
)

func hashConstructorFor(hashSize int) (func() hash.Hash, error) {
	switch hashSize {
	case sha256.Size:
		return sha256.New, nil
	case sha512.Size384:
		return sha512.New384, nil
	default:
		return nil, qerrors.NewCryptoError("keyschedule.hashConstructorFor", qerrors.ErrInvalidKeySize)
	}
}

func hmacSum(hashSize int, key, data []byte) ([]byte, error) {
	newHash, err := hashConstructorFor(hashSize)
	if err != nil {
		return nil, err
	}
	h := hmac.New(newHash, key)
	h.Write(data)
	return h.Sum(nil), nil
}
