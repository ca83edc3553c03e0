// prf.go implements the TLS 1.2 PRF (RFC 5246): P_hash built from HMAC
// under the cipher suite's hash, used only by the legacy branch for
// master_secret derivation and the traffic key block. TLS 1.3 never calls
// this; it has its own HKDF-based schedule in pkg/keyschedule.
package crypto

import (
	"crypto/hmac"
)

// pHash implements RFC 5246's P_hash(secret, seed) expanded to length
// bytes: A(1) = HMAC(secret, seed), A(i) = HMAC(secret, A(i-1)), output is
// HMAC(secret, A(i) || seed) concatenated until length is reached.
func pHash(hashSize int, secret, seed []byte, length int) ([]byte, error) {
	newHash, err := hashNew(hashSize)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, length)
	a := seed
	for len(out) < length {
		mac := hmac.New(newHash, secret)
		mac.Write(a)
		a = mac.Sum(nil)

		mac = hmac.New(newHash, secret)
		mac.Write(a)
		mac.Write(seed)
		out = append(out, mac.Sum(nil)...)
	}
	return out[:length], nil
}

// MasterSecretTLS12 derives the 48-byte TLS 1.2 master secret (RFC 5246):
// PRF(pre_master_secret, "master secret", client_random ||
// server_random). EMS variants replace the seed with a transcript hash
// (MasterSecretTLS12EMS).
func MasterSecretTLS12(hashSize int, preMaster, clientRandom, serverRandom []byte) ([]byte, error) {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return pHash(hashSize, preMaster, append([]byte("master secret"), seed...), 48)
}

// MasterSecretTLS12EMS derives the Extended Master Secret (RFC 7627):
// PRF(pre_master_secret, "extended master secret", session_hash), where
// session_hash is the transcript hash up to and including ClientKeyExchange.
func MasterSecretTLS12EMS(hashSize int, preMaster, sessionHash []byte) ([]byte, error) {
	return pHash(hashSize, preMaster, append([]byte("extended master secret"), sessionHash...), 48)
}

// KeyBlockTLS12 derives the traffic key block (RFC 5246):
// PRF(master_secret, "key expansion", server_random || client_random),
// truncated to length bytes (2*(mac_key_len + enc_key_len + fixed_iv_len)
// for an AEAD suite, mac_key_len == 0).
func KeyBlockTLS12(hashSize int, masterSecret, clientRandom, serverRandom []byte, length int) ([]byte, error) {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	return pHash(hashSize, masterSecret, append([]byte("key expansion"), seed...), length)
}

// VerifyDataTLS12 computes a Finished message's verify_data (RFC 5246):
// PRF(master_secret, label, Hash(handshake_messages))[0:12].
// label is "client finished" or "server finished".
func VerifyDataTLS12(hashSize int, masterSecret []byte, label string, handshakeHash []byte) ([]byte, error) {
	return pHash(hashSize, masterSecret, append([]byte(label), handshakeHash...), 12)
}
