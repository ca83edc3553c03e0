// group.go provides the client's key-share abstraction: one implementation
// per constants.NamedGroup, covering both classical ECDH (X25519, P-256) and the
// post-quantum KEM groups offered as forward-secret key shares
// (Kyber768/Kyber1024, per draft-ietf-tls-hybrid-design's encapsulation-key-
// as-key-share convention). It also exposes the separate encapsulate-only
// operation KEMTLS needs against a server's long-term, certified KEM key.
package crypto

import (
	"crypto/ecdh"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// KeyShare is the client's half of one key_share entry. Group groups are
// symmetric between the client's offer and the server's reply, but the
// operation that turns the reply into a shared secret differs: ECDH for
// classical groups, decapsulation for KEM groups.
type KeyShare interface {
	Group() constants.NamedGroup
	Public() []byte
	Finish(peer []byte) ([]byte, error)
}

// GenerateKeyShare creates the client's ephemeral key material for group.
// Called once per offered group building ClientHello.offered_key_shares,
// and again for the single retried group after a HelloRetryRequest.
func GenerateKeyShare(group constants.NamedGroup) (KeyShare, error) {
	switch group {
	case constants.GroupX25519:
		return newX25519KeyShare()
	case constants.GroupSECP256R1:
		return newP256KeyShare()
	case constants.GroupKyber768, constants.GroupKyber1024:
		scheme, _ := kemSchemeForGroup(group)
		return newKEMKeyShare(group, scheme)
	default:
		return nil, qerrors.NewCryptoError("GenerateKeyShare", qerrors.ErrUnknownGroup)
	}
}

// kemSchemeForGroup resolves the circl scheme backing an ephemeral KEM
// key-share group (as opposed to kemSchemeFor, which resolves a KEMTLS_*
// certificate codepoint for the static-key encapsulation path).
func kemSchemeForGroup(group constants.NamedGroup) (kem.Scheme, bool) {
	switch group {
	case constants.GroupKyber768:
		return mlkem768.Scheme(), true
	case constants.GroupKyber1024:
		return mlkem1024.Scheme(), true
	default:
		return nil, false
	}
}

type x25519KeyShare struct {
	priv *ecdh.PrivateKey
}

func newX25519KeyShare() (*x25519KeyShare, error) {
	priv, err := ecdh.X25519().GenerateKey(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("GenerateKeyShare(x25519)", err)
	}
	return &x25519KeyShare{priv: priv}, nil
}

func (k *x25519KeyShare) Group() constants.NamedGroup { return constants.GroupX25519 }
func (k *x25519KeyShare) Public() []byte              { return k.priv.PublicKey().Bytes() }

func (k *x25519KeyShare) Finish(peer []byte) ([]byte, error) {
	peerKey, err := ecdh.X25519().NewPublicKey(peer)
	if err != nil {
		return nil, qerrors.NewCryptoError("Finish(x25519)", qerrors.ErrInvalidPublicKey)
	}
	secret, err := k.priv.ECDH(peerKey)
	if err != nil {
		return nil, qerrors.NewCryptoError("Finish(x25519)", err)
	}
	return secret, nil
}

// p256KeyShare backs the one classical NIST group this client offers
// alongside X25519 (TLS 1.3's secp256r1 key_share entry, and RFC 4492's
// ECDHE_RSA named_curve on the TLS 1.2 legacy branch).
type p256KeyShare struct {
	priv *ecdh.PrivateKey
}

func newP256KeyShare() (*p256KeyShare, error) {
	priv, err := ecdh.P256().GenerateKey(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("GenerateKeyShare(secp256r1)", err)
	}
	return &p256KeyShare{priv: priv}, nil
}

func (k *p256KeyShare) Group() constants.NamedGroup { return constants.GroupSECP256R1 }
func (k *p256KeyShare) Public() []byte              { return k.priv.PublicKey().Bytes() }

func (k *p256KeyShare) Finish(peer []byte) ([]byte, error) {
	peerKey, err := ecdh.P256().NewPublicKey(peer)
	if err != nil {
		return nil, qerrors.NewCryptoError("Finish(secp256r1)", qerrors.ErrInvalidPublicKey)
	}
	secret, err := k.priv.ECDH(peerKey)
	if err != nil {
		return nil, qerrors.NewCryptoError("Finish(secp256r1)", err)
	}
	return secret, nil
}

// kemKeyShare backs an ephemeral, forward-secret KEM group offered as a
// key_share entry: the client's "public key" is an encapsulation key, and
// the peer's reply is a ciphertext to decapsulate, not a DH public value.
type kemKeyShare struct {
	group  constants.NamedGroup
	scheme kem.Scheme
	priv   kem.PrivateKey
	pub    kem.PublicKey
}

func newKEMKeyShare(group constants.NamedGroup, scheme kem.Scheme) (*kemKeyShare, error) {
	pub, priv, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, qerrors.NewCryptoError("GenerateKeyShare("+group.String()+")", err)
	}
	return &kemKeyShare{group: group, scheme: scheme, priv: priv, pub: pub}, nil
}

func (k *kemKeyShare) Group() constants.NamedGroup { return k.group }

func (k *kemKeyShare) Public() []byte {
	b, _ := k.pub.MarshalBinary()
	return b
}

func (k *kemKeyShare) Finish(peer []byte) ([]byte, error) {
	if len(peer) != k.scheme.CiphertextSize() {
		return nil, qerrors.NewCryptoError("Finish("+k.group.String()+")", qerrors.ErrInvalidCiphertext)
	}
	ss, err := k.scheme.Decapsulate(k.priv, peer)
	if err != nil {
		return nil, qerrors.NewCryptoError("Finish("+k.group.String()+")", qerrors.ErrDecapsulationFailed)
	}
	return ss, nil
}

// EncapsulateToStaticKey implements KEMTLS's implicit server authentication:
// given the server's long-term KEM public key extracted from its
// end-entity certificate (via pkg/oid), the client encapsulates to it
// directly. The resulting ciphertext is sent in place of a signed
// CertificateVerify, and sharedSecret feeds the key schedule in place of
// ClientKeyExchange's DH output.
func EncapsulateToStaticKey(scheme constants.SignatureScheme, publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	s, ok := kemSchemeFor(scheme)
	if !ok {
		return nil, nil, qerrors.NewCryptoError("EncapsulateToStaticKey", qerrors.ErrUnknownGroup)
	}

	pub, err := s.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("EncapsulateToStaticKey", qerrors.ErrInvalidPublicKey)
	}

	seed := make([]byte, s.EncapsulationSeedSize())
	if err := SecureRandom(seed); err != nil {
		return nil, nil, err
	}

	ct, ss, err := s.EncapsulateDeterministically(pub, seed)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("EncapsulateToStaticKey", qerrors.ErrEncapsulationFailed)
	}
	return ct, ss, nil
}

// kemSchemeFor resolves the circl scheme backing a KEMTLS_* certificate
// codepoint. Only the two ML-KEM sizes have a real implementation in this
// build; every other KEMTLS_* codepoint (McEliece, Saber, NTRU, FrodoKEM,
// SIKE, BIKE, Kyber512) is recognized structurally by pkg/oid but has no
// circl backing, so EncapsulateToStaticKey reports ErrUnknownGroup for it.
func kemSchemeFor(scheme constants.SignatureScheme) (kem.Scheme, bool) {
	switch scheme {
	case constants.SchemeKEMTLSKyber768:
		return mlkem768.Scheme(), true
	case constants.SchemeKEMTLSKyber1024:
		return mlkem1024.Scheme(), true
	default:
		return nil, false
	}
}
