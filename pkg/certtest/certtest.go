// Package certtest provides test-only implementations of the
// pkg/handshake collaborator interfaces (CertVerifier, SignatureVerifier,
// SctVerifier, EndEntityCert, EndEntityCertFactory, ClientAuthCertResolver,
// ClientSigner), so the seed-scenario tests in test/integration and the
// package-level handshake tests can drive a full handshake without a real
// X.509/WebPKI stack. Certificates here are not X.509 at all: a "leaf" is
// one tag byte followed by a raw public-key encoding (raw key bytes rather
// than DER-wrapped ones).
//
// Built on circl's kem/mlkem (ML-KEM-768/1024) for the KEM side, and circl's
// sign/dilithium for a classical-looking PQ signature side on the
// non-KEMTLS branch.
package certtest

import (
	"crypto/rand"
	"errors"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
	"github.com/kemtls-go/kemtls-client/pkg/handshake"
)

// leaf-encoding tags: a fake certificate is tag || raw-public-key-bytes.
const (
	tagClassicalSig byte = 0
	tagKEM          byte = 1
)

var dilithiumScheme sign.Scheme = mode3.Scheme()

// LeafKeyPair is a generated test identity: a signing keypair for the
// non-KEMTLS branch, or a KEM keypair for the KEMTLS branch, never both.
type LeafKeyPair struct {
	scheme constants.SignatureScheme

	sigPub  sign.PublicKey
	sigPriv sign.PrivateKey

	kemScheme kem.Scheme
	kemPub    kem.PublicKey
	kemPriv   kem.PrivateKey
}

// NewClassicalSigLeaf generates a Dilithium3 test identity for the plain
// TLS 1.3 CertificateVerify branch (state_tls13.go's
// ExpectTLS13CertificateVerifyState).
func NewClassicalSigLeaf() (*LeafKeyPair, error) {
	pub, priv, err := dilithiumScheme.GenerateKey()
	if err != nil {
		return nil, qerrors.NewCryptoError("certtest.NewClassicalSigLeaf", err)
	}
	return &LeafKeyPair{scheme: constants.SchemeDilithium3, sigPub: pub, sigPriv: priv}, nil
}

// NewKEMLeaf generates a KEMTLS test identity whose certificate carries a
// KEM public key instead of a signing key, for the implicit-authentication
// branch (state_tls13.go's enterKEMTLSAuthentication).
func NewKEMLeaf(scheme constants.SignatureScheme) (*LeafKeyPair, error) {
	s, ok := kemSchemeFor(scheme)
	if !ok {
		return nil, qerrors.NewCryptoError("certtest.NewKEMLeaf", qerrors.ErrUnknownGroup)
	}
	pub, priv, err := s.GenerateKeyPair()
	if err != nil {
		return nil, qerrors.NewCryptoError("certtest.NewKEMLeaf", err)
	}
	return &LeafKeyPair{scheme: scheme, kemScheme: s, kemPub: pub, kemPriv: priv}, nil
}

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

// Leaf encodes the fake end-entity certificate bytes ServerCertDetails and
// EndEntityCertFactory operate on.
func (kp *LeafKeyPair) Leaf() []byte {
	if kp.kemScheme != nil {
		b, _ := kp.kemPub.MarshalBinary()
		return append([]byte{tagKEM}, b...)
	}
	b, _ := kp.sigPub.MarshalBinary()
	return append([]byte{tagClassicalSig}, b...)
}

// Sign produces a Dilithium3 signature over content, for the
// ClientSigner/server-CertificateVerify doubles below.
func (kp *LeafKeyPair) Sign(content []byte) ([]byte, error) {
	if kp.sigPriv == nil {
		return nil, qerrors.NewCryptoError("certtest.Sign", qerrors.ErrUnknownGroup)
	}
	return dilithiumScheme.Sign(kp.sigPriv, content, nil), nil
}

// Decapsulate recovers the shared secret from a KEMTLS ClientKeyExchange
// ciphertext, mirroring the server half of enterKEMTLSAuthentication for
// test/integration's fake-server harness.
func (kp *LeafKeyPair) Decapsulate(ciphertext []byte) ([]byte, error) {
	if kp.kemPriv == nil {
		return nil, qerrors.NewCryptoError("certtest.Decapsulate", qerrors.ErrUnknownGroup)
	}
	ss, err := kp.kemScheme.Decapsulate(kp.kemPriv, ciphertext)
	if err != nil {
		return nil, qerrors.NewCryptoError("certtest.Decapsulate", qerrors.ErrDecapsulationFailed)
	}
	return ss, nil
}

// Scheme reports the signature/KEM codepoint this identity was generated
// for.
func (kp *LeafKeyPair) Scheme() constants.SignatureScheme { return kp.scheme }

// AcceptAllCertVerifier is a CertVerifier that accepts any non-empty
// chain, for tests that exercise the handshake state machine rather than
// WebPKI chain validation itself - chain building lives outside this
// module.
type AcceptAllCertVerifier struct{}

func (AcceptAllCertVerifier) VerifyServerCert(chain [][]byte, dnsName string, ocspResponse []byte) (handshake.ServerCertVerified, error) {
	if len(chain) == 0 {
		return handshake.ServerCertVerified{}, &qerrors.NoCertificatesPresented{}
	}
	return handshake.ServerCertVerified{}, nil
}

// DilithiumSignatureVerifier implements handshake.SignatureVerifier against
// the fake Dilithium3 leaves NewClassicalSigLeaf produces; it also backs
// the TLS 1.2 ServerKeyExchange signature check. The context string is
// prepended to transcriptHash to form the verified content; state_tls12.go
// passes an empty context there, so that content is transcriptHash alone.
type DilithiumSignatureVerifier struct{}

func (DilithiumSignatureVerifier) VerifyTLS13(endEntityCert []byte, scheme constants.SignatureScheme, signature []byte, transcriptHash []byte, context string) (handshake.HandshakeSignatureValid, error) {
	if len(endEntityCert) == 0 || endEntityCert[0] != tagClassicalSig {
		return handshake.HandshakeSignatureValid{}, qerrors.NewWebPKIError(errors.New("certtest: not a classical-signature leaf"))
	}
	pub, err := dilithiumScheme.UnmarshalBinaryPublicKey(endEntityCert[1:])
	if err != nil {
		return handshake.HandshakeSignatureValid{}, qerrors.NewWebPKIError(errors.New("certtest: malformed leaf public key"))
	}
	signed := append(append([]byte(nil), []byte(context)...), transcriptHash...)
	if !dilithiumScheme.Verify(pub, signed, signature) {
		return handshake.HandshakeSignatureValid{}, qerrors.NewDecryptError("certtest: signature verification failed")
	}
	return handshake.HandshakeSignatureValid{}, nil
}

// AcceptAllSctVerifier accepts every SCT blob, empty or not, mirroring
// AcceptAllCertVerifier's scope decision (CT log verification is outside
// this module's boundary).
type AcceptAllSctVerifier struct{}

func (AcceptAllSctVerifier) VerifySCTs(endEntityCert []byte, scts []byte, logs []handshake.SctLog) error {
	return nil
}

// endEntityCert adapts a parsed fake leaf to handshake.EndEntityCert.
type endEntityCert struct {
	tag byte

	kemScheme kem.Scheme
	kemPub    kem.PublicKey
	rawKEMKey []byte

	sigScheme constants.SignatureScheme
}

func (e *endEntityCert) IsKEMCert() bool { return e.tag == tagKEM }

func (e *endEntityCert) Encapsulate() (ciphertext, sharedSecret []byte, err error) {
	if e.kemScheme == nil {
		return nil, nil, qerrors.NewCryptoError("certtest.Encapsulate", qerrors.ErrUnknownGroup)
	}
	ct, ss, err := e.kemScheme.Encapsulate(e.kemPub)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError("certtest.Encapsulate", qerrors.ErrEncapsulationFailed)
	}
	return ct, ss, nil
}

func (e *endEntityCert) PublicKey() (scheme constants.SignatureScheme, raw []byte) {
	return e.sigScheme, e.rawKEMKey
}

// Factory implements handshake.EndEntityCertFactory against the tag||bytes
// encoding LeafKeyPair.Leaf produces.
type Factory struct {
	// KEMScheme resolves the codepoint carried by a KEM leaf's tag byte to
	// the circl scheme needed to unmarshal and encapsulate to it.
	// Tests construct one Factory per codepoint under test.
	KEMScheme constants.SignatureScheme
}

func (f Factory) ParseEndEntity(leafDER []byte) (handshake.EndEntityCert, error) {
	if len(leafDER) == 0 {
		return nil, &qerrors.NoCertificatesPresented{}
	}
	tag, body := leafDER[0], leafDER[1:]
	if tag == tagClassicalSig {
		return &endEntityCert{tag: tag, sigScheme: constants.SchemeDilithium3, rawKEMKey: body}, nil
	}

	s, ok := kemSchemeFor(f.KEMScheme)
	if !ok {
		return nil, qerrors.NewWebPKIError(errors.New("certtest: unknown KEM scheme for leaf"))
	}
	pub, err := s.UnmarshalBinaryPublicKey(body)
	if err != nil {
		return nil, qerrors.NewWebPKIError(errors.New("certtest: malformed KEM leaf public key"))
	}
	return &endEntityCert{tag: tag, kemScheme: s, kemPub: pub, rawKEMKey: body, sigScheme: f.KEMScheme}, nil
}

// StaticClientAuthResolver always offers the same chain/signer, or declines
// (ok=false) if configured with a nil Chain - exercising both client-auth
// branches (state_tls13.go's emitTLS13ClientAuth, state_tls12.go's
// completeTLS12ClientFlight).
type StaticClientAuthResolver struct {
	Chain  [][]byte
	Signer handshake.ClientSigner
}

func (r StaticClientAuthResolver) Resolve(caNames [][]byte, schemes []constants.SignatureScheme) (chain [][]byte, signer handshake.ClientSigner, ok bool) {
	if r.Chain == nil {
		return nil, nil, false
	}
	return r.Chain, r.Signer, true
}

// Signer adapts a *LeafKeyPair to handshake.ClientSigner.
type Signer struct {
	Leaf *LeafKeyPair
}

func (s Signer) Scheme() constants.SignatureScheme { return s.Leaf.Scheme() }
func (s Signer) Sign(content []byte) ([]byte, error) { return s.Leaf.Sign(content) }

// randomBytes returns n bytes read from crypto/rand. It is unexported, so
// only code inside this package can call it.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
