// collaborators.go declares the external interfaces the core depends on by
// signature only: certificate verification, signature verification, SCT
// verification, the end-entity certificate's KEM operations, client-auth
// certificate resolution, and the record-layer I/O harness. Concrete
// implementations (X.509 chain building, AEAD record framing) live outside
// this package entirely; pkg/certtest provides test doubles.
package handshake

import (
	"github.com/kemtls-go/kemtls-client/internal/constants"
)

// ServerCertVerified is an unforgeable token: the only way to obtain one is
// a successful CertVerifier.VerifyServerCert call.
type ServerCertVerified struct{ _ byte }

// HandshakeSignatureValid is the signature-path analogue of
// ServerCertVerified.
type HandshakeSignatureValid struct{ _ byte }

// CertVerifier validates a certificate chain against a trust store and DNS
// name.
type CertVerifier interface {
	VerifyServerCert(chain [][]byte, dnsName string, ocspResponse []byte) (ServerCertVerified, error)
}

// SignatureVerifier checks a TLS 1.3 CertificateVerify signature. context
// is the fixed 64-space-padded prefix string RFC 8446 specifies
// ("TLS 1.3, server CertificateVerify\x00"); the TLS 1.2
// ServerKeyExchange check reuses this interface with an empty context.
type SignatureVerifier interface {
	VerifyTLS13(endEntityCert []byte, scheme constants.SignatureScheme, signature []byte, transcriptHash []byte, context string) (HandshakeSignatureValid, error)
}

// SctLog identifies a configured Certificate Transparency log the client
// trusts.
type SctLog struct {
	LogID     []byte
	PublicKey []byte
}

// SctVerifier checks Signed Certificate Timestamps.
type SctVerifier interface {
	VerifySCTs(endEntityCert []byte, scts []byte, logs []SctLog) error
}

// EndEntityCert exposes the operations the KEMTLS fork needs against the
// server's end-entity certificate: detecting a KEM public key,
// encapsulating to it, and reading the raw (OID, bytes) public key.
type EndEntityCert interface {
	IsKEMCert() bool
	Encapsulate() (ciphertext, sharedSecret []byte, err error)
	PublicKey() (scheme constants.SignatureScheme, raw []byte)
}

// EndEntityCertFactory parses the leaf certificate bytes CertVerifier has
// already chain-validated into the capability interface the KEMTLS fork
// needs (EndEntityCert exposes behavior on an already-identified leaf;
// something has to produce that value from the DER bytes ServerCertDetails
// carries, and that parsing is itself external to the core - DER/X.509
// parsing is not this package's concern).
type EndEntityCertFactory interface {
	ParseEndEntity(leafDER []byte) (EndEntityCert, error)
}

// ClientAuthCertResolver resolves a client certificate chain and signer in
// response to a CertificateRequest. Returning ok=false means the client
// declines to authenticate, which is legal - the handshake continues with
// an empty Certificate message.
type ClientAuthCertResolver interface {
	Resolve(caNames [][]byte, schemes []constants.SignatureScheme) (chain [][]byte, signer ClientSigner, ok bool)
}

// ClientSigner signs the client's CertificateVerify content during
// client authentication.
type ClientSigner interface {
	Scheme() constants.SignatureScheme
	Sign(content []byte) ([]byte, error)
}

// IOHarness is the record-layer contract the core consumes: framing,
// epoch switches, and fatal-alert delivery. Record encryption/decryption,
// fragmentation, and the async I/O loop itself are the harness's concern,
// not the core's.
type IOHarness interface {
	SendMessage(contentType constants.ContentType, body []byte, encrypted bool) error
	SetMessageEncrypter(key, iv []byte, suite constants.CipherSuite) error
	SetMessageDecrypter(key, iv []byte, suite constants.CipherSuite) error
	WeNowEncrypting()
	PeerNowEncrypting()
	StartTraffic()
	SendFatalAlert(code constants.AlertDescription) error
}
