// context.go owns the state that is shared across the whole handshake
// rather than private to one state: the key schedule and transcript are
// owned by the shared connection context because multiple states mutate
// them, not by individual states.
package handshake

import (
	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
	"github.com/kemtls-go/kemtls-client/pkg/keyschedule"
	"github.com/kemtls-go/kemtls-client/pkg/metrics"
	"github.com/kemtls-go/kemtls-client/pkg/session"
	"github.com/kemtls-go/kemtls-client/pkg/transcript"
)

// Context bundles the collaborators and the shared cryptographic
// accumulators a connection's states thread through. It does not itself
// implement State; the Dispatcher holds both the current State and the
// Context it operates on.
type Context struct {
	Config Config

	IO              IOHarness
	CertVerifier    CertVerifier
	SigVerifier     SignatureVerifier
	SctVerifier     SctVerifier
	SctLogs         []SctLog
	CertFactory     EndEntityCertFactory
	AuthResolver    ClientAuthCertResolver
	SessionCache    *session.Cache
	Observer        metrics.Observer

	Transcript *transcript.Hash
	KeySchedule *keyschedule.Schedule

	Suite             constants.CipherSuite
	NegotiatedVersion constants.ProtocolVersion

	Details    HandshakeDetails
	ClientCH   ClientHelloDetails
	ServerCert ServerCertDetails
	ServerKX   ServerKXDetails
	ClientAuth *ClientAuthDetails

	Secrets HandshakeSecrets
}

// HandshakeSecrets holds the derived traffic/exporter secrets a state
// produces for a later state to consume: handshake traffic secrets feed
// Finished verification, the KEMTLS AHS secrets substitute for them
// when the implicit-authentication fork is taken, and the application/
// exporter/resumption secrets are derived once the peer's Finished is
// verified.
type HandshakeSecrets struct {
	ClientEarlyTraffic []byte

	ClientHandshakeTraffic []byte
	ServerHandshakeTraffic []byte

	ClientAuthHandshakeTraffic []byte
	ServerAuthHandshakeTraffic []byte

	ClientApplicationTraffic []byte
	ServerApplicationTraffic []byte

	ExporterMaster    []byte
	ResumptionMaster  []byte
}

// NewContext wires a fresh connection context. The key schedule and
// transcript hash algorithm are not yet bound - that happens once the
// server's cipher suite is known, in ExpectServerHello's
// start_handshake_traffic.
func NewContext(cfg Config, io IOHarness, certVerifier CertVerifier, sigVerifier SignatureVerifier, certFactory EndEntityCertFactory, cache *session.Cache, observer metrics.Observer) *Context {
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	return &Context{
		Config:       cfg,
		IO:           io,
		CertVerifier: certVerifier,
		SigVerifier:  sigVerifier,
		CertFactory:  certFactory,
		SessionCache: cache,
		Observer:     observer,
		Transcript:   transcript.New(),
	}
}

// BindSuite fixes the transcript hash algorithm and creates the key
// schedule: the transcript hash algorithm is fixed from the moment the
// server cipher suite is known and must match the cipher suite's hash.
// Safe to call once per connection (the HRR retry path calls Rollup
// instead of re-binding).
func (c *Context) BindSuite(suite constants.CipherSuite) error {
	c.Suite = suite
	hashSize := suite.HashOutputSize()
	if err := c.Transcript.StartHash(hashSize); err != nil {
		return err
	}
	ks, err := keyschedule.New(hashSize)
	if err != nil {
		return err
	}
	c.KeySchedule = ks
	return nil
}

// InstallWriteKey derives traffic keys from secret and installs them as
// the outbound epoch via the I/O harness: when an epoch changes, the old
// encrypter/decrypter is replaced atomically.
func (c *Context) InstallWriteKey(secret []byte) error {
	key, iv, err := c.trafficKeys(secret)
	if err != nil {
		return err
	}
	if err := c.IO.SetMessageEncrypter(key, iv, c.Suite); err != nil {
		return qerrors.NewCryptoError("InstallWriteKey", err)
	}
	c.IO.WeNowEncrypting()
	return nil
}

// InstallReadKey is InstallWriteKey's inbound counterpart.
func (c *Context) InstallReadKey(secret []byte) error {
	key, iv, err := c.trafficKeys(secret)
	if err != nil {
		return err
	}
	if err := c.IO.SetMessageDecrypter(key, iv, c.Suite); err != nil {
		return qerrors.NewCryptoError("InstallReadKey", err)
	}
	c.IO.PeerNowEncrypting()
	return nil
}

// InstallWriteKeyRaw/InstallReadKeyRaw install already-derived key/IV
// material directly, bypassing the HKDF-based trafficKeys helper: the TLS
// 1.2 legacy branch derives its key block via the RFC 5246 PRF
// (pkg/crypto.KeyBlockTLS12), not the TLS 1.3 key schedule, but both
// branches hand the result to the same IOHarness epoch-switch contract.
func (c *Context) InstallWriteKeyRaw(key, iv []byte) error {
	if err := c.IO.SetMessageEncrypter(key, iv, c.Suite); err != nil {
		return qerrors.NewCryptoError("InstallWriteKeyRaw", err)
	}
	c.IO.WeNowEncrypting()
	return nil
}

func (c *Context) InstallReadKeyRaw(key, iv []byte) error {
	if err := c.IO.SetMessageDecrypter(key, iv, c.Suite); err != nil {
		return qerrors.NewCryptoError("InstallReadKeyRaw", err)
	}
	c.IO.PeerNowEncrypting()
	return nil
}

func (c *Context) trafficKeys(secret []byte) (key, iv []byte, err error) {
	keyLen := constants.AESKeySize
	if c.Suite == constants.SuiteChaCha20Poly1305SHA256 {
		keyLen = constants.ChaCha20KeySize
	}
	return c.KeySchedule.TrafficKeys(secret, keyLen)
}

// SendAlert emits a fatal alert via the harness. Alerts are emitted
// immediately by the code that detected the fault, before the error is
// returned.
func (c *Context) SendAlert(alert constants.AlertDescription) {
	_ = c.IO.SendFatalAlert(alert)
}

// FailWith sends the alert an AlertError reports (if any) and returns the
// error unchanged, for states to tail-call on every validation failure.
func (c *Context) FailWith(err error) error {
	if ae, ok := err.(qerrors.AlertError); ok {
		c.SendAlert(ae.Alert())
	}
	return err
}
