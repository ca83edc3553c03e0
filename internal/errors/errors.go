// Package errors defines the closed error taxonomy the handshake engine
// returns, plus the sentinel errors used by the crypto and session
// packages. Each taxonomy error reports the TLS alert it maps to; the
// component that detects the fault sends that alert before returning the
// error — it is never inferred later by a caller.
package errors

import (
	"errors"
	"fmt"

	"github.com/kemtls-go/kemtls-client/internal/constants"
)

// Sentinel errors for cryptographic primitives (pkg/crypto, pkg/keyschedule).
var (
	ErrInvalidKeySize      = errors.New("crypto: invalid key size")
	ErrInvalidCiphertext   = errors.New("crypto: invalid ciphertext")
	ErrDecapsulationFailed = errors.New("crypto: decapsulation failed")
	ErrEncapsulationFailed = errors.New("crypto: encapsulation failed")
	ErrInvalidPublicKey    = errors.New("crypto: invalid public key")
	ErrInvalidPrivateKey   = errors.New("crypto: invalid private key")
	ErrUnknownGroup        = errors.New("crypto: unknown named group")
)

// Sentinel errors for AEAD operations (pkg/crypto/aead.go).
var (
	ErrAuthenticationFailed = errors.New("aead: authentication failed")
	ErrInvalidNonce         = errors.New("aead: invalid nonce size")
	ErrCiphertextTooShort   = errors.New("aead: ciphertext too short")
	ErrNonceExhausted       = errors.New("aead: nonce space exhausted, epoch rekey required")
)

// Sentinel errors for the session cache adapter (pkg/session).
var (
	ErrInvalidTicket = errors.New("session: invalid or malformed ticket")
	ErrExpiredTicket = errors.New("session: ticket expired")
	ErrNoSuchSession = errors.New("session: no cached session for key")
)

// ErrShortRead is returned by pkg/wire's Reader when a message body is
// truncated relative to the field being decoded. Handlers wrap it in
// CorruptMessagePayload with the record's content type.
var ErrShortRead = errors.New("wire: short read decoding handshake message")

// AlertError is implemented by every taxonomy error: it reports the fatal
// alert the detecting component must send.
type AlertError interface {
	error
	Alert() constants.AlertDescription
}

// PeerMisbehavedError: a protocol violation by the peer.
type PeerMisbehavedError struct {
	Reason string
	alert  constants.AlertDescription
}

func NewPeerMisbehaved(reason string) *PeerMisbehavedError {
	return &PeerMisbehavedError{Reason: reason, alert: constants.AlertIllegalParameter}
}

func NewPeerMisbehavedWithAlert(reason string, alert constants.AlertDescription) *PeerMisbehavedError {
	return &PeerMisbehavedError{Reason: reason, alert: alert}
}

func (e *PeerMisbehavedError) Error() string                     { return "peer misbehaved: " + e.Reason }
func (e *PeerMisbehavedError) Alert() constants.AlertDescription { return e.alert }

// PeerIncompatibleError: no intersection of supported features.
type PeerIncompatibleError struct {
	Reason string
}

func NewPeerIncompatible(reason string) *PeerIncompatibleError {
	return &PeerIncompatibleError{Reason: reason}
}

func (e *PeerIncompatibleError) Error() string { return "peer incompatible: " + e.Reason }
func (e *PeerIncompatibleError) Alert() constants.AlertDescription {
	return constants.AlertHandshakeFailure
}

// CorruptMessagePayload: wire decoding failure inside an expected message.
type CorruptMessagePayload struct {
	ContentType constants.ContentType
	Err         error
}

func NewCorruptMessagePayload(ct constants.ContentType, err error) *CorruptMessagePayload {
	return &CorruptMessagePayload{ContentType: ct, Err: err}
}

func (e *CorruptMessagePayload) Error() string {
	return fmt.Sprintf("corrupt message payload (content type %d): %v", e.ContentType, e.Err)
}
func (e *CorruptMessagePayload) Unwrap() error { return e.Err }
func (e *CorruptMessagePayload) Alert() constants.AlertDescription {
	return constants.AlertDecodeError
}

// InappropriateMessage: wrong content/handshake type for the current state.
type InappropriateMessage struct {
	Expected []constants.HandshakeType
	Got      constants.HandshakeType
}

func NewInappropriateMessage(expected []constants.HandshakeType, got constants.HandshakeType) *InappropriateMessage {
	return &InappropriateMessage{Expected: expected, Got: got}
}

func (e *InappropriateMessage) Error() string {
	return fmt.Sprintf("inappropriate handshake message: expected one of %v, got %d", e.Expected, e.Got)
}
func (e *InappropriateMessage) Alert() constants.AlertDescription {
	return constants.AlertUnexpectedMessage
}

// WebPKIError: certificate chain or DER failure from the CertVerifier
// collaborator.
type WebPKIError struct {
	Inner error
	alert constants.AlertDescription
}

func NewWebPKIError(inner error) *WebPKIError {
	return &WebPKIError{Inner: inner, alert: constants.AlertBadCertificate}
}

func NewWebPKIErrorWithAlert(inner error, alert constants.AlertDescription) *WebPKIError {
	return &WebPKIError{Inner: inner, alert: alert}
}

func (e *WebPKIError) Error() string                     { return "webpki: " + e.Inner.Error() }
func (e *WebPKIError) Unwrap() error                      { return e.Inner }
func (e *WebPKIError) Alert() constants.AlertDescription { return e.alert }

// NoCertificatesPresented: an empty chain where one was required.
type NoCertificatesPresented struct{}

func (e *NoCertificatesPresented) Error() string { return "no certificates were presented" }
func (e *NoCertificatesPresented) Alert() constants.AlertDescription {
	return constants.AlertHandshakeFailure
}

// DecryptError: Finished MAC mismatch (or any AEAD auth failure at the
// handshake layer).
type DecryptError struct {
	Context string
}

func NewDecryptError(context string) *DecryptError {
	return &DecryptError{Context: context}
}

func (e *DecryptError) Error() string { return "decrypt error: " + e.Context }
func (e *DecryptError) Alert() constants.AlertDescription {
	return constants.AlertDecryptError
}

// CryptoError wraps a low-level cryptographic failure with the operation
// that produced it (pkg/crypto, pkg/keyschedule).
type CryptoError struct {
	Op  string
	Err error
}

func NewCryptoError(op string, err error) *CryptoError { return &CryptoError{Op: op, Err: err} }
func (e *CryptoError) Error() string                   { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error                   { return e.Err }

// Is/As re-export the standard library helpers so callers only need to
// import this package.
func Is(err, target error) bool             { return errors.Is(err, target) }
func As(err error, target interface{}) bool { return errors.As(err, target) }
