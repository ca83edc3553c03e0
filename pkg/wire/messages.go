// messages.go defines the handshake message bodies the client sends and
// receives (RFC 5246, RFC 8446, plus the KEMTLS ClientKeyExchange
// overload) and their wire codec. A message here is the handshake-body
// encoding only - no record-layer framing - which is what the transcript
// accumulates.
package wire

import (
	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// Message is a decoded handshake message: its type and the still-opaque
// body bytes (as they must be fed to the transcript verbatim). Encode(Type,
// Body) rebuilds the header-plus-body bytes callers append to the
// transcript.
type Message struct {
	Type constants.HandshakeType
	Body []byte // the wire body, excluding the 4-byte handshake header
}

// Encode wraps a handshake body with its 1-byte type + 3-byte length
// header, producing the bytes the transcript hashes and the record layer
// frames.
func Encode(typ constants.HandshakeType, body []byte) []byte {
	w := NewWriter()
	w.PutUint8(uint8(typ))
	w.PutUint24(uint32(len(body)))
	w.PutBytes(body)
	return w.Bytes()
}

// Decode parses one handshake message header + body from buf, returning
// the message and the number of bytes consumed.
func Decode(buf []byte) (Message, int, error) {
	r := NewReader(buf)
	typ, err := r.Uint8()
	if err != nil {
		return Message{}, 0, qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err)
	}
	body, err := r.Vec24()
	if err != nil {
		return Message{}, 0, qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err)
	}
	return Message{Type: constants.HandshakeType(typ), Body: body}, 4 + len(body), nil
}

// ClientHelloBody is the decoded/encoded form of a ClientHello message.
type ClientHelloBody struct {
	LegacyVersion      constants.ProtocolVersion
	Random             [constants.RandomSize]byte
	SessionID          []byte
	CipherSuites       []constants.CipherSuite
	CompressionMethods []byte
	Extensions         ExtensionList
}

func (m *ClientHelloBody) Encode() []byte {
	w := NewWriter()
	w.PutUint16(uint16(m.LegacyVersion))
	w.PutBytes(m.Random[:])
	w.PutVec8(m.SessionID)
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, cs := range m.CipherSuites {
			w.PutUint16(uint16(cs))
		}
	})
	w.PutVec8(m.CompressionMethods)
	WriteExtensionList(w, m.Extensions)
	return w.Bytes()
}

func DecodeClientHello(body []byte) (*ClientHelloBody, error) {
	r := NewReader(body)
	m := &ClientHelloBody{}
	v, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	m.LegacyVersion = constants.ProtocolVersion(v)
	rnd, err := r.Bytes(constants.RandomSize)
	if err != nil {
		return nil, err
	}
	copy(m.Random[:], rnd)
	if m.SessionID, err = r.Vec8(); err != nil {
		return nil, err
	}
	suites, err := r.Sub16()
	if err != nil {
		return nil, err
	}
	for !suites.Done() {
		cs, err := suites.Uint16()
		if err != nil {
			return nil, err
		}
		m.CipherSuites = append(m.CipherSuites, constants.CipherSuite(cs))
	}
	if m.CompressionMethods, err = r.Vec8(); err != nil {
		return nil, err
	}
	if m.Extensions, err = ReadExtensionList(r); err != nil {
		return nil, err
	}
	return m, nil
}

// ServerHelloBody covers both ServerHello and HelloRetryRequest: the two
// share an identical wire shape in TLS 1.3, disambiguated only by the
// Random field matching the HRR SHA-256("HelloRetryRequest") sentinel
// (RFC 8446), which IsHelloRetryRequest checks.
type ServerHelloBody struct {
	LegacyVersion     constants.ProtocolVersion
	Random            [constants.RandomSize]byte
	SessionID         []byte
	CipherSuite       constants.CipherSuite
	CompressionMethod uint8
	Extensions        ExtensionList
}

var helloRetryRequestRandom = [constants.RandomSize]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

func (m *ServerHelloBody) IsHelloRetryRequest() bool {
	return m.Random == helloRetryRequestRandom
}

func (m *ServerHelloBody) Encode() []byte {
	w := NewWriter()
	w.PutUint16(uint16(m.LegacyVersion))
	w.PutBytes(m.Random[:])
	w.PutVec8(m.SessionID)
	w.PutUint16(uint16(m.CipherSuite))
	w.PutUint8(m.CompressionMethod)
	WriteExtensionList(w, m.Extensions)
	return w.Bytes()
}

func DecodeServerHello(body []byte) (*ServerHelloBody, error) {
	r := NewReader(body)
	m := &ServerHelloBody{}
	v, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	m.LegacyVersion = constants.ProtocolVersion(v)
	rnd, err := r.Bytes(constants.RandomSize)
	if err != nil {
		return nil, err
	}
	copy(m.Random[:], rnd)
	if m.SessionID, err = r.Vec8(); err != nil {
		return nil, err
	}
	cs, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	m.CipherSuite = constants.CipherSuite(cs)
	if m.CompressionMethod, err = r.Uint8(); err != nil {
		return nil, err
	}
	if m.Extensions, err = ReadExtensionList(r); err != nil {
		return nil, err
	}
	return m, nil
}

// EncryptedExtensionsBody carries the extensions only visible once the
// handshake traffic keys are installed (ALPN, QUIC params, early_data ack).
type EncryptedExtensionsBody struct {
	Extensions ExtensionList
}

func (m *EncryptedExtensionsBody) Encode() []byte {
	w := NewWriter()
	WriteExtensionList(w, m.Extensions)
	return w.Bytes()
}

func DecodeEncryptedExtensions(body []byte) (*EncryptedExtensionsBody, error) {
	r := NewReader(body)
	exts, err := ReadExtensionList(r)
	if err != nil {
		return nil, err
	}
	return &EncryptedExtensionsBody{Extensions: exts}, nil
}

// CertificateEntry is one entry in a TLS 1.3 Certificate message: the DER
// cert blob plus its own per-entry extensions (status_request for OCSP,
// signed_certificate_timestamp for SCTs).
type CertificateEntry struct {
	CertData   []byte
	Extensions ExtensionList
}

// CertificateBody is the TLS 1.3 Certificate message; CertificateRequestContext
// is empty during the initial handshake (non-empty only for post-handshake
// client auth, out of this client's scope - no renegotiation).
type CertificateBody struct {
	CertificateRequestContext []byte
	CertList                  []CertificateEntry
}

func (m *CertificateBody) Encode() []byte {
	w := NewWriter()
	w.PutVec8(m.CertificateRequestContext)
	w.WithLengthPrefixed24(func(w *Writer) {
		for _, e := range m.CertList {
			w.PutVec24(e.CertData)
			WriteExtensionList(w, e.Extensions)
		}
	})
	return w.Bytes()
}

func DecodeCertificate(body []byte) (*CertificateBody, error) {
	r := NewReader(body)
	m := &CertificateBody{}
	var err error
	if m.CertificateRequestContext, err = r.Vec8(); err != nil {
		return nil, err
	}
	list, err := r.Sub24()
	if err != nil {
		return nil, err
	}
	for !list.Done() {
		der, err := list.Vec24()
		if err != nil {
			return nil, err
		}
		exts, err := ReadExtensionList(list)
		if err != nil {
			return nil, err
		}
		m.CertList = append(m.CertList, CertificateEntry{CertData: der, Extensions: exts})
	}
	if len(m.CertList) == 0 {
		return nil, qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, qerrors.ErrShortRead)
	}
	return m, nil
}

// CertificateRequestBody is the TLS 1.3 CertificateRequest message.
type CertificateRequestBody struct {
	CertificateRequestContext []byte
	Extensions                ExtensionList
}

func (m *CertificateRequestBody) Encode() []byte {
	w := NewWriter()
	w.PutVec8(m.CertificateRequestContext)
	WriteExtensionList(w, m.Extensions)
	return w.Bytes()
}

func DecodeCertificateRequest(body []byte) (*CertificateRequestBody, error) {
	r := NewReader(body)
	m := &CertificateRequestBody{}
	var err error
	if m.CertificateRequestContext, err = r.Vec8(); err != nil {
		return nil, err
	}
	if m.Extensions, err = ReadExtensionList(r); err != nil {
		return nil, err
	}
	return m, nil
}

// CertificateVerifyBody carries the signature over the transcript.
// Not sent/expected on the KEMTLS implicit-authentication path.
type CertificateVerifyBody struct {
	Algorithm constants.SignatureScheme
	Signature []byte
}

func (m *CertificateVerifyBody) Encode() []byte {
	w := NewWriter()
	w.PutUint16(uint16(m.Algorithm))
	w.PutVec16(m.Signature)
	return w.Bytes()
}

func DecodeCertificateVerify(body []byte) (*CertificateVerifyBody, error) {
	r := NewReader(body)
	m := &CertificateVerifyBody{}
	alg, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	m.Algorithm = constants.SignatureScheme(alg)
	if m.Signature, err = r.Vec16(); err != nil {
		return nil, err
	}
	return m, nil
}

// FinishedBody carries the HMAC verify_data.
type FinishedBody struct {
	VerifyData []byte
}

func (m *FinishedBody) Encode() []byte { w := NewWriter(); w.PutBytes(m.VerifyData); return w.Bytes() }

func DecodeFinished(body []byte) (*FinishedBody, error) {
	return &FinishedBody{VerifyData: append([]byte(nil), body...)}, nil
}

// ClientKeyExchangeBody is overloaded by this client for two purposes:
// the TLS 1.2 legacy branch's ECDHE public value, and the KEMTLS
// implicit-authentication fork's KEM encapsulation ciphertext. Both are a
// single opaque vector; only the caller's interpretation differs.
type ClientKeyExchangeBody struct {
	Payload []byte
}

func (m *ClientKeyExchangeBody) Encode() []byte {
	w := NewWriter()
	w.PutVec24(m.Payload)
	return w.Bytes()
}

func DecodeClientKeyExchange(body []byte) (*ClientKeyExchangeBody, error) {
	r := NewReader(body)
	p, err := r.Vec24()
	if err != nil {
		return nil, err
	}
	return &ClientKeyExchangeBody{Payload: p}, nil
}

// ServerKeyExchangeBody (TLS 1.2 legacy branch only, paired with
// ServerKXDetails): the signed ECDHE params plus the signature over them.
type ServerKeyExchangeBody struct {
	Params    []byte // curve_type || named_curve || pubkey<8..2^8-1>
	Algorithm constants.SignatureScheme
	Signature []byte
}

func (m *ServerKeyExchangeBody) Encode() []byte {
	w := NewWriter()
	w.PutBytes(m.Params)
	w.PutUint16(uint16(m.Algorithm))
	w.PutVec16(m.Signature)
	return w.Bytes()
}

func DecodeServerKeyExchange(body []byte) (*ServerKeyExchangeBody, error) {
	r := NewReader(body)
	if err := discardECDHEParams(r); err != nil {
		return nil, err
	}
	paramsLen := r.pos
	alg, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	sig, err := r.Vec16()
	if err != nil {
		return nil, err
	}
	return &ServerKeyExchangeBody{
		Params:    append([]byte(nil), body[:paramsLen]...),
		Algorithm: constants.SignatureScheme(alg),
		Signature: sig,
	}, nil
}

// discardECDHEParams advances r past curve_type(1) || named_curve(2) ||
// pubkey<8..2^8-1>, the only ECDHE form this client's legacy branch offers.
func discardECDHEParams(r *Reader) error {
	if _, err := r.Uint8(); err != nil { // curve_type = named_curve
		return err
	}
	if _, err := r.Uint16(); err != nil { // named_curve
		return err
	}
	if _, err := r.Vec8(); err != nil { // pubkey
		return err
	}
	return nil
}

// CertificateBodyTLS12 is the TLS 1.2 Certificate message (RFC 5246): a
// flat cert_list<0..2^24-1> of ASN.1Cert<1..2^24-1>, with none of TLS
// 1.3's per-entry extensions.
type CertificateBodyTLS12 struct {
	CertList [][]byte
}

func (m *CertificateBodyTLS12) Encode() []byte {
	w := NewWriter()
	w.WithLengthPrefixed24(func(w *Writer) {
		for _, der := range m.CertList {
			w.PutVec24(der)
		}
	})
	return w.Bytes()
}

func DecodeCertificateTLS12(body []byte) (*CertificateBodyTLS12, error) {
	r := NewReader(body)
	list, err := r.Sub24()
	if err != nil {
		return nil, err
	}
	m := &CertificateBodyTLS12{}
	for !list.Done() {
		der, err := list.Vec24()
		if err != nil {
			return nil, err
		}
		m.CertList = append(m.CertList, der)
	}
	return m, nil
}

// CertificateRequestBodyTLS12 is the TLS 1.2 CertificateRequest message
// (RFC 5246): certificate_types<1..2^8-1>,
// supported_signature_algorithms<2..2^16-2>, certificate_authorities
// (a vector of DistinguishedName<1..2^16-1>).
type CertificateRequestBodyTLS12 struct {
	CertificateTypes []byte
	SigSchemes       []constants.SignatureScheme
	CANames          [][]byte
}

func (m *CertificateRequestBodyTLS12) Encode() []byte {
	w := NewWriter()
	w.PutVec8(m.CertificateTypes)
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, s := range m.SigSchemes {
			w.PutUint16(uint16(s))
		}
	})
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, name := range m.CANames {
			w.PutVec16(name)
		}
	})
	return w.Bytes()
}

func DecodeCertificateRequestTLS12(body []byte) (*CertificateRequestBodyTLS12, error) {
	r := NewReader(body)
	m := &CertificateRequestBodyTLS12{}
	var err error
	if m.CertificateTypes, err = r.Vec8(); err != nil {
		return nil, err
	}
	schemes, err := r.Sub16()
	if err != nil {
		return nil, err
	}
	for !schemes.Done() {
		s, err := schemes.Uint16()
		if err != nil {
			return nil, err
		}
		m.SigSchemes = append(m.SigSchemes, constants.SignatureScheme(s))
	}
	names, err := r.Sub16()
	if err != nil {
		return nil, err
	}
	for !names.Done() {
		name, err := names.Vec16()
		if err != nil {
			return nil, err
		}
		m.CANames = append(m.CANames, name)
	}
	return m, nil
}

// ServerHelloDoneBody (RFC 5246) carries no content; it only marks
// the end of the server's first flight in the TLS 1.2 legacy branch.
type ServerHelloDoneBody struct{}

func (ServerHelloDoneBody) Encode() []byte { return nil }

func DecodeServerHelloDone(body []byte) (*ServerHelloDoneBody, error) {
	if len(body) != 0 {
		return nil, qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, qerrors.ErrInvalidTicket)
	}
	return &ServerHelloDoneBody{}, nil
}

// ClientKeyExchangeBodyTLS12 carries the client's ECDHE public value (RFC
// 5246's ClientECDiffieHellmanPublic), an opaque vec8 rather than the
// KEMTLS branch's vec24 ClientKeyExchangeBody.
type ClientKeyExchangeBodyTLS12 struct {
	Payload []byte
}

func (m *ClientKeyExchangeBodyTLS12) Encode() []byte {
	w := NewWriter()
	w.PutVec8(m.Payload)
	return w.Bytes()
}

// NewSessionTicketBodyTLS12 is RFC 5077's NewSessionTicket message: a
// lifetime hint plus the opaque ticket, no extensions list (that is a TLS
// 1.3 addition handled by NewSessionTicketBody instead).
type NewSessionTicketBodyTLS12 struct {
	TicketLifetimeHint uint32
	Ticket             []byte
}

func DecodeNewSessionTicketTLS12(body []byte) (*NewSessionTicketBodyTLS12, error) {
	r := NewReader(body)
	m := &NewSessionTicketBodyTLS12{}
	var err error
	if m.TicketLifetimeHint, err = r.Uint32(); err != nil {
		return nil, err
	}
	if m.Ticket, err = r.Vec16(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewSessionTicketBody is the TLS 1.3 post-handshake ticket message, sent
// only once the client has reached the application-traffic state.
type NewSessionTicketBody struct {
	TicketLifetime uint32
	TicketAgeAdd   uint32
	TicketNonce    []byte
	Ticket         []byte
	Extensions     ExtensionList
}

func (m *NewSessionTicketBody) Encode() []byte {
	w := NewWriter()
	w.PutUint32(m.TicketLifetime)
	w.PutUint32(m.TicketAgeAdd)
	w.PutVec8(m.TicketNonce)
	w.PutVec16(m.Ticket)
	WriteExtensionList(w, m.Extensions)
	return w.Bytes()
}

func DecodeNewSessionTicket(body []byte) (*NewSessionTicketBody, error) {
	r := NewReader(body)
	m := &NewSessionTicketBody{}
	var err error
	if m.TicketLifetime, err = r.Uint32(); err != nil {
		return nil, err
	}
	if m.TicketAgeAdd, err = r.Uint32(); err != nil {
		return nil, err
	}
	if m.TicketNonce, err = r.Vec8(); err != nil {
		return nil, err
	}
	if m.Ticket, err = r.Vec16(); err != nil {
		return nil, err
	}
	if m.Extensions, err = ReadExtensionList(r); err != nil {
		return nil, err
	}
	return m, nil
}

// KeyUpdateRequest values (RFC 8446).
type KeyUpdateRequest uint8

const (
	KeyUpdateNotRequested KeyUpdateRequest = 0
	KeyUpdateRequested    KeyUpdateRequest = 1
)

type KeyUpdateBody struct {
	RequestUpdate KeyUpdateRequest
}

func (m *KeyUpdateBody) Encode() []byte {
	w := NewWriter()
	w.PutUint8(uint8(m.RequestUpdate))
	return w.Bytes()
}

func DecodeKeyUpdate(body []byte) (*KeyUpdateBody, error) {
	r := NewReader(body)
	v, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return &KeyUpdateBody{RequestUpdate: KeyUpdateRequest(v)}, nil
}
