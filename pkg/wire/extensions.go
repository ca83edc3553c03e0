// extensions.go encodes and decodes the ClientHello/ServerHello/
// EncryptedExtensions/CertificateEntry extension set this client
// negotiates. Each extension is a (type, opaque body) pair; this file
// only handles the bodies this client actually emits or must parse,
// leaving anything else (cert contents, ALPN registry validation, etc.)
// to external collaborators.
package wire

import (
	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// Extension is one raw (type, body) pair as it appears on the wire, before
// any type-specific decoding. The handshake states decode the bodies they
// expect and reject anything left unrecognized per the "no unsolicited
// extension" invariant.
type Extension struct {
	Type constants.ExtensionType
	Body []byte
}

// ExtensionList is the common shape of an extensions<0..2^16-1> vector.
type ExtensionList []Extension

func (l ExtensionList) Get(t constants.ExtensionType) (Extension, bool) {
	for _, e := range l {
		if e.Type == t {
			return e, true
		}
	}
	return Extension{}, false
}

// WriteExtensionList writes exts as a length-prefixed vector of
// (type, length, body) entries.
func WriteExtensionList(w *Writer, exts ExtensionList) {
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, e := range exts {
			w.PutUint16(uint16(e.Type))
			w.PutVec16(e.Body)
		}
	})
}

// ReadExtensionList reads an extensions<0..2^16-1> vector and rejects a
// duplicate extension type outright: every state that calls this treats
// duplicates as PeerMisbehavedError, so the codec enforces it once rather
// than in each caller.
func ReadExtensionList(r *Reader) (ExtensionList, error) {
	sub, err := r.Sub16()
	if err != nil {
		return nil, err
	}
	var out ExtensionList
	seen := make(map[constants.ExtensionType]struct{})
	for !sub.Done() {
		typ, err := sub.Uint16()
		if err != nil {
			return nil, err
		}
		body, err := sub.Vec16()
		if err != nil {
			return nil, err
		}
		et := constants.ExtensionType(typ)
		if _, dup := seen[et]; dup {
			return nil, qerrors.NewPeerMisbehavedWithAlert("duplicate extension in handshake message", constants.AlertDecodeError)
		}
		seen[et] = struct{}{}
		out = append(out, Extension{Type: et, Body: body})
	}
	return out, nil
}

// KeyShareEntry is one offer/reply in the key_share extension.
type KeyShareEntry struct {
	Group constants.NamedGroup
	Data  []byte
}

func EncodeKeyShareClientHello(entries []KeyShareEntry) []byte {
	w := NewWriter()
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, e := range entries {
			w.PutUint16(uint16(e.Group))
			w.PutVec16(e.Data)
		}
	})
	return w.Bytes()
}

func DecodeKeyShareClientHello(body []byte) ([]KeyShareEntry, error) {
	r := NewReader(body)
	sub, err := r.Sub16()
	if err != nil {
		return nil, err
	}
	var out []KeyShareEntry
	for !sub.Done() {
		g, err := sub.Uint16()
		if err != nil {
			return nil, err
		}
		data, err := sub.Vec16()
		if err != nil {
			return nil, err
		}
		out = append(out, KeyShareEntry{Group: constants.NamedGroup(g), Data: data})
	}
	return out, nil
}

// EncodeKeyShareServerHello/DecodeKeyShareServerHello handle the singleton
// form the server sends in ServerHello (one entry, no length-prefixed
// list wrapper) and in HelloRetryRequest (bare NamedGroup, no key data).
func EncodeKeyShareServerHello(e KeyShareEntry) []byte {
	w := NewWriter()
	w.PutUint16(uint16(e.Group))
	w.PutVec16(e.Data)
	return w.Bytes()
}

func DecodeKeyShareServerHello(body []byte) (KeyShareEntry, error) {
	r := NewReader(body)
	g, err := r.Uint16()
	if err != nil {
		return KeyShareEntry{}, err
	}
	data, err := r.Vec16()
	if err != nil {
		return KeyShareEntry{}, err
	}
	return KeyShareEntry{Group: constants.NamedGroup(g), Data: data}, nil
}

func EncodeKeyShareHRR(group constants.NamedGroup) []byte {
	w := NewWriter()
	w.PutUint16(uint16(group))
	return w.Bytes()
}

func DecodeKeyShareHRR(body []byte) (constants.NamedGroup, error) {
	r := NewReader(body)
	g, err := r.Uint16()
	if err != nil {
		return 0, err
	}
	return constants.NamedGroup(g), nil
}

// EncodeSupportedVersions/DecodeSupportedVersions handle both directions:
// the client sends a list, the server echoes a single selected version.
func EncodeSupportedVersionsClient(versions []constants.ProtocolVersion) []byte {
	w := NewWriter()
	w.PutUint8(uint8(len(versions) * 2))
	for _, v := range versions {
		w.PutUint16(uint16(v))
	}
	return w.Bytes()
}

func DecodeSupportedVersionsClient(body []byte) ([]constants.ProtocolVersion, error) {
	r := NewReader(body)
	raw, err := r.Vec8()
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, qerrors.ErrShortRead)
	}
	out := make([]constants.ProtocolVersion, 0, len(raw)/2)
	for i := 0; i < len(raw); i += 2 {
		out = append(out, constants.ProtocolVersion(uint16(raw[i])<<8|uint16(raw[i+1])))
	}
	return out, nil
}

func EncodeSupportedVersionsServer(v constants.ProtocolVersion) []byte {
	w := NewWriter()
	w.PutUint16(uint16(v))
	return w.Bytes()
}

func DecodeSupportedVersionsServer(body []byte) (constants.ProtocolVersion, error) {
	r := NewReader(body)
	v, err := r.Uint16()
	return constants.ProtocolVersion(v), err
}

// EncodeServerName/body for the single-name SNI form this client sends.
func EncodeServerName(dnsName string) []byte {
	w := NewWriter()
	w.WithLengthPrefixed16(func(w *Writer) {
		w.PutUint8(0) // host_name
		w.PutVec16([]byte(dnsName))
	})
	return w.Bytes()
}

// EncodeSupportedGroups/EncodeSignatureAlgorithms encode a uint16 list
// extension, the shape shared by supported_groups and signature_algorithms.
func EncodeUint16List(values []uint16) []byte {
	w := NewWriter()
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, v := range values {
			w.PutUint16(v)
		}
	})
	return w.Bytes()
}

func DecodeUint16List(body []byte) ([]uint16, error) {
	r := NewReader(body)
	sub, err := r.Sub16()
	if err != nil {
		return nil, err
	}
	var out []uint16
	for !sub.Done() {
		v, err := sub.Uint16()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeALPN/DecodeALPN handle the application_layer_protocol_negotiation
// protocol name list.
func EncodeALPN(protocols []string) []byte {
	w := NewWriter()
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, p := range protocols {
			w.PutVec8([]byte(p))
		}
	})
	return w.Bytes()
}

func DecodeALPN(body []byte) ([]string, error) {
	r := NewReader(body)
	sub, err := r.Sub16()
	if err != nil {
		return nil, err
	}
	var out []string
	for !sub.Done() {
		p, err := sub.Vec8()
		if err != nil {
			return nil, err
		}
		out = append(out, string(p))
	}
	return out, nil
}

// EncodePSKKeyExchangeModes/DecodePSKKeyExchangeModes.
func EncodePSKKeyExchangeModes(modes []constants.PSKKeyExchangeMode) []byte {
	w := NewWriter()
	w.PutUint8(uint8(len(modes)))
	for _, m := range modes {
		w.PutUint8(uint8(m))
	}
	return w.Bytes()
}

func DecodePSKKeyExchangeModes(body []byte) ([]constants.PSKKeyExchangeMode, error) {
	r := NewReader(body)
	raw, err := r.Vec8()
	if err != nil {
		return nil, err
	}
	out := make([]constants.PSKKeyExchangeMode, len(raw))
	for i, b := range raw {
		out[i] = constants.PSKKeyExchangeMode(b)
	}
	return out, nil
}

// PSKIdentity is one entry offered in the pre_shared_key extension.
type PSKIdentity struct {
	Identity            []byte
	ObfuscatedTicketAge uint32
}

// PreSharedKeyClientHello is the full pre_shared_key extension body the
// client sends: one or more identities followed by one binder per
// identity, in the same order (RFC 8446).
type PreSharedKeyClientHello struct {
	Identities []PSKIdentity
	Binders    [][]byte
}

// EncodePreSharedKeyClientHello returns the extension body with binders
// already filled (possibly all-zero placeholders - the caller patches
// them in place afterward via the returned binder offsets, since the
// binders length prefix, not its contents, affects the transcript hash
// used to sign them).
func EncodePreSharedKeyClientHello(psk PreSharedKeyClientHello) (body []byte, binderListOffset int) {
	w := NewWriter()
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, id := range psk.Identities {
			w.PutVec16(id.Identity)
			w.PutUint32(id.ObfuscatedTicketAge)
		}
	})
	binderListOffset = w.Len()
	w.WithLengthPrefixed16(func(w *Writer) {
		for _, b := range psk.Binders {
			w.PutVec8(b)
		}
	})
	return w.Bytes(), binderListOffset
}

func DecodePreSharedKeyServerHello(body []byte) (selectedIdentity uint16, err error) {
	r := NewReader(body)
	return r.Uint16()
}

// EncodeEarlyData/DecodeEarlyData: the extension carries no content in
// ClientHello/EncryptedExtensions, only in NewSessionTicket, where it
// carries max_early_data_size.
func EncodeEarlyDataTicket(maxSize uint32) []byte {
	w := NewWriter()
	w.PutUint32(maxSize)
	return w.Bytes()
}

func DecodeEarlyDataTicket(body []byte) (uint32, error) {
	r := NewReader(body)
	return r.Uint32()
}

// EncodeCookie/DecodeCookie round-trip the HelloRetryRequest cookie
// opaquely; the client never inspects its contents, only echoes it back.
func EncodeCookie(cookie []byte) []byte {
	w := NewWriter()
	w.PutVec16(cookie)
	return w.Bytes()
}

func DecodeCookie(body []byte) ([]byte, error) {
	r := NewReader(body)
	return r.Vec16()
}
