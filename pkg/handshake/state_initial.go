// state_initial.go implements the Initial state: build and send
// ClientHello, with every optional extension the config enables, session
// resumption when the cache has one, and the PSK binder patch-up RFC 8446
// requires.
package handshake

import (
	"time"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
	"github.com/kemtls-go/kemtls-client/pkg/crypto"
	"github.com/kemtls-go/kemtls-client/pkg/keyschedule"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// InitialState builds and sends the first ClientHello for a connection to
// dnsName; the retried ClientHello after an HRR is built by
// ExpectServerHelloOrHRRState.
type InitialState struct {
	DNSName string
}

// NewInitialState constructs the first state a Dispatcher is built with.
func NewInitialState(dnsName string) *InitialState {
	return &InitialState{DNSName: dnsName}
}

// ExpectedMessages is empty: Initial never receives a message, it only
// emits one. Advance calls into it only through EnterInitial below, never
// through Dispatcher.Advance.
func (s *InitialState) ExpectedMessages() []constants.HandshakeType { return nil }

func (s *InitialState) Handle(cx *Context, msg wire.Message) (State, error) {
	panic("handshake: InitialState.Handle invoked; use EnterInitial to drive the Initial state")
}

// EnterInitial runs the Initial state's one action: build ClientHello,
// offer key shares, optionally attach a PSK, send it, and return the
// successor state.
func EnterInitial(cx *Context, dnsName string) (State, error) {
	cx.Details.DNSName = dnsName
	cx.Details.StartTime = time.Now()

	var random [constants.RandomSize]byte
	if err := crypto.SecureRandom(random[:]); err != nil {
		return nil, cx.FailWith(err)
	}
	cx.Details.ClientRandom = random

	sessionID, err := crypto.SecureRandomBytes(constants.MaxSessionIDSize)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	cx.Details.SessionID = sessionID

	groups := offeredGroups(cx)
	shares := make([]wire.KeyShareEntry, 0, len(groups))
	for _, g := range groups {
		ks, err := crypto.GenerateKeyShare(g)
		if err != nil {
			return nil, cx.FailWith(err)
		}
		cx.ClientCH.OfferedKeyShares = append(cx.ClientCH.OfferedKeyShares, ks)
		shares = append(shares, wire.KeyShareEntry{Group: g, Data: ks.Public()})
	}

	suites := offeredCipherSuites(cx)
	compressionMethods := []byte{0}

	// chPrefixLen is the byte length of everything Encode writes before the
	// extensions list's own outer length prefix: version(2) + random(32) +
	// session_id vec8 + cipher_suites length-prefixed16 + compression
	// vec8. buildClientExtensions needs it to compute the pre_shared_key
	// extension's absolute offset within the encoded body as it builds the
	// list, since that offset no longer exists once Encode concatenates
	// everything into one byte slice.
	chPrefixLen := 2 + constants.RandomSize + (1 + len(sessionID)) + (2 + 2*len(suites)) + (1 + len(compressionMethods))

	exts, pskBinderPrep := buildClientExtensions(cx, shares, chPrefixLen, nil, true)

	ch := &wire.ClientHelloBody{
		LegacyVersion:      constants.VersionTLS12,
		Random:             random,
		SessionID:          sessionID,
		CipherSuites:       suites,
		CompressionMethods: compressionMethods,
		Extensions:         exts,
	}

	body := ch.Encode()
	if pskBinderPrep != nil {
		if err := patchPSKBinders(nil, body, pskBinderPrep); err != nil {
			return nil, cx.FailWith(err)
		}
	}

	wireMsg := wire.Encode(constants.HandshakeTypeClientHello, body)
	cx.Transcript.AddMessage(wireMsg)
	for _, et := range exts {
		cx.ClientCH.SentExtensions = append(cx.ClientCH.SentExtensions, et.Type)
	}

	if err := cx.IO.SendMessage(constants.ContentTypeHandshake, wireMsg, false); err != nil {
		return nil, cx.FailWith(err)
	}

	if cx.Details.EarlyDataOffered {
		// Derive client_early_traffic_secret and install it as the write
		// epoch before anything else goes out, so early application data
		// sent ahead of ServerHello is protected under it.
		if err := installEarlyTrafficKey(cx, pskBinderPrep, wireMsg); err != nil {
			return nil, cx.FailWith(err)
		}

		// A TLS 1.3 connection that offers early data sends a fake
		// ChangeCipherSpec record for middlebox compatibility before the
		// early application data, and it is never part of the transcript.
		if err := cx.IO.SendMessage(constants.ContentTypeChangeCipherSpec, []byte{1}, false); err != nil {
			return nil, cx.FailWith(err)
		}
		cx.Details.SentTLS13FakeCCS = true
	}

	return &ExpectServerHelloOrHRRState{}, nil
}

// offeredGroups picks the groups Initial generates key shares for: the
// cached key-exchange hint if one exists (so the client skips straight to
// the server's previously negotiated group instead of sending its full
// default offer), else cfg.SupportedGroups.
func offeredGroups(cx *Context) []constants.NamedGroup {
	if cx.SessionCache != nil {
		if hint, ok := cx.SessionCache.GetKxHint(cx.Details.DNSName); ok {
			return []constants.NamedGroup{hint.Group}
		}
	}
	if len(cx.Config.SupportedGroups) > 0 {
		return cx.Config.SupportedGroups
	}
	return []constants.NamedGroup{cx.Config.DefaultGroup}
}

func offeredCipherSuites(cx *Context) []constants.CipherSuite {
	var suites []constants.CipherSuite
	for _, v := range cx.Config.SupportedVersions {
		if v == constants.VersionTLS13 {
			suites = append(suites, constants.SuiteAES128GCMSHA256, constants.SuiteAES256GCMSHA384, constants.SuiteChaCha20Poly1305SHA256)
		}
		if v == constants.VersionTLS12 {
			suites = append(suites, constants.SuiteECDHERSAWithAES128GCMSHA256, constants.SuiteECDHERSAWithAES256GCMSHA384)
		}
	}
	return suites
}

// pskBinderPrep carries what patchPSKBinders needs to fill in the real
// binder value after ch.Encode() has produced the full wire body with a
// placeholder all-zero binder. truncateOffset is the absolute byte offset,
// within the ClientHello body (not the wire message), of the position
// right after PreSharedKeyExtension.identities and before the binders
// list - the partial-ClientHello boundary RFC 8446's binder computation
// signs over.
// binderValueOffset is the absolute byte offset of the binder's raw bytes,
// for patching in place once computed.
type pskBinderPrep struct {
	truncateOffset    int
	binderValueOffset int
	binderLen         int
	hashSize          int
	earlySecret       []byte
}

// buildClientExtensions assembles the ClientHello extension list. cookie is
// nil on the initial ClientHello and the server's echoed cookie value on a
// HelloRetryRequest retry; allowEarlyData is false on retry, since
// HelloRetryRequest handling always abandons any early data the first
// ClientHello offered.
func buildClientExtensions(cx *Context, shares []wire.KeyShareEntry, chPrefixLen int, cookie []byte, allowEarlyData bool) (wire.ExtensionList, *pskBinderPrep) {
	var exts wire.ExtensionList
	// runningOffset tracks the absolute byte offset, within the eventual
	// ClientHello body, of the next extension to be appended: the prefix,
	// plus the extensions list's own 2-byte outer length, plus a
	// (type(2)+len(2)+body) frame for every extension appended so far.
	runningOffset := chPrefixLen + 2

	appendExt := func(e wire.Extension) {
		exts = append(exts, e)
		runningOffset += 4 + len(e.Body)
	}

	if cx.Config.EnableSNI && cx.Details.DNSName != "" {
		appendExt(wire.Extension{Type: constants.ExtServerName, Body: wire.EncodeServerName(cx.Details.DNSName)})
	}

	appendExt(wire.Extension{
		Type: constants.ExtSupportedVersions,
		Body: wire.EncodeSupportedVersionsClient(cx.Config.SupportedVersions),
	})

	groups := make([]uint16, 0, len(cx.Config.SupportedGroups))
	for _, g := range cx.Config.SupportedGroups {
		groups = append(groups, uint16(g))
	}
	appendExt(wire.Extension{Type: constants.ExtSupportedGroups, Body: wire.EncodeUint16List(groups)})

	schemes := make([]uint16, 0, len(cx.Config.SignatureSchemes))
	for _, sch := range cx.Config.SignatureSchemes {
		schemes = append(schemes, uint16(sch))
	}
	appendExt(wire.Extension{Type: constants.ExtSignatureAlgorithms, Body: wire.EncodeUint16List(schemes)})

	appendExt(wire.Extension{Type: constants.ExtKeyShare, Body: wire.EncodeKeyShareClientHello(shares)})

	if cookie != nil {
		appendExt(wire.Extension{Type: constants.ExtCookie, Body: wire.EncodeCookie(cookie)})
	}

	if cx.Config.EnableOCSP {
		appendExt(wire.Extension{Type: constants.ExtStatusRequest, Body: []byte{0x01, 0, 0, 0, 0}})
	}
	if cx.Config.EnableSCT {
		appendExt(wire.Extension{Type: constants.ExtSignedCertTimestamp, Body: nil})
	}
	if cx.Config.EnableCertCompression {
		appendExt(wire.Extension{Type: constants.ExtCertificateCompression, Body: []byte{1, 0}})
	}
	if len(cx.Config.ALPNProtocols) > 0 {
		appendExt(wire.Extension{Type: constants.ExtALPN, Body: wire.EncodeALPN(cx.Config.ALPNProtocols)})
	}
	if cx.Config.QUICTransportParams != nil {
		appendExt(wire.Extension{Type: constants.ExtQUICTransportParameters, Body: cx.Config.QUICTransportParams})
	}
	for _, extra := range cx.Config.ExtraExtensions {
		appendExt(wire.Extension{Type: extra.Type, Body: extra.Body})
	}

	var prep *pskBinderPrep
	if cx.SessionCache != nil {
		if sess, ok := cx.SessionCache.GetSession(cx.Details.DNSName); ok {
			cx.Details.ResumingSession = sess
			cx.Details.UsingEMS = sess.UsingEMS

			appendExt(wire.Extension{
				Type: constants.ExtPSKKeyExchangeModes,
				Body: wire.EncodePSKKeyExchangeModes([]constants.PSKKeyExchangeMode{constants.PSKModePSKWithDHE}),
			})

			if allowEarlyData && cx.Config.EnableEarlyData && sess.MaxEarlyDataSize > 0 {
				appendExt(wire.Extension{Type: constants.ExtEarlyData, Body: nil})
				cx.Details.EarlyDataOffered = true
			}

			// pre_shared_key MUST be the last extension (RFC 8446).
			// runningOffset at this point is the absolute offset of this
			// extension's own type field.
			pskExtOffset := runningOffset
			hashSize := sess.CipherSuite.HashOutputSize()
			psk := wire.PreSharedKeyClientHello{
				Identities: []wire.PSKIdentity{{
					Identity:            sess.Ticket,
					ObfuscatedTicketAge: sess.ObfuscatedTicketAge(time.Now()),
				}},
				Binders: [][]byte{make([]byte, hashSize)},
			}
			extBody, binderListOffset := wire.EncodePreSharedKeyClientHello(psk)
			extBodyOffset := pskExtOffset + 4
			binderListAbsOffset := extBodyOffset + binderListOffset
			prep = &pskBinderPrep{
				truncateOffset:    binderListAbsOffset,
				binderValueOffset: binderListAbsOffset + 2 /*binders vec16 len*/ + 1 /*this binder's vec8 len*/,
				binderLen:         hashSize,
				hashSize:          hashSize,
				earlySecret:       sess.MasterSecret,
			}
			appendExt(wire.Extension{Type: constants.ExtPreSharedKey, Body: extBody})
		}
	}

	return exts, prep
}

// patchPSKBinders fills in the real PSK binder value after the full
// ClientHello body (with a zeroed binder placeholder) has been encoded,
// per RFC 8446: the binder is an HMAC, keyed by a binder key derived from
// the resumed session's own Early Secret, over the transcript hash of the
// ClientHello truncated right
// after PreSharedKeyExtension.identities. That hash algorithm is the
// resumed session's cipher suite's, which may differ from whatever suite
// this connection eventually negotiates - so this runs against a throwaway
// schedule seeded straight from the PSK, never cx.KeySchedule.
func patchPSKBinders(transcriptPrefix, body []byte, prep *pskBinderPrep) error {
	sched, err := keyschedule.NewFromPSK(prep.hashSize, prep.earlySecret)
	if err != nil {
		return err
	}

	binderKey, err := sched.BinderKey()
	if err != nil {
		return err
	}

	// The handshake header (type(1)+length(3)) precedes the body in the
	// bytes this binder actually signs over, and on a post-HRR retry the
	// rolled-up CH1/HRR transcript precedes the partial CH2 itself.
	wireMsg := wire.Encode(constants.HandshakeTypeClientHello, body)
	truncateAt := 4 + prep.truncateOffset
	signed := append(append([]byte{}, transcriptPrefix...), wireMsg[:truncateAt]...)
	partialHash, err := sched.HashBytes(signed)
	if err != nil {
		return err
	}

	binder, err := sched.SignVerifyData(binderKey, partialHash)
	if err != nil {
		return err
	}

	copy(body[prep.binderValueOffset:prep.binderValueOffset+prep.binderLen], binder)
	return nil
}

// installEarlyTrafficKey derives client_early_traffic_secret from the
// resumed PSK's Early Secret and installs it as the write epoch. It runs
// against the same kind of throwaway PSK-seeded schedule patchPSKBinders
// uses, under the resumed session's own cipher suite: the
// real cx.KeySchedule/cx.Suite aren't bound until ServerHello, but the
// early-data epoch has to exist before then.
func installEarlyTrafficKey(cx *Context, prep *pskBinderPrep, clientHelloWire []byte) error {
	sched, err := keyschedule.NewFromPSK(prep.hashSize, prep.earlySecret)
	if err != nil {
		return err
	}
	chHash, err := sched.HashBytes(clientHelloWire)
	if err != nil {
		return err
	}
	secret, err := sched.Derive(keyschedule.KindClientEarlyTraffic, chHash)
	if err != nil {
		return err
	}
	cx.Secrets.ClientEarlyTraffic = secret

	suite := cx.Details.ResumingSession.CipherSuite
	keyLen := constants.AESKeySize
	if suite == constants.SuiteChaCha20Poly1305SHA256 {
		keyLen = constants.ChaCha20KeySize
	}
	key, iv, err := sched.TrafficKeys(secret, keyLen)
	if err != nil {
		return err
	}
	if err := cx.IO.SetMessageEncrypter(key, iv, suite); err != nil {
		return qerrors.NewCryptoError("installEarlyTrafficKey", err)
	}
	cx.IO.WeNowEncrypting()
	return nil
}
