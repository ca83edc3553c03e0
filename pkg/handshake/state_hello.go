// state_hello.go implements the two states between ClientHello and the
// version-specific branches: ExpectServerHelloOrHelloRetryRequest, which
// disambiguates a HelloRetryRequest from a real ServerHello, and the
// shared ServerHello-completion logic both it and the post-retry
// ExpectServerHello state call into.
package handshake

import (
	"bytes"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
	"github.com/kemtls-go/kemtls-client/pkg/crypto"
	"github.com/kemtls-go/kemtls-client/pkg/keyschedule"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// ExpectServerHelloOrHRRState is ClientHello's immediate successor: the
// first server message is either a real ServerHello or a
// HelloRetryRequest, disambiguated only by the Random field matching RFC
// 8446's fixed HelloRetryRequest sentinel.
type ExpectServerHelloOrHRRState struct{}

func (ExpectServerHelloOrHRRState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeServerHello}
}

func (ExpectServerHelloOrHRRState) Handle(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeServerHello(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}
	if body.IsHelloRetryRequest() {
		return handleHelloRetryRequest(cx, body)
	}
	return completeServerHello(cx, body, msg, false)
}

// ExpectServerHelloState is reached only once a HelloRetryRequest has
// already been processed. At most one HRR is legal per connection, and
// HRR support is unconditional here - a second HelloRetryRequest is
// treated as a protocol violation rather than something the client pins
// against structurally.
type ExpectServerHelloState struct{}

func (ExpectServerHelloState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeServerHello}
}

func (ExpectServerHelloState) Handle(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeServerHello(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}
	if body.IsHelloRetryRequest() {
		return nil, cx.FailWith(qerrors.NewPeerMisbehaved("second HelloRetryRequest on one connection"))
	}
	return completeServerHello(cx, body, msg, true)
}

// handleHelloRetryRequest validates and re-emits per RFC 8446's
// HelloRetryRequest rules: a HelloRetryRequest requesting an already-offered
// group or no change at all is a protocol violation.
func handleHelloRetryRequest(cx *Context, body *wire.ServerHelloBody) (State, error) {
	svExt, ok := body.Extensions.Get(constants.ExtSupportedVersions)
	if !ok {
		return nil, cx.FailWith(qerrors.NewPeerMisbehaved("HelloRetryRequest missing supported_versions"))
	}
	version, err := wire.DecodeSupportedVersionsServer(svExt.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}
	if version != constants.VersionTLS13 {
		return nil, cx.FailWith(qerrors.NewPeerMisbehavedWithAlert("HelloRetryRequest did not select TLS 1.3", constants.AlertProtocolVersion))
	}

	for _, ext := range body.Extensions {
		switch ext.Type {
		case constants.ExtSupportedVersions, constants.ExtKeyShare, constants.ExtCookie:
		default:
			return nil, cx.FailWith(qerrors.NewPeerMisbehaved("HelloRetryRequest carries an unrecognized extension"))
		}
	}

	ksExt, hasKeyShare := body.Extensions.Get(constants.ExtKeyShare)
	cookieExt, hasCookie := body.Extensions.Get(constants.ExtCookie)
	if !hasKeyShare && !hasCookie {
		return nil, cx.FailWith(qerrors.NewPeerMisbehaved("HelloRetryRequest carries neither a cookie nor a new group"))
	}

	var requestedGroup constants.NamedGroup
	if hasKeyShare {
		g, err := wire.DecodeKeyShareHRR(ksExt.Body)
		if err != nil {
			return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
		}
		if cx.ClientCH.FindKeyShare(g) != nil {
			return nil, cx.FailWith(qerrors.NewPeerMisbehaved("HelloRetryRequest requested a group already offered"))
		}
		if !groupSupported(cx, g) {
			return nil, cx.FailWith(qerrors.NewPeerMisbehaved("HelloRetryRequest requested an unsupported group"))
		}
		requestedGroup = g
	}

	var cookie []byte
	if hasCookie {
		cookie, err = wire.DecodeCookie(cookieExt.Body)
		if err != nil {
			return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
		}
	}

	cx.Details.ReceivedHRR = true
	cx.Observer.RecordHelloRetryRequest()

	if err := cx.BindSuite(body.CipherSuite); err != nil {
		return nil, cx.FailWith(err)
	}
	if err := cx.Transcript.Rollup(); err != nil {
		return nil, cx.FailWith(err)
	}
	hrrWire := wire.Encode(constants.HandshakeTypeServerHello, body.Encode())
	cx.Transcript.AddMessage(hrrWire)

	shares := make([]wire.KeyShareEntry, 0, len(cx.ClientCH.OfferedKeyShares)+1)
	for _, ks := range cx.ClientCH.OfferedKeyShares {
		shares = append(shares, wire.KeyShareEntry{Group: ks.Group(), Data: ks.Public()})
	}
	if hasKeyShare {
		ks, err := crypto.GenerateKeyShare(requestedGroup)
		if err != nil {
			return nil, cx.FailWith(err)
		}
		cx.ClientCH.OfferedKeyShares = append(cx.ClientCH.OfferedKeyShares, ks)
		shares = append(shares, wire.KeyShareEntry{Group: requestedGroup, Data: ks.Public()})
		cx.Details.HRRSelectedGroup = requestedGroup
	}

	suites := offeredCipherSuites(cx)
	compressionMethods := []byte{0}
	chPrefixLen := 2 + constants.RandomSize + (1 + len(cx.Details.SessionID)) + (2 + 2*len(suites)) + (1 + len(compressionMethods))

	exts, prep := buildClientExtensions(cx, shares, chPrefixLen, cookie, false)
	ch := &wire.ClientHelloBody{
		LegacyVersion:      constants.VersionTLS12,
		Random:             cx.Details.ClientRandom,
		SessionID:          cx.Details.SessionID,
		CipherSuites:       suites,
		CompressionMethods: compressionMethods,
		Extensions:         exts,
	}

	ch2Body := ch.Encode()
	if prep != nil {
		if err := patchPSKBinders(cx.Transcript.TakeHandshakeBuf(), ch2Body, prep); err != nil {
			return nil, cx.FailWith(err)
		}
	}

	ch2Wire := wire.Encode(constants.HandshakeTypeClientHello, ch2Body)
	cx.Transcript.AddMessage(ch2Wire)
	cx.ClientCH.SentExtensions = cx.ClientCH.SentExtensions[:0]
	for _, et := range exts {
		cx.ClientCH.SentExtensions = append(cx.ClientCH.SentExtensions, et.Type)
	}

	if err := cx.IO.SendMessage(constants.ContentTypeHandshake, ch2Wire, false); err != nil {
		return nil, cx.FailWith(err)
	}

	return &ExpectServerHelloState{}, nil
}

func groupSupported(cx *Context, g constants.NamedGroup) bool {
	if len(cx.Config.SupportedGroups) == 0 {
		return g == cx.Config.DefaultGroup
	}
	for _, sg := range cx.Config.SupportedGroups {
		if sg == g {
			return true
		}
	}
	return false
}

func versionOffered(cx *Context, v constants.ProtocolVersion) bool {
	for _, cv := range cx.Config.SupportedVersions {
		if cv == v {
			return true
		}
	}
	return false
}

// completeServerHello implements the shared tail of
// ExpectServerHelloOrHelloRetryRequest and ExpectServerHello: cipher suite
// and version negotiation, RFC 8446's downgrade-sentinel check, and the
// branch into the TLS 1.3 or TLS 1.2 successor state.
// alreadyBound is true only on the post-HelloRetryRequest path, where
// BindSuite already ran against the HelloRetryRequest's own cipher_suite
// field and must not run a second time.
func completeServerHello(cx *Context, body *wire.ServerHelloBody, msg wire.Message, alreadyBound bool) (State, error) {
	if alreadyBound {
		if body.CipherSuite != cx.Suite {
			return nil, cx.FailWith(qerrors.NewPeerMisbehaved("ServerHello cipher suite changed after HelloRetryRequest"))
		}
	} else if err := cx.BindSuite(body.CipherSuite); err != nil {
		return nil, cx.FailWith(err)
	}

	cx.Details.ServerRandom = body.Random

	negotiatedVersion := body.LegacyVersion
	if svExt, ok := body.Extensions.Get(constants.ExtSupportedVersions); ok {
		v, err := wire.DecodeSupportedVersionsServer(svExt.Body)
		if err != nil {
			return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
		}
		negotiatedVersion = v
	}
	cx.NegotiatedVersion = negotiatedVersion

	if negotiatedVersion != constants.VersionTLS13 && versionOffered(cx, constants.VersionTLS13) {
		suffix := body.Random[len(body.Random)-8:]
		if bytes.Equal(suffix, constants.DowngradeToTLS12Sentinel[:]) || bytes.Equal(suffix, constants.DowngradeToTLS11Sentinel[:]) {
			return nil, cx.FailWith(qerrors.NewPeerMisbehavedWithAlert("downgrade sentinel present", constants.AlertIllegalParameter))
		}
	}

	wireMsg := wire.Encode(msg.Type, msg.Body)
	cx.Transcript.AddMessage(wireMsg)

	if negotiatedVersion == constants.VersionTLS13 {
		return startHandshakeTraffic(cx, body)
	}
	return enterTLS12LegacyBranch(cx, body)
}

// startHandshakeTraffic implements ExpectServerHello's TLS 1.3 branch:
// complete the (EC)DHE/KEM key-share exchange, fold in the resumption PSK
// when one was selected, and derive+install the Handshake traffic secrets.
func startHandshakeTraffic(cx *Context, body *wire.ServerHelloBody) (State, error) {
	ksExt, ok := body.Extensions.Get(constants.ExtKeyShare)
	if !ok {
		return nil, cx.FailWith(qerrors.NewPeerMisbehaved("TLS 1.3 ServerHello missing key_share"))
	}
	entry, err := wire.DecodeKeyShareServerHello(ksExt.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	ourShare := cx.ClientCH.FindKeyShare(entry.Group)
	if ourShare == nil {
		return nil, cx.FailWith(qerrors.NewPeerMisbehaved("ServerHello selected a group the client did not offer"))
	}
	cx.Details.NegotiatedGroup = entry.Group

	dheSecret, err := ourShare.Finish(entry.Data)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCryptoError("ServerHello key-share completion", err))
	}

	resuming := false
	if pskExt, ok := body.Extensions.Get(constants.ExtPreSharedKey); ok {
		selected, err := wire.DecodePreSharedKeyServerHello(pskExt.Body)
		if err != nil {
			return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
		}
		if selected != 0 || cx.Details.ResumingSession == nil {
			return nil, cx.FailWith(qerrors.NewPeerMisbehaved("ServerHello selected a PSK identity the client did not offer"))
		}
		resuming = true
	}

	if resuming {
		sched, err := keyschedule.NewFromPSK(cx.Suite.HashOutputSize(), cx.Details.ResumingSession.MasterSecret)
		if err != nil {
			return nil, cx.FailWith(err)
		}
		cx.KeySchedule = sched
		cx.Observer.RecordSessionResumption()
	} else {
		cx.Details.ResumingSession = nil
	}

	if err := cx.KeySchedule.InputSecret(dheSecret); err != nil {
		return nil, cx.FailWith(err)
	}

	hsHash := cx.Transcript.GetCurrentHash()
	cx.Details.HashAtClientRecvdServerHello = hsHash

	clientHS, err := cx.KeySchedule.Derive(keyschedule.KindClientHandshakeTraffic, hsHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	serverHS, err := cx.KeySchedule.Derive(keyschedule.KindServerHandshakeTraffic, hsHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	cx.Secrets.ClientHandshakeTraffic = clientHS
	cx.Secrets.ServerHandshakeTraffic = serverHS

	if err := cx.InstallReadKey(serverHS); err != nil {
		return nil, cx.FailWith(err)
	}
	if err := cx.InstallWriteKey(clientHS); err != nil {
		return nil, cx.FailWith(err)
	}

	if cx.SessionCache != nil {
		cx.SessionCache.PutKxHint(cx.Details.DNSName, entry.Group)
	}

	return &ExpectTLS13EncryptedExtensionsState{}, nil
}
