package handshake

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	"github.com/kemtls-go/kemtls-client/pkg/session"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// serverHelloSelecting builds a real ServerHello wire body negotiating TLS
// 1.3 against one of cx's already-offered groups, returning the server's
// ephemeral private key so a test can cross-check InstallReadKey/WriteKey
// derived from a real ECDH rather than a stub.
func serverHelloSelecting(t *testing.T, cx *Context, group constants.NamedGroup) (*wire.ServerHelloBody, *ecdh.PrivateKey) {
	t.Helper()
	serverPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)

	exts := wire.ExtensionList{
		{Type: constants.ExtSupportedVersions, Body: wire.EncodeSupportedVersionsServer(constants.VersionTLS13)},
		{Type: constants.ExtKeyShare, Body: wire.EncodeKeyShareServerHello(wire.KeyShareEntry{Group: group, Data: serverPriv.PublicKey().Bytes()})},
	}
	body := &wire.ServerHelloBody{
		LegacyVersion: constants.VersionTLS12,
		Random:        cx.Details.ServerRandom,
		SessionID:     cx.Details.SessionID,
		CipherSuite:   constants.SuiteAES128GCMSHA256,
		Extensions:    exts,
	}
	return body, serverPriv
}

func TestServerHelloOrHRR_NegotiatesTLS13AndDerivesHandshakeTraffic(t *testing.T) {
	io := &fakeIOHarness{}
	cx := newInitialTestContext(t, io, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	next, err := EnterInitial(cx, "example.com")
	require.NoError(t, err)
	_, ok := next.(*ExpectServerHelloOrHRRState)
	require.True(t, ok)

	shBody, _ := serverHelloSelecting(t, cx, constants.GroupX25519)
	shWire := wire.Encode(constants.HandshakeTypeServerHello, shBody.Encode())
	msg, _, err := wire.Decode(shWire)
	require.NoError(t, err)

	next, err = ExpectServerHelloOrHRRState{}.Handle(cx, msg)
	require.NoError(t, err)
	_, ok = next.(*ExpectTLS13EncryptedExtensionsState)
	require.True(t, ok)

	require.Equal(t, constants.VersionTLS13, cx.NegotiatedVersion)
	require.Equal(t, constants.GroupX25519, cx.Details.NegotiatedGroup)
	require.NotEmpty(t, cx.Secrets.ClientHandshakeTraffic)
	require.NotEmpty(t, cx.Secrets.ServerHandshakeTraffic)
	require.True(t, io.weEncrypting)
	require.True(t, io.peerEncrypting)
}

func TestServerHelloOrHRR_RejectsGroupClientDidNotOffer(t *testing.T) {
	io := &fakeIOHarness{}
	cx := newInitialTestContext(t, io, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	_, err = EnterInitial(cx, "example.com")
	require.NoError(t, err)

	// The client's default config never offers a raw NamedGroup(0), so the
	// server "selecting" it is a protocol violation.
	shBody, _ := serverHelloSelecting(t, cx, constants.NamedGroup(0))
	shWire := wire.Encode(constants.HandshakeTypeServerHello, shBody.Encode())
	msg, _, err := wire.Decode(shWire)
	require.NoError(t, err)

	_, err = ExpectServerHelloOrHRRState{}.Handle(cx, msg)
	require.Error(t, err)
	require.NotNil(t, io.fatalAlert)
}

func TestServerHelloOrHRR_DowngradeSentinelPresentRejected(t *testing.T) {
	io := &fakeIOHarness{}
	cx := newInitialTestContext(t, io, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	_, err = EnterInitial(cx, "example.com")
	require.NoError(t, err)

	// A ServerHello with no supported_versions extension and a legacy 1.2
	// version, whose Random ends in the RFC 8446 §4.1.3 TLS 1.2 downgrade
	// sentinel, must be rejected since the client offered TLS 1.3.
	body := &wire.ServerHelloBody{
		LegacyVersion: constants.VersionTLS12,
		Random:        cx.Details.ServerRandom,
		SessionID:     cx.Details.SessionID,
		CipherSuite:   constants.SuiteECDHERSAWithAES128GCMSHA256,
	}
	copy(body.Random[len(body.Random)-8:], constants.DowngradeToTLS12Sentinel[:])
	wireMsg := wire.Encode(constants.HandshakeTypeServerHello, body.Encode())
	msg, _, err := wire.Decode(wireMsg)
	require.NoError(t, err)

	_, err = ExpectServerHelloOrHRRState{}.Handle(cx, msg)
	require.Error(t, err)
	require.NotNil(t, io.fatalAlert)
}

func TestServerHelloOrHRR_RoutesToTLS12LegacyBranchOnDowngrade(t *testing.T) {
	io := &fakeIOHarness{}
	cx := newInitialTestContext(t, io, nil)
	cx.Config.SupportedVersions = []constants.ProtocolVersion{constants.VersionTLS12}
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	_, err = EnterInitial(cx, "example.com")
	require.NoError(t, err)

	body := &wire.ServerHelloBody{
		LegacyVersion: constants.VersionTLS12,
		Random:        cx.Details.ServerRandom,
		SessionID:     cx.Details.SessionID,
		CipherSuite:   constants.SuiteECDHERSAWithAES128GCMSHA256,
	}
	wireMsg := wire.Encode(constants.HandshakeTypeServerHello, body.Encode())
	msg, _, err := wire.Decode(wireMsg)
	require.NoError(t, err)

	next, err := ExpectServerHelloOrHRRState{}.Handle(cx, msg)
	require.NoError(t, err)
	_, ok := next.(*ExpectTLS12CertificateState)
	require.True(t, ok)
	require.Equal(t, constants.VersionTLS12, cx.NegotiatedVersion)
}

// lastClientHelloSent decodes the most recently sent ClientHello, for tests
// driving a HelloRetryRequest retry where two ClientHellos share the wire
// (handshakeSent only ever returns the first match of a type).
func lastClientHelloSent(t *testing.T, io *fakeIOHarness) *wire.ClientHelloBody {
	t.Helper()
	var last []byte
	for _, r := range io.sent {
		if r.contentType != constants.ContentTypeHandshake {
			continue
		}
		msg, _, err := wire.Decode(r.body)
		if err == nil && msg.Type == constants.HandshakeTypeClientHello {
			last = msg.Body
		}
	}
	require.NotNil(t, last)
	ch, err := wire.DecodeClientHello(last)
	require.NoError(t, err)
	return ch
}

// hrrServerHello builds a real HelloRetryRequest wire body requesting group,
// using the same Random sentinel wire.ServerHelloBody.IsHelloRetryRequest
// checks (duplicated here deliberately: this is what a real server would
// send on the wire, not a shortcut into unexported wire internals).
func hrrServerHello(suite constants.CipherSuite, group constants.NamedGroup) *wire.ServerHelloBody {
	sentinel := [constants.RandomSize]byte{
		0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
		0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
		0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
		0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
	}
	return &wire.ServerHelloBody{
		LegacyVersion: constants.VersionTLS12,
		Random:        sentinel,
		CipherSuite:   suite,
		Extensions: wire.ExtensionList{
			{Type: constants.ExtSupportedVersions, Body: wire.EncodeSupportedVersionsServer(constants.VersionTLS13)},
			{Type: constants.ExtKeyShare, Body: wire.EncodeKeyShareHRR(group)},
		},
	}
}

func TestServerHelloOrHRR_RetriesWithRequestedGroup(t *testing.T) {
	io := &fakeIOHarness{}
	cache := session.NewCache(session.NewInMemoryStore())
	require.True(t, cache.PutKxHint("example.com", constants.GroupX25519))
	cx := NewContext(New(WithSupportedGroups(constants.GroupX25519, constants.GroupSECP256R1)), io, nil, nil, nil, cache, nil)
	_, err := EnterInitial(cx, "example.com")
	require.NoError(t, err)
	require.Len(t, cx.ClientCH.OfferedKeyShares, 1)

	hrr := hrrServerHello(constants.SuiteAES128GCMSHA256, constants.GroupSECP256R1)
	hrrWire := wire.Encode(constants.HandshakeTypeServerHello, hrr.Encode())
	msg, _, err := wire.Decode(hrrWire)
	require.NoError(t, err)

	next, err := ExpectServerHelloOrHRRState{}.Handle(cx, msg)
	require.NoError(t, err)
	_, ok := next.(*ExpectServerHelloState)
	require.True(t, ok)

	require.True(t, cx.Details.ReceivedHRR)
	require.Equal(t, constants.GroupSECP256R1, cx.Details.HRRSelectedGroup)
	require.Len(t, cx.ClientCH.OfferedKeyShares, 2)
	require.NotNil(t, cx.ClientCH.FindKeyShare(constants.GroupSECP256R1))

	ch2 := lastClientHelloSent(t, io)
	shares, err := wire.DecodeKeyShareClientHello(mustExtBody(t, ch2, constants.ExtKeyShare))
	require.NoError(t, err)
	require.Len(t, shares, 2)
}

func TestServerHelloOrHRR_RejectsRequestedGroupAlreadyOffered(t *testing.T) {
	io := &fakeIOHarness{}
	cx := newInitialTestContext(t, io, nil) // Default() offers all four groups
	_, err := EnterInitial(cx, "example.com")
	require.NoError(t, err)

	hrr := hrrServerHello(constants.SuiteAES128GCMSHA256, constants.GroupX25519)
	hrrWire := wire.Encode(constants.HandshakeTypeServerHello, hrr.Encode())
	msg, _, err := wire.Decode(hrrWire)
	require.NoError(t, err)

	_, err = ExpectServerHelloOrHRRState{}.Handle(cx, msg)
	require.Error(t, err)
	require.NotNil(t, io.fatalAlert)
}

func TestExpectServerHelloState_RejectsSecondHelloRetryRequest(t *testing.T) {
	io := &fakeIOHarness{}
	cache := session.NewCache(session.NewInMemoryStore())
	require.True(t, cache.PutKxHint("example.com", constants.GroupX25519))
	cx := NewContext(New(WithSupportedGroups(constants.GroupX25519, constants.GroupSECP256R1)), io, nil, nil, nil, cache, nil)
	_, err := EnterInitial(cx, "example.com")
	require.NoError(t, err)

	hrr := hrrServerHello(constants.SuiteAES128GCMSHA256, constants.GroupSECP256R1)
	hrrWire := wire.Encode(constants.HandshakeTypeServerHello, hrr.Encode())
	msg, _, err := wire.Decode(hrrWire)
	require.NoError(t, err)

	next, err := ExpectServerHelloOrHRRState{}.Handle(cx, msg)
	require.NoError(t, err)
	state := next.(*ExpectServerHelloState)

	_, err = state.Handle(cx, msg) // same HRR again
	require.Error(t, err)
	require.NotNil(t, io.fatalAlert)
}
