// Package integration drives the client handshake state machine through
// the seed scenarios end to end: a real Dispatcher against hand-built wire
// messages standing in for a server, exactly the way a real server's bytes
// would arrive off a net.Conn. There is no server implementation in this
// module (out of scope per the spec's client-only boundary), so each test
// plays the server's side by encoding wire.* bodies directly and feeding
// certtest collaborators the client's core depends on.
package integration

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	"github.com/kemtls-go/kemtls-client/pkg/certtest"
	"github.com/kemtls-go/kemtls-client/pkg/handshake"
	"github.com/kemtls-go/kemtls-client/pkg/session"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// fakeIO is a minimal handshake.IOHarness double recording every record the
// client sends, standing in for a real record layer.
type fakeIO struct {
	sent           []sentRecord
	weEncrypting   bool
	peerEncrypting bool
	trafficStarted bool
	fatalAlert     *constants.AlertDescription
}

type sentRecord struct {
	contentType constants.ContentType
	body        []byte
}

func (f *fakeIO) SendMessage(contentType constants.ContentType, body []byte, encrypted bool) error {
	f.sent = append(f.sent, sentRecord{contentType: contentType, body: append([]byte(nil), body...)})
	return nil
}
func (f *fakeIO) SetMessageEncrypter(key, iv []byte, suite constants.CipherSuite) error { return nil }
func (f *fakeIO) SetMessageDecrypter(key, iv []byte, suite constants.CipherSuite) error { return nil }
func (f *fakeIO) WeNowEncrypting()                                                     { f.weEncrypting = true }
func (f *fakeIO) PeerNowEncrypting()                                                   { f.peerEncrypting = true }
func (f *fakeIO) StartTraffic()                                                        { f.trafficStarted = true }
func (f *fakeIO) SendFatalAlert(code constants.AlertDescription) error {
	f.fatalAlert = &code
	return nil
}

func (f *fakeIO) handshakeSent(typ constants.HandshakeType) []byte {
	for _, r := range f.sent {
		if r.contentType != constants.ContentTypeHandshake {
			continue
		}
		msg, _, err := wire.Decode(r.body)
		if err == nil && msg.Type == typ {
			return msg.Body
		}
	}
	return nil
}

func (f *fakeIO) applicationDataSent() [][]byte {
	var out [][]byte
	for _, r := range f.sent {
		if r.contentType == constants.ContentTypeApplicationData {
			out = append(out, r.body)
		}
	}
	return out
}

func asMsg(t *testing.T, typ constants.HandshakeType, body []byte) wire.Message {
	t.Helper()
	msg, _, err := wire.Decode(wire.Encode(typ, body))
	require.NoError(t, err)
	return msg
}

func serverHelloFor(cx *handshake.Context, group constants.NamedGroup, serverPriv *ecdh.PrivateKey, extra wire.ExtensionList) *wire.ServerHelloBody {
	exts := wire.ExtensionList{
		{Type: constants.ExtSupportedVersions, Body: wire.EncodeSupportedVersionsServer(constants.VersionTLS13)},
		{Type: constants.ExtKeyShare, Body: wire.EncodeKeyShareServerHello(wire.KeyShareEntry{Group: group, Data: serverPriv.PublicKey().Bytes()})},
	}
	exts = append(exts, extra...)
	return &wire.ServerHelloBody{
		LegacyVersion: constants.VersionTLS12,
		Random:        cx.Details.ServerRandom,
		SessionID:     cx.Details.SessionID,
		CipherSuite:   constants.SuiteAES128GCMSHA256,
		Extensions:    exts,
	}
}

// S1 - Classical 1.3 handshake: ECDHE-X25519 + a classical signature leaf,
// CH -> SH -> EE -> Cert -> CertVerify -> Finished -> {client Finished} ->
// the dispatcher reaching the terminal traffic state.
func TestS1_ClassicalHandshakeReachesApplicationData(t *testing.T) {
	io := &fakeIO{}
	cx := handshake.NewContext(handshake.Default(), io, certtest.AcceptAllCertVerifier{}, certtest.DilithiumSignatureVerifier{}, certtest.Factory{}, nil, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	initial, err := handshake.EnterInitial(cx, "example.test")
	require.NoError(t, err)
	d := handshake.NewDispatcher(cx, initial)

	serverPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	sh := serverHelloFor(cx, constants.GroupX25519, serverPriv, nil)
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeServerHello, sh.Encode())))
	require.Equal(t, constants.VersionTLS13, cx.NegotiatedVersion)

	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeEncryptedExtensions, (&wire.EncryptedExtensionsBody{}).Encode())))

	leaf, err := certtest.NewClassicalSigLeaf()
	require.NoError(t, err)
	certBody := &wire.CertificateBody{CertList: []wire.CertificateEntry{{CertData: leaf.Leaf()}}}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeCertificate, certBody.Encode())))

	toSign := append([]byte(nil), cx.Transcript.GetCurrentHash()...)
	toSign = append(append([]byte("                                                                TLS 1.3, server CertificateVerify\x00")), toSign...)
	sig, err := leaf.Sign(toSign)
	require.NoError(t, err)
	cv := &wire.CertificateVerifyBody{Algorithm: leaf.Scheme(), Signature: sig}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeCertificateVerify, cv.Encode())))

	preFinHash := cx.Transcript.GetCurrentHash()
	serverVerify, err := cx.KeySchedule.SignFinish(cx.Secrets.ServerHandshakeTraffic, preFinHash)
	require.NoError(t, err)
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: serverVerify}).Encode())))

	require.IsType(t, &handshake.ExpectTLS13TrafficState{}, d.Current())
	require.True(t, io.trafficStarted)
	require.Nil(t, io.fatalAlert)
	require.NotNil(t, io.handshakeSent(constants.HandshakeTypeFinished))
	require.NotEmpty(t, cx.Secrets.ClientApplicationTraffic)
	require.NotEmpty(t, cx.Secrets.ServerApplicationTraffic)
}

// S2 - KEMTLS handshake: server cert carries a Kyber768 KEM public key.
// Expect CH -> SH -> EE -> Cert -> {client ClientKeyExchange + client
// Finished under AHS} -> server Finished -> traffic, with no CertVerify
// message appearing anywhere on the wire.
func TestS2_KEMTLSHandshakeSkipsCertificateVerify(t *testing.T) {
	io := &fakeIO{}
	cx := handshake.NewContext(handshake.Default(), io, certtest.AcceptAllCertVerifier{}, certtest.DilithiumSignatureVerifier{}, certtest.Factory{KEMScheme: constants.SchemeKEMTLSKyber768}, nil, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	initial, err := handshake.EnterInitial(cx, "example.test")
	require.NoError(t, err)
	d := handshake.NewDispatcher(cx, initial)

	serverPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	sh := serverHelloFor(cx, constants.GroupX25519, serverPriv, nil)
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeServerHello, sh.Encode())))

	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeEncryptedExtensions, (&wire.EncryptedExtensionsBody{}).Encode())))

	leaf, err := certtest.NewKEMLeaf(constants.SchemeKEMTLSKyber768)
	require.NoError(t, err)
	certBody := &wire.CertificateBody{CertList: []wire.CertificateEntry{{CertData: leaf.Leaf()}}}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeCertificate, certBody.Encode())))

	require.True(t, cx.Details.KEMTLSMode)
	require.Nil(t, io.handshakeSent(constants.HandshakeTypeCertificateVerify))
	require.NotNil(t, io.handshakeSent(constants.HandshakeTypeFinished), "client Finished under AHS must already be sent before the server's is seen")
	ckeBody := io.handshakeSent(constants.HandshakeTypeClientKeyExchange)
	require.NotNil(t, ckeBody)
	cke, err := wire.DecodeClientKeyExchange(ckeBody)
	require.NoError(t, err)
	_, err = leaf.Decapsulate(cke.Payload)
	require.NoError(t, err, "server must be able to decapsulate the ciphertext the client sent")

	preFinHash := cx.Transcript.GetCurrentHash()
	serverVerify, err := cx.KeySchedule.SignFinish(cx.Secrets.ServerAuthHandshakeTraffic, preFinHash)
	require.NoError(t, err)
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: serverVerify}).Encode())))

	require.IsType(t, &handshake.ExpectTLS13TrafficState{}, d.Current())
	require.True(t, io.trafficStarted)
	require.Nil(t, io.fatalAlert)
}

// S3 - HelloRetryRequest: server requests group X25519 after the client
// offered only P256 (via a cached key-exchange hint). The client must emit
// CH2 carrying a new X25519 share, and the transcript rollup must let the
// rest of the handshake complete normally.
func TestS3_HelloRetryRequestRollsUpTranscriptAndCompletes(t *testing.T) {
	io := &fakeIO{}
	cache := session.NewCache(session.NewInMemoryStore())
	require.True(t, cache.PutKxHint("example.test", constants.GroupSECP256R1))
	cfg := handshake.New(handshake.WithSupportedGroups(constants.GroupSECP256R1, constants.GroupX25519))
	cx := handshake.NewContext(cfg, io, certtest.AcceptAllCertVerifier{}, certtest.DilithiumSignatureVerifier{}, certtest.Factory{}, cache, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	initial, err := handshake.EnterInitial(cx, "example.test")
	require.NoError(t, err)
	require.Len(t, cx.ClientCH.OfferedKeyShares, 1)
	d := handshake.NewDispatcher(cx, initial)

	hrr := &wire.ServerHelloBody{
		LegacyVersion: constants.VersionTLS12,
		Random:        helloRetryRequestRandomForTest(),
		CipherSuite:   constants.SuiteAES128GCMSHA256,
		Extensions: wire.ExtensionList{
			{Type: constants.ExtSupportedVersions, Body: wire.EncodeSupportedVersionsServer(constants.VersionTLS13)},
			{Type: constants.ExtKeyShare, Body: wire.EncodeKeyShareHRR(constants.GroupX25519)},
		},
	}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeServerHello, hrr.Encode())))
	require.True(t, cx.Details.ReceivedHRR)
	require.Len(t, cx.ClientCH.OfferedKeyShares, 2)

	serverPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	sh := serverHelloFor(cx, constants.GroupX25519, serverPriv, nil)
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeServerHello, sh.Encode())))
	require.IsType(t, &handshake.ExpectTLS13EncryptedExtensionsState{}, d.Current())

	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeEncryptedExtensions, (&wire.EncryptedExtensionsBody{}).Encode())))

	leaf, err := certtest.NewClassicalSigLeaf()
	require.NoError(t, err)
	certBody := &wire.CertificateBody{CertList: []wire.CertificateEntry{{CertData: leaf.Leaf()}}}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeCertificate, certBody.Encode())))

	toSign := append([]byte("                                                                TLS 1.3, server CertificateVerify\x00"), cx.Transcript.GetCurrentHash()...)
	sig, err := leaf.Sign(toSign)
	require.NoError(t, err)
	cv := &wire.CertificateVerifyBody{Algorithm: leaf.Scheme(), Signature: sig}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeCertificateVerify, cv.Encode())))

	preFinHash := cx.Transcript.GetCurrentHash()
	serverVerify, err := cx.KeySchedule.SignFinish(cx.Secrets.ServerHandshakeTraffic, preFinHash)
	require.NoError(t, err)
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: serverVerify}).Encode())))

	require.IsType(t, &handshake.ExpectTLS13TrafficState{}, d.Current())
	require.True(t, io.trafficStarted)
	require.Nil(t, io.fatalAlert)
}

// helloRetryRequestRandomForTest is the RFC 8446 §4.1.3 sentinel, copied
// here as a literal (wire.ServerHelloBody.IsHelloRetryRequest checks its own
// unexported copy) since that is what a real server puts on the wire.
func helloRetryRequestRandomForTest() [constants.RandomSize]byte {
	return [constants.RandomSize]byte{
		0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
		0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
		0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
		0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
	}
}

// S4 - 1.3 resumption with 0-RTT: a cached ticket for example.test lets the
// client emit early_data and encrypt it under client_early_traffic_secret;
// the server's EncryptedExtensions accepts it (echoing early_data), and
// that acceptance - and the encrypted early data itself - must be visible
// before the server's Finished arrives at all.
func TestS4_ResumptionWithEarlyDataFlowsBeforeServerFinished(t *testing.T) {
	io := &fakeIO{}
	cache := session.NewCache(session.NewInMemoryStore())
	require.True(t, cache.PutSession("example.test", &session.Value{
		Version:          constants.VersionTLS13,
		CipherSuite:      constants.SuiteAES128GCMSHA256,
		Ticket:           []byte("opaque-session-ticket"),
		MasterSecret:     make([]byte, 32),
		CreatedAt:        time.Now(),
		Lifetime:         24 * time.Hour,
		MaxEarlyDataSize: 16384,
	}))
	cfg := handshake.New(handshake.WithEarlyData(true))
	cx := handshake.NewContext(cfg, io, certtest.AcceptAllCertVerifier{}, certtest.DilithiumSignatureVerifier{}, certtest.Factory{}, cache, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	initial, err := handshake.EnterInitial(cx, "example.test")
	require.NoError(t, err)
	require.True(t, cx.Details.EarlyDataOffered)
	require.NotEmpty(t, cx.Secrets.ClientEarlyTraffic)
	require.True(t, io.weEncrypting, "the early-data write epoch must already be installed")

	// The client can now send 0-RTT application data, ahead of ServerHello.
	require.NoError(t, io.SendMessage(constants.ContentTypeApplicationData, []byte("GET /"), true))
	require.Len(t, io.applicationDataSent(), 1)

	d := handshake.NewDispatcher(cx, initial)

	serverPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	w := wire.NewWriter()
	w.PutUint16(0) // pre_shared_key selected_identity = 0
	sh := serverHelloFor(cx, constants.GroupX25519, serverPriv, wire.ExtensionList{
		{Type: constants.ExtPreSharedKey, Body: w.Bytes()},
	})
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeServerHello, sh.Encode())))
	require.NotNil(t, cx.Details.ResumingSession)

	ee := &wire.EncryptedExtensionsBody{Extensions: wire.ExtensionList{{Type: constants.ExtEarlyData, Body: nil}}}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeEncryptedExtensions, ee.Encode())))
	require.True(t, cx.Details.EarlyDataAccepted)
	require.IsType(t, &handshake.ExpectTLS13FinishedState{}, d.Current(), "resumption skips Certificate/CertificateVerify entirely")

	preFinHash := cx.Transcript.GetCurrentHash()
	serverVerify, err := cx.KeySchedule.SignFinish(cx.Secrets.ServerHandshakeTraffic, preFinHash)
	require.NoError(t, err)
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: serverVerify}).Encode())))
	require.IsType(t, &handshake.ExpectTLS13TrafficState{}, d.Current())
}

// S5 - Misbehaving server sends duplicate extension: the client must emit a
// decode_error fatal alert and fail with a peer-misbehavior error.
func TestS5_DuplicateExtensionIsRejectedWithDecodeError(t *testing.T) {
	io := &fakeIO{}
	cx := handshake.NewContext(handshake.Default(), io, certtest.AcceptAllCertVerifier{}, certtest.DilithiumSignatureVerifier{}, certtest.Factory{}, nil, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	initial, err := handshake.EnterInitial(cx, "example.test")
	require.NoError(t, err)
	d := handshake.NewDispatcher(cx, initial)

	serverPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	w := wire.NewWriter()
	w.PutUint16(uint16(constants.VersionTLS13))
	sh := serverHelloFor(cx, constants.GroupX25519, serverPriv, nil)
	// Duplicate the supported_versions extension the server already sent.
	sh.Extensions = append(sh.Extensions, wire.Extension{Type: constants.ExtSupportedVersions, Body: w.Bytes()})
	err = d.Advance(asMsg(t, constants.HandshakeTypeServerHello, sh.Encode()))

	require.Error(t, err)
	require.NotNil(t, io.fatalAlert)
	require.Equal(t, constants.AlertDecodeError, *io.fatalAlert)
}

// S6 - Finished MAC mismatch: a single flipped byte in the server's
// Finished must be rejected with decrypt_error.
func TestS6_FinishedMismatchIsRejectedWithDecryptError(t *testing.T) {
	io := &fakeIO{}
	cx := handshake.NewContext(handshake.Default(), io, certtest.AcceptAllCertVerifier{}, certtest.DilithiumSignatureVerifier{}, certtest.Factory{}, nil, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	initial, err := handshake.EnterInitial(cx, "example.test")
	require.NoError(t, err)
	d := handshake.NewDispatcher(cx, initial)

	serverPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	sh := serverHelloFor(cx, constants.GroupX25519, serverPriv, nil)
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeServerHello, sh.Encode())))
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeEncryptedExtensions, (&wire.EncryptedExtensionsBody{}).Encode())))

	leaf, err := certtest.NewClassicalSigLeaf()
	require.NoError(t, err)
	certBody := &wire.CertificateBody{CertList: []wire.CertificateEntry{{CertData: leaf.Leaf()}}}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeCertificate, certBody.Encode())))

	toSign := append([]byte("                                                                TLS 1.3, server CertificateVerify\x00"), cx.Transcript.GetCurrentHash()...)
	sig, err := leaf.Sign(toSign)
	require.NoError(t, err)
	cv := &wire.CertificateVerifyBody{Algorithm: leaf.Scheme(), Signature: sig}
	require.NoError(t, d.Advance(asMsg(t, constants.HandshakeTypeCertificateVerify, cv.Encode())))

	preFinHash := cx.Transcript.GetCurrentHash()
	serverVerify, err := cx.KeySchedule.SignFinish(cx.Secrets.ServerHandshakeTraffic, preFinHash)
	require.NoError(t, err)
	serverVerify[0] ^= 0xFF // fuzz one byte
	err = d.Advance(asMsg(t, constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: serverVerify}).Encode()))

	require.Error(t, err)
	require.NotNil(t, io.fatalAlert)
	require.Equal(t, constants.AlertDecryptError, *io.fatalAlert)
}
