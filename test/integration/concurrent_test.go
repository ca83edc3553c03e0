package integration

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	"github.com/kemtls-go/kemtls-client/pkg/certtest"
	"github.com/kemtls-go/kemtls-client/pkg/handshake"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// chanIO is an IOHarness whose SendMessage hands each outgoing record to a
// channel instead of appending it to a slice, so a concurrent fake-server
// goroutine can react to the client's flights as they go out rather than
// inspecting a completed recording after the fact.
type chanIO struct {
	out chan sentRecord
}

func newChanIO() *chanIO {
	return &chanIO{out: make(chan sentRecord, 8)}
}

func (c *chanIO) SendMessage(contentType constants.ContentType, body []byte, encrypted bool) error {
	c.out <- sentRecord{contentType: contentType, body: append([]byte(nil), body...)}
	return nil
}
func (c *chanIO) SetMessageEncrypter(key, iv []byte, suite constants.CipherSuite) error { return nil }
func (c *chanIO) SetMessageDecrypter(key, iv []byte, suite constants.CipherSuite) error { return nil }
func (c *chanIO) WeNowEncrypting()                                                     {}
func (c *chanIO) PeerNowEncrypting()                                                   {}
func (c *chanIO) StartTraffic()                                                        {}
func (c *chanIO) SendFatalAlert(constants.AlertDescription) error                      { return nil }

// handshakeAck is handed from the client goroutine to the fake-server
// goroutine after each processed flight: a snapshot of whatever transcript
// state the server's next message depends on. Passing it over a channel
// (rather than letting the server goroutine read cx directly) is what
// keeps cx.Transcript and cx.Secrets single-goroutine-owned - the server
// goroutine never touches cx itself.
type handshakeAck struct {
	transcriptHash []byte
}

const tls13CertVerifyContext = "                                                                TLS 1.3, server CertificateVerify\x00"

// TestConcurrentHandshakeClientAndFakeServerGoroutines runs a classical TLS
// 1.3 handshake with the client's Dispatcher and a hand-written fake server
// as two goroutines joined by an errgroup.Group. The two communicate only
// through message and ack channels; neither reads the other's local state,
// so the handshake genuinely progresses via concurrent, synchronized
// goroutines rather than a single sequential call stack standing in for
// both sides.
func TestConcurrentHandshakeClientAndFakeServerGoroutines(t *testing.T) {
	io := newChanIO()
	cx := handshake.NewContext(handshake.Default(), io, certtest.AcceptAllCertVerifier{}, certtest.DilithiumSignatureVerifier{}, certtest.Factory{}, nil, nil)
	_, err := rand.Read(cx.Details.ServerRandom[:])
	require.NoError(t, err)

	initial, err := handshake.EnterInitial(cx, "example.test")
	require.NoError(t, err)
	d := handshake.NewDispatcher(cx, initial)

	serverMsgs := make(chan wire.Message, 1)
	acks := make(chan handshakeAck, 1)
	var g errgroup.Group

	g.Go(func() error {
		for i := 0; i < 5; i++ {
			msg := <-serverMsgs
			if err := d.Advance(msg); err != nil {
				return err
			}
			acks <- handshakeAck{transcriptHash: append([]byte(nil), cx.Transcript.GetCurrentHash()...)}
		}
		return nil
	})

	g.Go(func() error {
		serverPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		sh := serverHelloFor(cx, constants.GroupX25519, serverPriv, nil)
		serverMsgs <- asMsg(t, constants.HandshakeTypeServerHello, sh.Encode())
		<-acks

		serverMsgs <- asMsg(t, constants.HandshakeTypeEncryptedExtensions, (&wire.EncryptedExtensionsBody{}).Encode())
		<-acks

		leaf, err := certtest.NewClassicalSigLeaf()
		if err != nil {
			return err
		}
		certBody := &wire.CertificateBody{CertList: []wire.CertificateEntry{{CertData: leaf.Leaf()}}}
		serverMsgs <- asMsg(t, constants.HandshakeTypeCertificate, certBody.Encode())
		postCert := <-acks

		toSign := append([]byte(tls13CertVerifyContext), postCert.transcriptHash...)
		sig, err := leaf.Sign(toSign)
		if err != nil {
			return err
		}
		cv := &wire.CertificateVerifyBody{Algorithm: leaf.Scheme(), Signature: sig}
		serverMsgs <- asMsg(t, constants.HandshakeTypeCertificateVerify, cv.Encode())
		preFinished := <-acks

		serverVerify, err := cx.KeySchedule.SignFinish(cx.Secrets.ServerHandshakeTraffic, preFinished.transcriptHash)
		if err != nil {
			return err
		}
		serverMsgs <- asMsg(t, constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: serverVerify}).Encode())
		<-acks
		return nil
	})

	require.NoError(t, g.Wait())
	require.IsType(t, &handshake.ExpectTLS13TrafficState{}, d.Current())
	require.NotEmpty(t, cx.Secrets.ClientApplicationTraffic)
}
