package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	body := []byte("a fake handshake body")
	wireBytes := wire.Encode(constants.HandshakeTypeFinished, body)

	msg, n, err := wire.Decode(wireBytes)
	require.NoError(t, err)
	require.Equal(t, len(wireBytes), n)
	require.Equal(t, constants.HandshakeTypeFinished, msg.Type)
	require.Equal(t, body, msg.Body)
}

func TestDecodeShortBufferErrors(t *testing.T) {
	_, _, err := wire.Decode([]byte{byte(constants.HandshakeTypeFinished), 0, 0})
	require.Error(t, err)
}

func TestCertificateBodyTLS12RoundTrip(t *testing.T) {
	m := &wire.CertificateBodyTLS12{CertList: [][]byte{[]byte("leaf-der"), []byte("intermediate-der")}}
	decoded, err := wire.DecodeCertificateTLS12(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.CertList, decoded.CertList)
}

func TestCertificateBodyTLS12EmptyChain(t *testing.T) {
	m := &wire.CertificateBodyTLS12{}
	decoded, err := wire.DecodeCertificateTLS12(m.Encode())
	require.NoError(t, err)
	require.Empty(t, decoded.CertList)
}

func TestCertificateRequestBodyTLS12RoundTrip(t *testing.T) {
	m := &wire.CertificateRequestBodyTLS12{
		CertificateTypes: []byte{1, 64},
		SigSchemes:       []constants.SignatureScheme{constants.SchemeDilithium3},
		CANames:          [][]byte{[]byte("CN=Test Root")},
	}
	decoded, err := wire.DecodeCertificateRequestTLS12(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.CertificateTypes, decoded.CertificateTypes)
	require.Equal(t, m.SigSchemes, decoded.SigSchemes)
	require.Equal(t, m.CANames, decoded.CANames)
}

func TestServerHelloDoneRoundTrip(t *testing.T) {
	decoded, err := wire.DecodeServerHelloDone((wire.ServerHelloDoneBody{}).Encode())
	require.NoError(t, err)
	require.NotNil(t, decoded)
}

func TestServerHelloDoneRejectsNonEmptyBody(t *testing.T) {
	_, err := wire.DecodeServerHelloDone([]byte{0x01})
	require.Error(t, err)
}

func TestClientKeyExchangeBodyTLS12Encode(t *testing.T) {
	m := &wire.ClientKeyExchangeBodyTLS12{Payload: []byte{1, 2, 3, 4}}
	encoded := m.Encode()
	require.Equal(t, []byte{4, 1, 2, 3, 4}, encoded)
}

func TestNewSessionTicketBodyTLS12Decode(t *testing.T) {
	w := wire.NewWriter()
	w.PutUint32(3600)
	w.PutVec16([]byte("opaque-ticket"))

	decoded, err := wire.DecodeNewSessionTicketTLS12(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(3600), decoded.TicketLifetimeHint)
	require.Equal(t, []byte("opaque-ticket"), decoded.Ticket)
}

func TestServerKeyExchangeRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	w.PutUint8(3) // named_curve
	w.PutUint16(uint16(constants.GroupSECP256R1))
	w.PutVec8([]byte{0x04, 0xAA, 0xBB})

	m := &wire.ServerKeyExchangeBody{
		Params:    w.Bytes(),
		Algorithm: constants.SchemeDilithium3,
		Signature: []byte("sig-bytes"),
	}
	decoded, err := wire.DecodeServerKeyExchange(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.Algorithm, decoded.Algorithm)
	require.Equal(t, m.Signature, decoded.Signature)
}

func TestFinishedRoundTrip(t *testing.T) {
	m := &wire.FinishedBody{VerifyData: []byte("12-bytes-mac")}
	decoded, err := wire.DecodeFinished(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.VerifyData, decoded.VerifyData)
}
