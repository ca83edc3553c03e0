// state_tls12.go implements the TLS 1.2 legacy branch: ECDHE_RSA key
// exchange only (the only 1.2 suites this client offers, per
// offeredCipherSuites), optional client authentication, and both the full
// and abbreviated (session-id resumption) handshakes.
package handshake

import (
	"crypto/subtle"
	"time"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
	"github.com/kemtls-go/kemtls-client/pkg/crypto"
	"github.com/kemtls-go/kemtls-client/pkg/session"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// enterTLS12LegacyBranch implements completeServerHello's 1.2 tail: record
// server_random (already done by the caller), detect EMS and
// session-ticket support, determine resumption by session_id match, and
// route to full or abbreviated continuation.
func enterTLS12LegacyBranch(cx *Context, body *wire.ServerHelloBody) (State, error) {
	if _, ok := body.Extensions.Get(constants.ExtExtendedMasterSecret); ok {
		cx.Details.UsingEMS = true
	}
	if _, ok := body.Extensions.Get(constants.ExtSessionTicket); ok {
		cx.Details.UsingTickets12 = true
	}
	if _, ok := body.Extensions.Get(constants.ExtStatusRequest); ok {
		cx.Details.MaySendCertStatus12 = true
	}

	resuming := cx.Details.ResumingSession != nil &&
		len(body.SessionID) > 0 &&
		string(body.SessionID) == string(cx.Details.ResumingSession.SessionID) &&
		cx.Details.ResumingSession.CipherSuite == cx.Suite

	if !resuming {
		cx.Details.ResumingSession = nil
		return &ExpectTLS12CertificateState{}, nil
	}

	cx.Details.Resuming12 = true
	cx.Details.MasterSecret12 = cx.Details.ResumingSession.MasterSecret
	cx.Observer.RecordSessionResumption()
	return &ExpectTLS12CCSState{}, nil
}

// ExpectTLS12CertificateState handles the server's Certificate message on
// the full (non-resuming) 1.2 path.
type ExpectTLS12CertificateState struct{}

func (ExpectTLS12CertificateState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeCertificate}
}

func (ExpectTLS12CertificateState) Handle(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeCertificateTLS12(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}
	if len(body.CertList) == 0 {
		return nil, cx.FailWith(&qerrors.NoCertificatesPresented{})
	}

	cx.ServerCert.CertChain = body.CertList
	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))

	if _, err := cx.CertVerifier.VerifyServerCert(cx.ServerCert.CertChain, cx.Details.DNSName, nil); err != nil {
		cx.Observer.RecordCertVerifyFailure()
		return nil, cx.FailWith(asAlertError(err, constants.AlertBadCertificate))
	}

	return &ExpectTLS12ServerKeyExchangeState{}, nil
}

// ExpectTLS12ServerKeyExchangeState handles the signed ECDHE params this
// client's only offered 1.2 suites (ECDHE_RSA) always carry.
type ExpectTLS12ServerKeyExchangeState struct{}

func (ExpectTLS12ServerKeyExchangeState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeServerKeyExchange}
}

func (ExpectTLS12ServerKeyExchangeState) Handle(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeServerKeyExchange(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	group, peerPublic, err := parseECDHEServerParams(body.Params)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	signed := make([]byte, 0, 64+len(body.Params))
	signed = append(signed, cx.Details.ClientRandom[:]...)
	signed = append(signed, cx.Details.ServerRandom[:]...)
	signed = append(signed, body.Params...)
	if _, err := cx.SigVerifier.VerifyTLS13(cx.ServerCert.CertChain[0], body.Algorithm, body.Signature, signed, ""); err != nil {
		cx.Observer.RecordSignatureVerifyFailure()
		return nil, cx.FailWith(asAlertError(err, constants.AlertDecryptError))
	}

	ourShare, err := crypto.GenerateKeyShare(group)
	if err != nil {
		return nil, cx.FailWith(err)
	}

	cx.ServerKX = ServerKXDetails{Params: body.Params, Algorithm: body.Algorithm, Signature: body.Signature}
	cx.Details.NegotiatedGroup = group
	cx.ClientCH.OfferedKeyShares = append(cx.ClientCH.OfferedKeyShares, ourShare)
	cx.ServerKX.peerPublic = peerPublic

	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))
	return &ExpectTLS12CertificateRequestOrServerHelloDoneState{}, nil
}

// parseECDHEServerParams decodes ServerECDHParams (RFC 4492):
// curve_type(1) = named_curve(3), namedcurve(2), point<1..2^8-1>. This
// client never offers any other curve_type, so anything else is rejected.
func parseECDHEServerParams(params []byte) (constants.NamedGroup, []byte, error) {
	r := wire.NewReader(params)
	curveType, err := r.Uint8()
	if err != nil {
		return 0, nil, err
	}
	const namedCurveType = 3
	if curveType != namedCurveType {
		return 0, nil, qerrors.ErrShortRead
	}
	group, err := r.Uint16()
	if err != nil {
		return 0, nil, err
	}
	pub, err := r.Vec8()
	if err != nil {
		return 0, nil, err
	}
	return constants.NamedGroup(group), pub, nil
}

// ExpectTLS12CertificateRequestOrServerHelloDoneState handles the optional
// CertificateRequest ahead of ServerHelloDone.
type ExpectTLS12CertificateRequestOrServerHelloDoneState struct{}

func (ExpectTLS12CertificateRequestOrServerHelloDoneState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeCertificateRequest, constants.HandshakeTypeServerHelloDone}
}

func (ExpectTLS12CertificateRequestOrServerHelloDoneState) Handle(cx *Context, msg wire.Message) (State, error) {
	if msg.Type == constants.HandshakeTypeServerHelloDone {
		return ExpectTLS12ServerHelloDoneState{}.Handle(cx, msg)
	}

	body, err := wire.DecodeCertificateRequestTLS12(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}
	cx.ClientAuth = &ClientAuthDetails{
		CompatibleSigSchemes: body.SigSchemes,
		CANames:              body.CANames,
	}
	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))
	return &ExpectTLS12ServerHelloDoneState{}, nil
}

// ExpectTLS12ServerHelloDoneState is reached directly when no
// CertificateRequest preceded ServerHelloDone.
type ExpectTLS12ServerHelloDoneState struct{}

func (ExpectTLS12ServerHelloDoneState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeServerHelloDone}
}

func (ExpectTLS12ServerHelloDoneState) Handle(cx *Context, msg wire.Message) (State, error) {
	if _, err := wire.DecodeServerHelloDone(msg.Body); err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}
	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))
	return completeTLS12ClientFlight(cx)
}

// completeTLS12ClientFlight implements the client's full-handshake
// response to ServerHelloDone (RFC 5246): optional Certificate/
// CertificateVerify, ClientKeyExchange, ChangeCipherSpec, Finished.
func completeTLS12ClientFlight(cx *Context) (State, error) {
	var clientSigner ClientSigner
	if cx.ClientAuth != nil {
		var chain [][]byte
		var ok bool
		if cx.AuthResolver != nil {
			chain, clientSigner, ok = cx.AuthResolver.Resolve(cx.ClientAuth.CANames, cx.ClientAuth.CompatibleSigSchemes)
		}
		if !ok {
			cx.ClientAuth.Declined = true
		}
		cx.ClientAuth.Chain = chain

		certBody := &wire.CertificateBodyTLS12{CertList: chain}
		certWire := wire.Encode(constants.HandshakeTypeCertificate, certBody.Encode())
		cx.Transcript.AddMessage(certWire)
		if err := cx.IO.SendMessage(constants.ContentTypeHandshake, certWire, false); err != nil {
			return nil, cx.FailWith(err)
		}
	}

	group := cx.Details.NegotiatedGroup
	ourShare := cx.ClientCH.FindKeyShare(group)
	if ourShare == nil {
		return nil, cx.FailWith(qerrors.NewPeerMisbehaved("no key share generated for the negotiated 1.2 curve"))
	}
	preMaster, err := ourShare.Finish(cx.ServerKX.peerPublic)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCryptoError("TLS 1.2 ClientKeyExchange", err))
	}

	ckeBody := &wire.ClientKeyExchangeBodyTLS12{Payload: ourShare.Public()}
	ckeWire := wire.Encode(constants.HandshakeTypeClientKeyExchange, ckeBody.Encode())
	cx.Transcript.AddMessage(ckeWire)
	// The EMS session_hash covers the transcript through ClientKeyExchange,
	// before any client CertificateVerify is added.
	sessionHash := cx.Transcript.GetCurrentHash()
	if err := cx.IO.SendMessage(constants.ContentTypeHandshake, ckeWire, false); err != nil {
		return nil, cx.FailWith(err)
	}

	if cx.ClientAuth != nil && !cx.ClientAuth.Declined && clientSigner != nil {
		handshakeHash := cx.Transcript.GetCurrentHash()
		sig, err := clientSigner.Sign(handshakeHash)
		if err != nil {
			return nil, cx.FailWith(qerrors.NewCryptoError("TLS 1.2 client CertificateVerify", err))
		}
		cvBody := &wire.CertificateVerifyBody{Algorithm: clientSigner.Scheme(), Signature: sig}
		cvWire := wire.Encode(constants.HandshakeTypeCertificateVerify, cvBody.Encode())
		cx.Transcript.AddMessage(cvWire)
		if err := cx.IO.SendMessage(constants.ContentTypeHandshake, cvWire, false); err != nil {
			return nil, cx.FailWith(err)
		}
	}

	hashSize := cx.Suite.HashOutputSize()
	var masterSecret []byte
	if cx.Details.UsingEMS {
		masterSecret, err = crypto.MasterSecretTLS12EMS(hashSize, preMaster, sessionHash)
	} else {
		masterSecret, err = crypto.MasterSecretTLS12(hashSize, preMaster, cx.Details.ClientRandom[:], cx.Details.ServerRandom[:])
	}
	if err != nil {
		return nil, cx.FailWith(err)
	}
	cx.Details.MasterSecret12 = masterSecret

	keyLen := constants.AESKeySize
	ivLen := constants.AESNonceSize
	keyBlock, err := crypto.KeyBlockTLS12(hashSize, masterSecret, cx.Details.ClientRandom[:], cx.Details.ServerRandom[:], 2*(keyLen+ivLen))
	if err != nil {
		return nil, cx.FailWith(err)
	}
	clientWriteKey := keyBlock[0:keyLen]
	serverWriteKey := keyBlock[keyLen : 2*keyLen]
	clientWriteIV := keyBlock[2*keyLen : 2*keyLen+ivLen]
	serverWriteIV := keyBlock[2*keyLen+ivLen : 2*keyLen+2*ivLen]
	cx.ServerKX.clientWriteKey, cx.ServerKX.clientWriteIV = clientWriteKey, clientWriteIV
	cx.ServerKX.serverWriteKey, cx.ServerKX.serverWriteIV = serverWriteKey, serverWriteIV

	if err := cx.IO.SendMessage(constants.ContentTypeChangeCipherSpec, []byte{1}, false); err != nil {
		return nil, cx.FailWith(err)
	}
	if err := cx.InstallWriteKeyRaw(clientWriteKey, clientWriteIV); err != nil {
		return nil, cx.FailWith(err)
	}

	finishedHash := cx.Transcript.GetCurrentHash()
	verifyData, err := crypto.VerifyDataTLS12(hashSize, masterSecret, "client finished", finishedHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	finWire := wire.Encode(constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: verifyData}).Encode())
	cx.Transcript.AddMessage(finWire)
	if err := cx.IO.SendMessage(constants.ContentTypeHandshake, finWire, true); err != nil {
		return nil, cx.FailWith(err)
	}
	cx.Details.ClientFinishedSent12 = true

	return &ExpectTLS12CCSState{}, nil
}

// ExpectTLS12CCSState waits for the server's ChangeCipherSpec record -
// the epoch boundary after which the server's Finished (and everything
// else) arrives under the negotiated traffic keys. Reached directly from
// enterTLS12LegacyBranch on the abbreviated (resuming) path, or from
// completeTLS12ClientFlight on the full path.
type ExpectTLS12CCSState struct{}

func (ExpectTLS12CCSState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeChangeCipherSpecSentinel}
}

func (ExpectTLS12CCSState) Handle(cx *Context, msg wire.Message) (State, error) {
	hashSize := cx.Suite.HashOutputSize()

	if cx.Details.Resuming12 {
		keyLen := constants.AESKeySize
		ivLen := constants.AESNonceSize
		keyBlock, err := crypto.KeyBlockTLS12(hashSize, cx.Details.MasterSecret12, cx.Details.ClientRandom[:], cx.Details.ServerRandom[:], 2*(keyLen+ivLen))
		if err != nil {
			return nil, cx.FailWith(err)
		}
		cx.ServerKX.clientWriteKey = keyBlock[0:keyLen]
		cx.ServerKX.serverWriteKey = keyBlock[keyLen : 2*keyLen]
		cx.ServerKX.clientWriteIV = keyBlock[2*keyLen : 2*keyLen+ivLen]
		cx.ServerKX.serverWriteIV = keyBlock[2*keyLen+ivLen : 2*keyLen+2*ivLen]
	}

	if err := cx.InstallReadKeyRaw(cx.ServerKX.serverWriteKey, cx.ServerKX.serverWriteIV); err != nil {
		return nil, cx.FailWith(err)
	}
	return &ExpectTLS12FinishedState{}, nil
}

// ExpectTLS12FinishedState validates the server's Finished MAC and, on the
// abbreviated path, sends the client's own CCS/Finished only now (the full
// path already sent its Finished in completeTLS12ClientFlight).
type ExpectTLS12FinishedState struct{}

func (ExpectTLS12FinishedState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeFinished}
}

func (ExpectTLS12FinishedState) Handle(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeFinished(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	hashSize := cx.Suite.HashOutputSize()
	preFinishedHash := cx.Transcript.GetCurrentHash()
	expected, err := crypto.VerifyDataTLS12(hashSize, cx.Details.MasterSecret12, "server finished", preFinishedHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	if subtle.ConstantTimeCompare(expected, body.VerifyData) != 1 {
		cx.Observer.RecordDecryptError()
		return nil, cx.FailWith(qerrors.NewDecryptError("server Finished verify_data mismatch"))
	}
	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))

	if !cx.Details.ClientFinishedSent12 {
		if err := cx.IO.SendMessage(constants.ContentTypeChangeCipherSpec, []byte{1}, false); err != nil {
			return nil, cx.FailWith(err)
		}
		if err := cx.InstallWriteKeyRaw(cx.ServerKX.clientWriteKey, cx.ServerKX.clientWriteIV); err != nil {
			return nil, cx.FailWith(err)
		}
		finishedHash := cx.Transcript.GetCurrentHash()
		verifyData, err := crypto.VerifyDataTLS12(hashSize, cx.Details.MasterSecret12, "client finished", finishedHash)
		if err != nil {
			return nil, cx.FailWith(err)
		}
		finWire := wire.Encode(constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: verifyData}).Encode())
		cx.Transcript.AddMessage(finWire)
		if err := cx.IO.SendMessage(constants.ContentTypeHandshake, finWire, true); err != nil {
			return nil, cx.FailWith(err)
		}
		cx.Details.ClientFinishedSent12 = true
	}

	cx.IO.StartTraffic()
	cx.Observer.HandshakeCompleted(time.Since(cx.Details.StartTime))
	return &ExpectTLS12TrafficState{}, nil
}

// ExpectTLS12TrafficState is the 1.2 legacy branch's terminal state: it
// accepts application data (handled outside the dispatch loop, matching
// ExpectTLS13Traffic) and RFC 5077 NewSessionTicket for cache population.
type ExpectTLS12TrafficState struct {
	Terminal
}

func (ExpectTLS12TrafficState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeNewSessionTicket}
}

func (s ExpectTLS12TrafficState) Handle(cx *Context, msg wire.Message) (State, error) {
	if msg.Type != constants.HandshakeTypeNewSessionTicket {
		return s.Terminal.Handle(cx, msg)
	}

	body, err := wire.DecodeNewSessionTicketTLS12(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	if cx.SessionCache != nil {
		cx.SessionCache.PutSession(cx.Details.DNSName, &session.Value{
			Version:      constants.VersionTLS12,
			CipherSuite:  cx.Suite,
			SessionID:    cx.Details.SessionID,
			Ticket:       body.Ticket,
			MasterSecret: cx.Details.MasterSecret12,
			CreatedAt:    time.Now(),
			Lifetime:     time.Duration(body.TicketLifetimeHint) * time.Second,
			UsingEMS:     cx.Details.UsingEMS,
		})
	}
	return s, nil
}
