// state_tls13.go implements the TLS 1.3 post-ServerHello chain:
// EncryptedExtensions, the server-authentication fork (classical signed
// CertificateVerify vs. KEMTLS implicit authentication via encapsulation to
// the server's certified KEM key), Finished, and the terminal traffic state
// handling NewSessionTicket/KeyUpdate/application data.
package handshake

import (
	"crypto/subtle"
	"time"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
	"github.com/kemtls-go/kemtls-client/pkg/keyschedule"
	"github.com/kemtls-go/kemtls-client/pkg/session"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// tls13CertificateVerifyContext is the fixed 64-space-padded context string
// RFC 8446 prescribes for the server's CertificateVerify signature.
const tls13CertificateVerifyContext = "                                                                TLS 1.3, server CertificateVerify\x00"

func wasSentByClient(cx *Context, t constants.ExtensionType) bool {
	for _, sent := range cx.ClientCH.SentExtensions {
		if sent == t {
			return true
		}
	}
	return false
}

// ExpectTLS13EncryptedExtensionsState handles the first message sent under
// the server's Handshake traffic key.
type ExpectTLS13EncryptedExtensionsState struct{}

func (ExpectTLS13EncryptedExtensionsState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeEncryptedExtensions}
}

func (ExpectTLS13EncryptedExtensionsState) Handle(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeEncryptedExtensions(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	for _, ext := range body.Extensions {
		if ext.Type == constants.ExtEarlyData {
			continue // early_data carries no client-sent counterpart to check against
		}
		if !wasSentByClient(cx, ext.Type) {
			return nil, cx.FailWith(qerrors.NewPeerMisbehaved("EncryptedExtensions carries an unsolicited extension"))
		}
	}

	if alpnExt, ok := body.Extensions.Get(constants.ExtALPN); ok {
		protos, err := wire.DecodeALPN(alpnExt.Body)
		if err != nil {
			return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
		}
		if len(protos) != 1 {
			return nil, cx.FailWith(qerrors.NewPeerMisbehaved("EncryptedExtensions.application_layer_protocol_negotiation must name exactly one protocol"))
		}
		cx.Details.NegotiatedALPN = protos[0]
	}

	if _, ok := body.Extensions.Get(constants.ExtEarlyData); ok {
		if !cx.Details.EarlyDataOffered {
			return nil, cx.FailWith(qerrors.NewPeerMisbehaved("server accepted early data the client never offered"))
		}
		cx.Details.EarlyDataAccepted = true
	}

	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))

	if cx.Details.ResumingSession != nil {
		// PSK resumption skips server (re)authentication entirely: no
		// Certificate, CertificateRequest, or CertificateVerify follows.
		return &ExpectTLS13FinishedState{}, nil
	}
	return &ExpectTLS13CertificateOrCertReqState{}, nil
}

// ExpectTLS13CertificateOrCertReqState handles the optional
// CertificateRequest ahead of the server's own Certificate.
type ExpectTLS13CertificateOrCertReqState struct{}

func (ExpectTLS13CertificateOrCertReqState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeCertificateRequest, constants.HandshakeTypeCertificate}
}

func (ExpectTLS13CertificateOrCertReqState) Handle(cx *Context, msg wire.Message) (State, error) {
	if msg.Type == constants.HandshakeTypeCertificate {
		return handleTLS13Certificate(cx, msg)
	}

	body, err := wire.DecodeCertificateRequest(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	details := &ClientAuthDetails{CertificateRequestContext: body.CertificateRequestContext}
	if schemesExt, ok := body.Extensions.Get(constants.ExtSignatureAlgorithms); ok {
		schemes, err := wire.DecodeUint16List(schemesExt.Body)
		if err != nil {
			return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
		}
		for _, s := range schemes {
			details.CompatibleSigSchemes = append(details.CompatibleSigSchemes, constants.SignatureScheme(s))
		}
	}
	if caExt, ok := body.Extensions.Get(constants.ExtCertificateAuthorities); ok {
		names, err := decodeCANames(caExt.Body)
		if err != nil {
			return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
		}
		details.CANames = names
	}
	cx.ClientAuth = details

	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))
	return &ExpectTLS13CertificateState{}, nil
}

// decodeCANames parses certificate_authorities' vector-of-vectors DER names
// (RFC 8446).
func decodeCANames(body []byte) ([][]byte, error) {
	r := wire.NewReader(body)
	outer, err := r.Sub16()
	if err != nil {
		return nil, err
	}
	var names [][]byte
	for !outer.Done() {
		name, err := outer.Vec16()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// ExpectTLS13CertificateState is reached directly when the server didn't
// send a CertificateRequest.
type ExpectTLS13CertificateState struct{}

func (ExpectTLS13CertificateState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeCertificate}
}

func (ExpectTLS13CertificateState) Handle(cx *Context, msg wire.Message) (State, error) {
	return handleTLS13Certificate(cx, msg)
}

// handleTLS13Certificate implements ExpectTLS13Certificate: chain
// validation, OCSP/SCT extraction, and the KEMTLS fork. A server whose leaf
// certificate carries a KEM public key is authenticated implicitly by the
// client's encapsulation succeeding and the server's later Finished MAC
// validating under a key only the real private-key holder could derive;
// otherwise the classical path continues to a signed CertificateVerify.
func handleTLS13Certificate(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeCertificate(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	cx.ServerCert.CertChain = cx.ServerCert.CertChain[:0]
	for _, entry := range body.CertList {
		cx.ServerCert.CertChain = append(cx.ServerCert.CertChain, entry.CertData)
	}
	if len(body.CertList) > 0 {
		if statusExt, ok := body.CertList[0].Extensions.Get(constants.ExtStatusRequest); ok {
			cx.ServerCert.OCSPResponse = statusExt.Body
		}
		if sctExt, ok := body.CertList[0].Extensions.Get(constants.ExtSignedCertTimestamp); ok {
			cx.ServerCert.SCTs = sctExt.Body
		}
	}

	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))

	if _, err := cx.CertVerifier.VerifyServerCert(cx.ServerCert.CertChain, cx.Details.DNSName, cx.ServerCert.OCSPResponse); err != nil {
		cx.Observer.RecordCertVerifyFailure()
		return nil, cx.FailWith(asAlertError(err, constants.AlertBadCertificate))
	}

	if cx.Config.EnableSCT && cx.SctVerifier != nil && len(cx.ServerCert.SCTs) > 0 {
		if err := cx.SctVerifier.VerifySCTs(cx.ServerCert.CertChain[0], cx.ServerCert.SCTs, cx.SctLogs); err != nil {
			cx.Observer.RecordSignatureVerifyFailure()
			return nil, cx.FailWith(asAlertError(err, constants.AlertBadCertificate))
		}
	}

	entity, err := cx.CertFactory.ParseEndEntity(cx.ServerCert.CertChain[0])
	if err != nil {
		return nil, cx.FailWith(asAlertError(err, constants.AlertBadCertificate))
	}

	if entity.IsKEMCert() {
		return enterKEMTLSAuthentication(cx, entity)
	}
	return &ExpectTLS13CertificateVerifyState{}, nil
}

func asAlertError(err error, fallback constants.AlertDescription) error {
	if ae, ok := err.(qerrors.AlertError); ok {
		return ae
	}
	return qerrors.NewWebPKIErrorWithAlert(err, fallback)
}

// enterKEMTLSAuthentication implements the KEMTLS fork: encapsulate to the
// server's certified KEM public key, send the ciphertext in a
// ClientKeyExchange, fold the shared secret into the key schedule to derive
// the Authenticated Handshake Secret epoch, install its traffic keys, and
// emit the client's own Finished immediately (there is no CertificateVerify
// on this path).
func enterKEMTLSAuthentication(cx *Context, entity EndEntityCert) (State, error) {
	ciphertext, sharedSecret, err := entity.Encapsulate()
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCryptoError("KEMTLS encapsulation", err))
	}

	ckeBody := (&wire.ClientKeyExchangeBody{Payload: ciphertext}).Encode()
	ckeWire := wire.Encode(constants.HandshakeTypeClientKeyExchange, ckeBody)
	cx.Transcript.AddMessage(ckeWire)
	if err := cx.IO.SendMessage(constants.ContentTypeHandshake, ckeWire, true); err != nil {
		return nil, cx.FailWith(err)
	}

	if err := cx.KeySchedule.InputSecret(sharedSecret); err != nil {
		return nil, cx.FailWith(err)
	}
	ahsHash := cx.Transcript.GetCurrentHash()

	clientAHS, err := cx.KeySchedule.Derive(keyschedule.KindClientAuthenticatedHandshakeTraffic, ahsHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	serverAHS, err := cx.KeySchedule.Derive(keyschedule.KindServerAuthenticatedHandshakeTraffic, ahsHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	cx.Secrets.ClientAuthHandshakeTraffic = clientAHS
	cx.Secrets.ServerAuthHandshakeTraffic = serverAHS

	if err := cx.InstallWriteKey(clientAHS); err != nil {
		return nil, cx.FailWith(err)
	}
	if err := cx.InstallReadKey(serverAHS); err != nil {
		return nil, cx.FailWith(err)
	}

	clientFinishedData, err := cx.KeySchedule.SignFinish(clientAHS, ahsHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	finWire := wire.Encode(constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: clientFinishedData}).Encode())
	cx.Transcript.AddMessage(finWire)
	if err := cx.IO.SendMessage(constants.ContentTypeHandshake, finWire, true); err != nil {
		return nil, cx.FailWith(err)
	}

	cx.Details.KEMTLSMode = true
	cx.Observer.RecordKEMTLSHandshake()
	return &ExpectTLS13FinishedState{}, nil
}

// ExpectTLS13CertificateVerifyState validates the server's classical
// signature over the transcript. Not reached on the KEMTLS path.
type ExpectTLS13CertificateVerifyState struct{}

func (ExpectTLS13CertificateVerifyState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeCertificateVerify}
}

func (ExpectTLS13CertificateVerifyState) Handle(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeCertificateVerify(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	transcriptHash := cx.Transcript.GetCurrentHash()
	if _, err := cx.SigVerifier.VerifyTLS13(cx.ServerCert.CertChain[0], body.Algorithm, body.Signature, transcriptHash, tls13CertificateVerifyContext); err != nil {
		cx.Observer.RecordSignatureVerifyFailure()
		return nil, cx.FailWith(asAlertError(err, constants.AlertDecryptError))
	}

	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))
	return &ExpectTLS13FinishedState{}, nil
}

// ExpectTLS13FinishedState validates the server's Finished MAC - under the
// AHS server traffic secret on the KEMTLS path, the plain HS server traffic
// secret otherwise - then ratchets to the Master Secret, handles optional
// client authentication, and emits the client's own Finished (already sent
// on the KEMTLS path).
type ExpectTLS13FinishedState struct{}

func (ExpectTLS13FinishedState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeFinished}
}

func (ExpectTLS13FinishedState) Handle(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeFinished(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	serverBaseSecret := cx.Secrets.ServerHandshakeTraffic
	if cx.Details.KEMTLSMode {
		serverBaseSecret = cx.Secrets.ServerAuthHandshakeTraffic
	}
	preFinishedHash := cx.Transcript.GetCurrentHash()
	expected, err := cx.KeySchedule.SignFinish(serverBaseSecret, preFinishedHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	if subtle.ConstantTimeCompare(expected, body.VerifyData) != 1 {
		cx.Observer.RecordDecryptError()
		return nil, cx.FailWith(qerrors.NewDecryptError("server Finished verify_data mismatch"))
	}

	cx.Transcript.AddMessage(wire.Encode(msg.Type, msg.Body))

	// Ratchet to the Master Secret. On the KEMTLS branch this is the same
	// zero-IKM HKDF-Extract as the classical path's InputEmpty, called via
	// DeriveWithHash to document that it runs from the AHS branch rather
	// than straight off the Handshake Secret.
	if cx.Details.KEMTLSMode {
		if err := cx.KeySchedule.DeriveWithHash(preFinishedHash); err != nil {
			return nil, cx.FailWith(err)
		}
	} else {
		if err := cx.KeySchedule.InputEmpty(); err != nil {
			return nil, cx.FailWith(err)
		}
	}

	masterHash := cx.Transcript.GetCurrentHash()

	if cx.ClientAuth != nil && !cx.Details.KEMTLSMode {
		if err := emitTLS13ClientAuth(cx); err != nil {
			return nil, err
		}
	}

	if !cx.Details.KEMTLSMode {
		clientFinishedSecret := cx.Secrets.ClientHandshakeTraffic
		finishedHash := cx.Transcript.GetCurrentHash()
		clientVerifyData, err := cx.KeySchedule.SignFinish(clientFinishedSecret, finishedHash)
		if err != nil {
			return nil, cx.FailWith(err)
		}
		finWire := wire.Encode(constants.HandshakeTypeFinished, (&wire.FinishedBody{VerifyData: clientVerifyData}).Encode())
		cx.Transcript.AddMessage(finWire)
		if err := cx.IO.SendMessage(constants.ContentTypeHandshake, finWire, true); err != nil {
			return nil, cx.FailWith(err)
		}
	}

	clientApp, err := cx.KeySchedule.Derive(keyschedule.KindClientApplicationTraffic, masterHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	serverApp, err := cx.KeySchedule.Derive(keyschedule.KindServerApplicationTraffic, masterHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	exporterMaster, err := cx.KeySchedule.Derive(keyschedule.KindExporterMasterSecret, masterHash)
	if err != nil {
		return nil, cx.FailWith(err)
	}
	resumptionMaster, err := cx.KeySchedule.Derive(keyschedule.KindResumptionMasterSecret, cx.Transcript.GetCurrentHash())
	if err != nil {
		return nil, cx.FailWith(err)
	}
	cx.Secrets.ClientApplicationTraffic = clientApp
	cx.Secrets.ServerApplicationTraffic = serverApp
	cx.Secrets.ExporterMaster = exporterMaster
	cx.Secrets.ResumptionMaster = resumptionMaster

	if err := cx.InstallReadKey(serverApp); err != nil {
		return nil, cx.FailWith(err)
	}
	if err := cx.InstallWriteKey(clientApp); err != nil {
		return nil, cx.FailWith(err)
	}
	cx.IO.StartTraffic()
	cx.Observer.HandshakeCompleted(time.Since(cx.Details.StartTime))

	return &ExpectTLS13TrafficState{}, nil
}

// emitTLS13ClientAuth sends the client's Certificate/CertificateVerify pair
// (or an empty Certificate, declining) in response to a CertificateRequest
// via the ClientAuthCertResolver collaborator. Never reached on the KEMTLS
// branch, which has no client-authentication analogue.
func emitTLS13ClientAuth(cx *Context) error {
	var chain [][]byte
	var signer ClientSigner
	var ok bool
	if cx.AuthResolver != nil {
		chain, signer, ok = cx.AuthResolver.Resolve(cx.ClientAuth.CANames, cx.ClientAuth.CompatibleSigSchemes)
	}
	if !ok {
		cx.ClientAuth.Declined = true
		cx.Transcript.AbandonClientAuth()
	}
	cx.ClientAuth.Chain = chain
	cx.ClientAuth.Signer = signer

	certBody := &wire.CertificateBody{CertificateRequestContext: cx.ClientAuth.CertificateRequestContext}
	for _, der := range chain {
		certBody.CertList = append(certBody.CertList, wire.CertificateEntry{CertData: der})
	}
	certWire := wire.Encode(constants.HandshakeTypeCertificate, certBody.Encode())
	cx.Transcript.AddMessage(certWire)
	if err := cx.IO.SendMessage(constants.ContentTypeHandshake, certWire, true); err != nil {
		return cx.FailWith(err)
	}

	if !ok {
		return nil
	}

	transcriptHash := cx.Transcript.GetCurrentHash()
	clientCtx := "TLS 1.3, client CertificateVerify\x00"
	toSign := make([]byte, 0, 64+len(clientCtx)+len(transcriptHash))
	for i := 0; i < 64; i++ {
		toSign = append(toSign, 0x20)
	}
	toSign = append(toSign, []byte(clientCtx)...)
	toSign = append(toSign, transcriptHash...)

	sig, err := signer.Sign(toSign)
	if err != nil {
		return cx.FailWith(qerrors.NewCryptoError("client CertificateVerify", err))
	}
	cvBody := &wire.CertificateVerifyBody{Algorithm: signer.Scheme(), Signature: sig}
	cvWire := wire.Encode(constants.HandshakeTypeCertificateVerify, cvBody.Encode())
	cx.Transcript.AddMessage(cvWire)
	if err := cx.IO.SendMessage(constants.ContentTypeHandshake, cvWire, true); err != nil {
		return cx.FailWith(err)
	}
	return nil
}

// ExpectTLS13TrafficState is the terminal state: application data flows
// freely, NewSessionTicket updates the resumption cache, and
// KeyUpdate ratchets the relevant traffic secret.
type ExpectTLS13TrafficState struct {
	Terminal
}

func (ExpectTLS13TrafficState) ExpectedMessages() []constants.HandshakeType {
	return []constants.HandshakeType{constants.HandshakeTypeNewSessionTicket, constants.HandshakeTypeKeyUpdate}
}

func (s ExpectTLS13TrafficState) Handle(cx *Context, msg wire.Message) (State, error) {
	switch msg.Type {
	case constants.HandshakeTypeNewSessionTicket:
		return s.handleNewSessionTicket(cx, msg)
	case constants.HandshakeTypeKeyUpdate:
		return s.handleKeyUpdate(cx, msg)
	default:
		return s.Terminal.Handle(cx, msg)
	}
}

func (s ExpectTLS13TrafficState) handleNewSessionTicket(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeNewSessionTicket(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	psk, err := cx.KeySchedule.DeriveTicketPSK(cx.Secrets.ResumptionMaster, body.TicketNonce)
	if err != nil {
		return nil, cx.FailWith(err)
	}

	var maxEarlyData uint32
	if edExt, ok := body.Extensions.Get(constants.ExtEarlyData); ok {
		maxEarlyData, _ = wire.DecodeEarlyDataTicket(edExt.Body)
	}

	if cx.SessionCache != nil {
		cx.SessionCache.PutSession(cx.Details.DNSName, &session.Value{
			Version:          constants.VersionTLS13,
			CipherSuite:      cx.Suite,
			Ticket:           body.Ticket,
			MasterSecret:     psk,
			CreatedAt:        time.Now(),
			Lifetime:         time.Duration(body.TicketLifetime) * time.Second,
			AgeAdd:           body.TicketAgeAdd,
			UsingEMS:         cx.Details.UsingEMS,
			MaxEarlyDataSize: maxEarlyData,
		})
	}
	return s, nil
}

func (s ExpectTLS13TrafficState) handleKeyUpdate(cx *Context, msg wire.Message) (State, error) {
	body, err := wire.DecodeKeyUpdate(msg.Body)
	if err != nil {
		return nil, cx.FailWith(qerrors.NewCorruptMessagePayload(constants.ContentTypeHandshake, err))
	}

	next, err := cx.KeySchedule.UpdateTrafficSecret(cx.Secrets.ServerApplicationTraffic)
	if err != nil {
		cx.Observer.RecordKeyUpdateFailed()
		return nil, cx.FailWith(err)
	}
	cx.Secrets.ServerApplicationTraffic = next
	if err := cx.InstallReadKey(next); err != nil {
		cx.Observer.RecordKeyUpdateFailed()
		return nil, cx.FailWith(err)
	}
	cx.Observer.RecordKeyUpdateCompleted()

	if body.RequestUpdate == constants.KeyUpdateRequested {
		cx.Observer.RecordKeyUpdateInitiated()
		ownNext, err := cx.KeySchedule.UpdateTrafficSecret(cx.Secrets.ClientApplicationTraffic)
		if err != nil {
			return nil, cx.FailWith(err)
		}
		cx.Secrets.ClientApplicationTraffic = ownNext
		kuWire := wire.Encode(constants.HandshakeTypeKeyUpdate, (&wire.KeyUpdateBody{RequestUpdate: constants.KeyUpdateNotRequested}).Encode())
		if err := cx.IO.SendMessage(constants.ContentTypeHandshake, kuWire, true); err != nil {
			return nil, cx.FailWith(err)
		}
		if err := cx.InstallWriteKey(ownNext); err != nil {
			return nil, cx.FailWith(err)
		}
	}

	return s, nil
}
