// details.go implements the data model: the scratchpads carried across
// states by move, one state transferring what it still needs into its
// successor and dropping the rest.
package handshake

import (
	"time"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	"github.com/kemtls-go/kemtls-client/pkg/crypto"
	"github.com/kemtls-go/kemtls-client/pkg/session"
)

// HandshakeDetails is the mutable scratchpad carried across states.
type HandshakeDetails struct {
	DNSName         string
	ClientRandom    [constants.RandomSize]byte
	ServerRandom    [constants.RandomSize]byte
	SessionID       []byte
	ResumingSession *session.Value
	UsingEMS        bool
	ExtraExts       []ExtraExtension

	HashAtClientRecvdServerHello []byte
	SentTLS13FakeCCS             bool
	StartTime                    time.Time

	// NegotiatedGroup is the key-share group ServerHello selected. The TLS
	// 1.2 legacy branch reads it back to find the matching KeyShare for
	// ClientKeyExchange; the TLS 1.3 CertificateVerify check has no use for
	// it since RFC 8446 signature verification doesn't depend on the group.
	NegotiatedGroup constants.NamedGroup

	EarlyDataOffered  bool
	EarlyDataAccepted bool

	// ReceivedHRR/HRRSelectedGroup record a HelloRetryRequest response: at
	// most one is legal per connection, and the retried ClientHello
	// re-offers every key share of the first ClientHello plus one for the
	// group the server named.
	ReceivedHRR      bool
	HRRSelectedGroup constants.NamedGroup

	// KEMTLSMode records whether the KEMTLS implicit-authentication fork
	// was taken for this connection, so later states (ExpectTLS13Finished)
	// know whether the server's Finished MAC key is the AHS or plain HS
	// traffic secret.
	KEMTLSMode bool

	// NegotiatedALPN is the protocol the server selected, if any.
	NegotiatedALPN string

	// MasterSecret12 / UsingTickets12 / MaySendCertStatus12 / Resuming12 /
	// ClientFinishedSent12 are TLS 1.2 legacy-branch-only bookkeeping.
	MasterSecret12      []byte
	UsingTickets12      bool
	MaySendCertStatus12 bool
	Resuming12          bool
	ClientFinishedSent12 bool
}

// ClientHelloDetails records what the client offered, so later states can
// check the server's response against it.
type ClientHelloDetails struct {
	SentExtensions   []constants.ExtensionType
	OfferedKeyShares []crypto.KeyShare
}

func (d *ClientHelloDetails) FindKeyShare(group constants.NamedGroup) crypto.KeyShare {
	for _, ks := range d.OfferedKeyShares {
		if ks.Group() == group {
			return ks
		}
	}
	return nil
}

// ServerCertDetails accumulates during server authentication.
type ServerCertDetails struct {
	CertChain    [][]byte
	OCSPResponse []byte
	SCTs         []byte
}

// ServerKXDetails is populated only by the TLS 1.2 legacy branch.
// peerPublic and the four derived key/IV slices are internal to the 1.2
// ServerKeyExchange/key-block handoff (state_tls12.go) and never read
// outside this package, hence the unexported fields on an otherwise
// exported struct.
type ServerKXDetails struct {
	Params    []byte
	Algorithm constants.SignatureScheme
	Signature []byte

	peerPublic []byte

	clientWriteKey, clientWriteIV []byte
	serverWriteKey, serverWriteIV []byte
}

// ClientAuthDetails is populated when the server requests client
// authentication.
type ClientAuthDetails struct {
	CertificateRequestContext []byte
	CompatibleSigSchemes      []constants.SignatureScheme
	CANames                   [][]byte
	Chain                     [][]byte
	Signer                    ClientSigner
	Declined                  bool
}
