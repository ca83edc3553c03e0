// Package keyschedule implements the TLS 1.3 key schedule: an
// HKDF-Extract/Expand-Label state machine that derives every secret named
// in RFC 8446, extended with the KEMTLS "derive_with_hash" ratchet the
// Authenticated Handshake Secret (AHS) epoch needs. Built on top of
// pkg/crypto's ExpandLabel/Extract primitives.
package keyschedule

import (
	"github.com/kemtls-go/kemtls-client/pkg/crypto"
)

// Kind identifies a named derivation off the current PRK.
type Kind int

const (
	KindClientEarlyTraffic Kind = iota
	KindEarlyExporterMaster
	KindResumptionPSKBinderKey
	KindClientHandshakeTraffic
	KindServerHandshakeTraffic
	KindClientAuthenticatedHandshakeTraffic
	KindServerAuthenticatedHandshakeTraffic
	KindClientApplicationTraffic
	KindServerApplicationTraffic
	KindExporterMasterSecret
	KindResumptionMasterSecret
)

func (k Kind) label() string {
	switch k {
	case KindClientEarlyTraffic:
		return "c e traffic"
	case KindEarlyExporterMaster:
		return "e exp master"
	case KindResumptionPSKBinderKey:
		return "res binder"
	case KindClientHandshakeTraffic:
		return "c hs traffic"
	case KindServerHandshakeTraffic:
		return "s hs traffic"
	case KindClientAuthenticatedHandshakeTraffic:
		return "c ahs traffic"
	case KindServerAuthenticatedHandshakeTraffic:
		return "s ahs traffic"
	case KindClientApplicationTraffic:
		return "c ap traffic"
	case KindServerApplicationTraffic:
		return "s ap traffic"
	case KindExporterMasterSecret:
		return "exp master"
	case KindResumptionMasterSecret:
		return "res master"
	default:
		return "unknown"
	}
}

// Schedule is the central HKDF state machine, owned by the shared
// connection context - not by any individual handshake state - since
// multiple states mutate it across the handshake's lifetime.
type Schedule struct {
	hashSize int
	current  []byte // current PRK, the salt for the next Extract
}

// New creates a key schedule over hashSize (32 for SHA-256, 48 for
// SHA-384), seeded with the no-PSK Early Secret (HKDF-Extract(0, 0)).
func New(hashSize int) (*Schedule, error) {
	return NewFromPSK(hashSize, make([]byte, hashSize))
}

// NewFromPSK seeds the schedule's Early Secret directly from a resumption
// PSK (HKDF-Extract(0, psk)), for the pre_shared_key ClientHello path
// where the binder must be computed before the connection's negotiated
// cipher suite - and hence the eventual shared Schedule - exists.
func NewFromPSK(hashSize int, psk []byte) (*Schedule, error) {
	zeroSalt := make([]byte, hashSize)
	prk, err := crypto.Extract(hashSize, zeroSalt, psk)
	if err != nil {
		return nil, err
	}
	return &Schedule{hashSize: hashSize, current: prk}, nil
}

func (s *Schedule) HashSize() int { return s.hashSize }

// deriveSecretFromCurrent implements RFC 8446's Derive-Secret(Secret,
// Label, Messages) = HKDF-Expand-Label(Secret, Label, Hash(Messages),
// Hash.length), the intermediate step HKDF-Extract's next salt is always
// drawn from ("derived" in the RFC's key schedule diagram).
func (s *Schedule) deriveSecretFromCurrent(label string, transcriptHash []byte) ([]byte, error) {
	return crypto.ExpandLabel(s.hashSize, s.current, label, transcriptHash, s.hashSize)
}

// nextSalt computes Derive-Secret(current, "derived", "") ahead of the next
// Extract, per RFC 8446's key schedule diagram.
func (s *Schedule) nextSalt() ([]byte, error) {
	emptyHash, err := crypto.ExpandLabel(s.hashSize, s.current, "derived", emptyTranscriptHash(s.hashSize), s.hashSize)
	if err != nil {
		return nil, err
	}
	return emptyHash, nil
}

func emptyTranscriptHash(hashSize int) []byte {
	// Hash("") under the bound algorithm, taken from the digests
	// precomputed in hmac.go rather than hashed on each call.
	if hashSize == 48 {
		return sha384Empty[:]
	}
	return sha256Empty[:]
}

// InputSecret performs HKDF-Extract with ikm as the new input keying
// material, salted by Derive-Secret(current, "derived", "") - i.e. the next
// stage of the schedule's extract chain.
func (s *Schedule) InputSecret(ikm []byte) error {
	salt, err := s.nextSalt()
	if err != nil {
		return err
	}
	prk, err := crypto.Extract(s.hashSize, salt, ikm)
	if err != nil {
		return err
	}
	s.current = prk
	return nil
}

// InputEmpty performs the all-zero-IKM extract step, used both for the
// early->handshake transition with no PSK and for the handshake->master
// ratchet after Finished processing.
func (s *Schedule) InputEmpty() error {
	return s.InputSecret(make([]byte, s.hashSize))
}

// DeriveWithHash is the KEMTLS-specific ratchet: equivalent to InputEmpty
// in effect, but named separately because it is invoked from a
// different point in the state machine (after the implicit-auth
// encapsulation, scoped to the AHS branch) and documents that distinction
// for readers of the handshake states.
func (s *Schedule) DeriveWithHash(transcriptHash []byte) error {
	_ = transcriptHash // the ratchet itself does not consume the hash; the
	// AHS secrets derived immediately afterward do.
	return s.InputEmpty()
}

// Derive computes the named secret at the current PRK stage over
// transcriptHash.
func (s *Schedule) Derive(kind Kind, transcriptHash []byte) ([]byte, error) {
	return s.deriveSecretFromCurrent(kind.label(), transcriptHash)
}

// BinderKey derives the PSK binder key (RFC 8446's
// "binder_key = Derive-Secret(., 'res binder', '')") from the current
// Early Secret. Only meaningful on a schedule built with NewFromPSK.
func (s *Schedule) BinderKey() ([]byte, error) {
	return s.deriveSecretFromCurrent("res binder", emptyTranscriptHash(s.hashSize))
}

// HashBytes hashes data under the schedule's bound hash algorithm, for the
// PSK binder's "transcript hash" of a not-yet-sent partial ClientHello,
// which predates pkg/transcript's own Hash being bound to a cipher suite.
func (s *Schedule) HashBytes(data []byte) ([]byte, error) {
	hn, err := hashConstructorFor(s.hashSize)
	if err != nil {
		return nil, err
	}
	h := hn()
	h.Write(data)
	return h.Sum(nil), nil
}

// TrafficKeys derives the AEAD key and IV for a traffic secret, per RFC
// 8446.
func (s *Schedule) TrafficKeys(trafficSecret []byte, keyLen int) (key, iv []byte, err error) {
	key, err = crypto.ExpandLabel(s.hashSize, trafficSecret, "key", nil, keyLen)
	if err != nil {
		return nil, nil, err
	}
	iv, err = crypto.ExpandLabel(s.hashSize, trafficSecret, "iv", nil, 12)
	if err != nil {
		return nil, nil, err
	}
	return key, iv, nil
}

// UpdateTrafficSecret implements KeyUpdate's ratchet (RFC 8446):
// next_secret = HKDF-Expand-Label(current_secret, "traffic upd", "", Hash.len).
func (s *Schedule) UpdateTrafficSecret(secret []byte) ([]byte, error) {
	return crypto.ExpandLabel(s.hashSize, secret, "traffic upd", nil, s.hashSize)
}

// DeriveTicketPSK implements NewSessionTicket's resumption PSK derivation
// (RFC 8446): HKDF-Expand-Label(resumption_master_secret,
// "resumption", ticket_nonce, Hash.length).
func (s *Schedule) DeriveTicketPSK(resumptionMaster, nonce []byte) ([]byte, error) {
	return crypto.ExpandLabel(s.hashSize, resumptionMaster, "resumption", nonce, s.hashSize)
}

// SignFinish computes the Finished verify_data (RFC 8446):
// HMAC(finished_key, transcript_hash), where
// finished_key = HKDF-Expand-Label(base_secret, "finished", "", Hash.length).
func (s *Schedule) SignFinish(baseSecret, transcriptHash []byte) ([]byte, error) {
	finishedKey, err := crypto.ExpandLabel(s.hashSize, baseSecret, "finished", nil, s.hashSize)
	if err != nil {
		return nil, err
	}
	return hmacSum(s.hashSize, finishedKey, transcriptHash)
}

// SignVerifyData computes the PSK binder (RFC 8446): an HMAC
// under a key derived from baseKey (the binder key, i.e. the early secret's
// "res binder" or "ext binder" derivation) as
// HKDF-Expand-Label(baseKey, "finished", "", Hash.length), over
// handshakeHash, the transcript hash of ClientHello truncated just before
// the binders list.
func (s *Schedule) SignVerifyData(baseKey, handshakeHash []byte) ([]byte, error) {
	finishedKey, err := crypto.ExpandLabel(s.hashSize, baseKey, "finished", nil, s.hashSize)
	if err != nil {
		return nil, err
	}
	return hmacSum(s.hashSize, finishedKey, handshakeHash)
}
