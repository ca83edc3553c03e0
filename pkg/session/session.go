// Package session implements the session cache adapter: byte-level
// encode/decode of resumable session values and key-exchange hints, keyed
// by server DNS name. The external Store is treated as a plain byte
// key -> value store; this package owns the structured encoding on top of
// it and an in-memory reference implementation (length-prefixed field
// serialization plus a lifetime check when a session is read back).
package session

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
)

// Key identifies a cache entry: either a full resumable session or a
// lighter-weight key-exchange group hint, both scoped to a DNS name.
type Key struct {
	Kind KeyKind
	DNS  string
}

type KeyKind uint8

const (
	KindSession KeyKind = iota
	KindHint
)

// Bytes serializes the key for use against the external byte-KV Store.
func (k Key) Bytes() []byte {
	return append([]byte{byte(k.Kind)}, []byte(k.DNS)...)
}

// Value is a cached resumable session: everything needed to attempt 1.3
// (and, for the legacy branch, 1.2) resumption on a later connection to
// the same DNS name.
type Value struct {
	Version            constants.ProtocolVersion
	CipherSuite        constants.CipherSuite
	SessionID          []byte
	Ticket             []byte
	MasterSecret       []byte // resumption_master_secret (1.3) or master_secret (1.2)
	CreatedAt          time.Time
	Lifetime           time.Duration
	AgeAdd             uint32
	UsingEMS           bool
	MaxEarlyDataSize   uint32
	QUICTransportParams []byte // nil unless the connection negotiated QUIC
}

// Expired reports whether v has outlived its advertised lifetime.
func (v *Value) Expired() bool {
	return time.Since(v.CreatedAt) > v.Lifetime
}

// ObfuscatedTicketAge computes the obfuscated_ticket_age field for the
// pre_shared_key extension (RFC 8446): the real age in milliseconds,
// plus age_add, mod 2^32.
func (v *Value) ObfuscatedTicketAge(now time.Time) uint32 {
	ageMillis := uint32(now.Sub(v.CreatedAt).Milliseconds())
	return ageMillis + v.AgeAdd
}

// Encode serializes a Value to bytes for the external byte-KV store.
func (v *Value) Encode() []byte {
	buf := make([]byte, 0, 64+len(v.SessionID)+len(v.Ticket)+len(v.MasterSecret)+len(v.QUICTransportParams))
	var tmp2 [2]byte
	var tmp4 [4]byte
	var tmp8 [8]byte

	binary.BigEndian.PutUint16(tmp2[:], uint16(v.Version))
	buf = append(buf, tmp2[:]...)
	binary.BigEndian.PutUint16(tmp2[:], uint16(v.CipherSuite))
	buf = append(buf, tmp2[:]...)

	buf = append(buf, byte(len(v.SessionID)))
	buf = append(buf, v.SessionID...)

	binary.BigEndian.PutUint16(tmp2[:], uint16(len(v.Ticket)))
	buf = append(buf, tmp2[:]...)
	buf = append(buf, v.Ticket...)

	buf = append(buf, byte(len(v.MasterSecret)))
	buf = append(buf, v.MasterSecret...)

	binary.BigEndian.PutUint64(tmp8[:], uint64(v.CreatedAt.Unix()))
	buf = append(buf, tmp8[:]...)
	binary.BigEndian.PutUint64(tmp8[:], uint64(v.Lifetime))
	buf = append(buf, tmp8[:]...)
	binary.BigEndian.PutUint32(tmp4[:], v.AgeAdd)
	buf = append(buf, tmp4[:]...)

	if v.UsingEMS {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	binary.BigEndian.PutUint32(tmp4[:], v.MaxEarlyDataSize)
	buf = append(buf, tmp4[:]...)

	binary.BigEndian.PutUint16(tmp2[:], uint16(len(v.QUICTransportParams)))
	buf = append(buf, tmp2[:]...)
	buf = append(buf, v.QUICTransportParams...)

	return buf
}

// Decode deserializes a Value previously produced by Encode.
func Decode(data []byte) (*Value, error) {
	v := &Value{}
	off := 0
	need := func(n int) error {
		if off+n > len(data) {
			return qerrors.ErrInvalidTicket
		}
		return nil
	}

	if err := need(2); err != nil {
		return nil, err
	}
	v.Version = constants.ProtocolVersion(binary.BigEndian.Uint16(data[off:]))
	off += 2

	if err := need(2); err != nil {
		return nil, err
	}
	v.CipherSuite = constants.CipherSuite(binary.BigEndian.Uint16(data[off:]))
	off += 2

	if err := need(1); err != nil {
		return nil, err
	}
	sidLen := int(data[off])
	off++
	if err := need(sidLen); err != nil {
		return nil, err
	}
	v.SessionID = append([]byte(nil), data[off:off+sidLen]...)
	off += sidLen

	if err := need(2); err != nil {
		return nil, err
	}
	ticketLen := int(binary.BigEndian.Uint16(data[off:]))
	off += 2
	if err := need(ticketLen); err != nil {
		return nil, err
	}
	v.Ticket = append([]byte(nil), data[off:off+ticketLen]...)
	off += ticketLen

	if err := need(1); err != nil {
		return nil, err
	}
	msLen := int(data[off])
	off++
	if err := need(msLen); err != nil {
		return nil, err
	}
	v.MasterSecret = append([]byte(nil), data[off:off+msLen]...)
	off += msLen

	if err := need(8); err != nil {
		return nil, err
	}
	v.CreatedAt = time.Unix(int64(binary.BigEndian.Uint64(data[off:])), 0)
	off += 8

	if err := need(8); err != nil {
		return nil, err
	}
	v.Lifetime = time.Duration(binary.BigEndian.Uint64(data[off:]))
	off += 8

	if err := need(4); err != nil {
		return nil, err
	}
	v.AgeAdd = binary.BigEndian.Uint32(data[off:])
	off += 4

	if err := need(1); err != nil {
		return nil, err
	}
	v.UsingEMS = data[off] == 1
	off++

	if err := need(4); err != nil {
		return nil, err
	}
	v.MaxEarlyDataSize = binary.BigEndian.Uint32(data[off:])
	off += 4

	if err := need(2); err != nil {
		return nil, err
	}
	qtpLen := int(binary.BigEndian.Uint16(data[off:]))
	off += 2
	if err := need(qtpLen); err != nil {
		return nil, err
	}
	v.QUICTransportParams = append([]byte(nil), data[off:off+qtpLen]...)

	return v, nil
}

// KxHint records the group the server selected on a prior connection to a
// given DNS name, so the client can skip straight to that group's key
// share on the next connection instead of offering its whole default list.
type KxHint struct {
	Group constants.NamedGroup
}

func (h KxHint) Encode() []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(h.Group))
	return b[:]
}

func DecodeKxHint(data []byte) (KxHint, error) {
	if len(data) != 2 {
		return KxHint{}, qerrors.ErrInvalidTicket
	}
	return KxHint{Group: constants.NamedGroup(binary.BigEndian.Uint16(data))}, nil
}

// Store is the external byte-level collaborator.
type Store interface {
	Get(key []byte) ([]byte, bool)
	Put(key []byte, value []byte) bool
}

// Cache is the handshake-facing adapter on top of a Store: it
// encodes/decodes Value and KxHint, the Store only ever sees opaque bytes.
type Cache struct {
	store Store
}

func NewCache(store Store) *Cache { return &Cache{store: store} }

func (c *Cache) GetSession(dnsName string) (*Value, bool) {
	raw, ok := c.store.Get(Key{Kind: KindSession, DNS: dnsName}.Bytes())
	if !ok {
		return nil, false
	}
	v, err := Decode(raw)
	if err != nil {
		return nil, false
	}
	if v.Expired() {
		return nil, false
	}
	return v, true
}

func (c *Cache) PutSession(dnsName string, v *Value) bool {
	return c.store.Put(Key{Kind: KindSession, DNS: dnsName}.Bytes(), v.Encode())
}

func (c *Cache) GetKxHint(dnsName string) (KxHint, bool) {
	raw, ok := c.store.Get(Key{Kind: KindHint, DNS: dnsName}.Bytes())
	if !ok {
		return KxHint{}, false
	}
	h, err := DecodeKxHint(raw)
	if err != nil {
		return KxHint{}, false
	}
	return h, true
}

func (c *Cache) PutKxHint(dnsName string, group constants.NamedGroup) bool {
	return c.store.Put(Key{Kind: KindHint, DNS: dnsName}.Bytes(), KxHint{Group: group}.Encode())
}

// InMemoryStore is a reference Store implementation for tests and
// single-process callers; its row id is a UUID purely for this
// implementation's own bookkeeping/debugging (e.g. log correlation), not
// part of the Store interface contract.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[string]inMemoryRow
}

type inMemoryRow struct {
	id    uuid.UUID
	value []byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]inMemoryRow)}
}

func (s *InMemoryStore) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[string(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), row.value...), true
}

func (s *InMemoryStore) Put(key []byte, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[string(key)] = inMemoryRow{id: uuid.New(), value: append([]byte(nil), value...)}
	return true
}
