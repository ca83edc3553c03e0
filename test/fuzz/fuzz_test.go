// Package fuzz provides fuzz tests for the wire codec and the key-share
// completion paths, the two places untrusted network bytes reach this
// client's parsers directly.
//
// Run fuzz tests with:
//
//	go test -fuzz=FuzzDecodeClientHello -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzDecodeServerHello -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzDecodeCertificate -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzReadExtensionList -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzX25519Finish -fuzztime=30s ./test/fuzz/
//
// Run all fuzz tests sequentially:
//
//	go test -fuzz=Fuzz -fuzztime=10s ./test/fuzz/
package fuzz

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	"github.com/kemtls-go/kemtls-client/pkg/crypto"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// FuzzDecodeClientHello fuzzes the ClientHello decoder against arbitrary
// bytes, including a valid encoding as seed.
func FuzzDecodeClientHello(f *testing.F) {
	share, _ := crypto.GenerateKeyShare(constants.GroupX25519)
	var random [constants.RandomSize]byte
	_, _ = rand.Read(random[:])
	ch := &wire.ClientHelloBody{
		LegacyVersion: constants.VersionTLS12,
		Random:        random,
		SessionID:     []byte{1, 2, 3},
		CipherSuites:  []constants.CipherSuite{constants.SuiteAES128GCMSHA256},
		Extensions: wire.ExtensionList{
			{Type: constants.ExtKeyShare, Body: wire.EncodeKeyShareClientHello([]wire.KeyShareEntry{{Group: share.Group(), Data: share.Public()}})},
			{Type: constants.ExtSupportedVersions, Body: wire.EncodeSupportedVersionsClient([]constants.ProtocolVersion{constants.VersionTLS13})},
		},
	}
	f.Add(ch.Encode())

	f.Add([]byte{})
	f.Add([]byte{0, 0})
	f.Add(make([]byte, 34))
	f.Add([]byte{0x03, 0x03})

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := wire.DecodeClientHello(data)
		if err != nil {
			return
		}
		if msg != nil && len(msg.Random) != constants.RandomSize {
			t.Errorf("decoded ClientHello.Random has wrong size: %d", len(msg.Random))
		}
	})
}

// FuzzDecodeServerHello fuzzes the ServerHello/HelloRetryRequest decoder -
// the first message this client ever parses from an untrusted peer.
func FuzzDecodeServerHello(f *testing.F) {
	share, _ := crypto.GenerateKeyShare(constants.GroupX25519)
	var random [constants.RandomSize]byte
	_, _ = rand.Read(random[:])
	sh := &wire.ServerHelloBody{
		LegacyVersion: constants.VersionTLS12,
		Random:        random,
		CipherSuite:   constants.SuiteAES128GCMSHA256,
		Extensions: wire.ExtensionList{
			{Type: constants.ExtSupportedVersions, Body: wire.EncodeSupportedVersionsServer(constants.VersionTLS13)},
			{Type: constants.ExtKeyShare, Body: wire.EncodeKeyShareServerHello(wire.KeyShareEntry{Group: share.Group(), Data: share.Public()})},
		},
	}
	f.Add(sh.Encode())

	f.Add([]byte{})
	f.Add([]byte{0x03, 0x04})
	f.Add(make([]byte, constants.RandomSize+2))

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := wire.DecodeServerHello(data)
		if err != nil {
			return
		}
		// IsHelloRetryRequest must never panic on a decoded message, valid
		// or not.
		_ = msg.IsHelloRetryRequest()
	})
}

// FuzzDecodeCertificate fuzzes the TLS 1.3 Certificate message decoder,
// which recurses through a length-prefixed-24 list and a nested extension
// list per entry - the deepest nesting in the codec.
func FuzzDecodeCertificate(f *testing.F) {
	body := &wire.CertificateBody{
		CertList: []wire.CertificateEntry{{CertData: []byte{1, 2, 3, 4}}},
	}
	f.Add(body.Encode())

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add(make([]byte, 8))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = wire.DecodeCertificate(data)
	})
}

// FuzzReadExtensionList fuzzes the shared extension-list decoder every
// handshake message body calls into, including the duplicate-extension
// rejection path.
func FuzzReadExtensionList(f *testing.F) {
	w := wire.NewWriter()
	wire.WriteExtensionList(w, wire.ExtensionList{
		{Type: constants.ExtSupportedVersions, Body: []byte{3, 4}},
		{Type: constants.ExtKeyShare, Body: []byte{0, 29}},
	})
	f.Add(w.Bytes())

	f.Add([]byte{})
	f.Add([]byte{0, 0})
	f.Add([]byte{0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		r := wire.NewReader(data)
		_, _ = wire.ReadExtensionList(r)
	})
}

// FuzzX25519Finish fuzzes KeyShare.Finish for the classical group with an
// arbitrary peer value, standing in for a malicious ServerHello key_share.
func FuzzX25519Finish(f *testing.F) {
	valid, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err == nil {
		f.Add(valid.PublicKey().Bytes())
	}
	f.Add([]byte{})
	f.Add(make([]byte, 31))
	f.Add(make([]byte, 33))

	f.Fuzz(func(t *testing.T, peer []byte) {
		share, err := crypto.GenerateKeyShare(constants.GroupX25519)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = share.Finish(peer)
	})
}

// FuzzKyberFinish fuzzes KeyShare.Finish for a KEM group, where Finish must
// reject anything but exactly the scheme's ciphertext size rather than
// forwarding a mis-sized buffer into the circl decapsulation routine.
func FuzzKyberFinish(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 10))
	f.Add(make([]byte, 2048))

	f.Fuzz(func(t *testing.T, ciphertext []byte) {
		share, err := crypto.GenerateKeyShare(constants.GroupKyber768)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = share.Finish(ciphertext)
	})
}
