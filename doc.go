// Package kemtls implements the client-side handshake state machine for a
// TLS 1.2/1.3 connection extended with post-quantum KEM-based authentication
// (KEMTLS).
//
// The core drives a connection from the initial outbound ClientHello through
// server authentication, key establishment, and the transition to
// application-data traffic keys. In the KEMTLS variant the server's
// long-term KEM public key serves as an implicit authenticator: the client
// encapsulates to it and the resulting shared secret feeds the Finished MAC,
// so no server CertificateVerify signature is ever sent.
//
// # Quick start
//
// Driving a handshake end to end:
//
//	cx := handshake.NewContext(handshake.Default(), io, certVerifier, sigVerifier, certFactory, cache, observer)
//	first, err := handshake.EnterInitial(cx, "example.test") // sends the ClientHello
//	d := handshake.NewDispatcher(cx, first)
//	err = d.Advance(msg) // once per handshake message received from the server
//
// # Package structure
//
//   - pkg/handshake: the state dispatcher and one type per handshake phase
//   - pkg/transcript: the running, on-demand hash of handshake messages
//   - pkg/keyschedule: the TLS 1.3 HKDF secret chain
//   - pkg/session: the byte-level session cache adapter and resumption tickets
//   - pkg/wire: handshake message wire types and their codec
//   - pkg/crypto: AEAD, key-share groups (classical and post-quantum), RNG
//   - pkg/oid: the required PQ SignatureScheme/KEM codepoint -> DER tables
//   - pkg/metrics: observability hooks (counters, OpenTelemetry spans)
//   - pkg/certtest: test-only collaborator implementations
//
// Record-layer framing, X.509 chain verification, and the async I/O harness
// are external collaborators described only by the interfaces in
// pkg/handshake; this module does not implement them.
package kemtls
