//go:build fips
// +build fips

// Package crypto implements the cryptographic primitives backing the
// handshake engine: HKDF-Expand-Label, record AEADs, and key-share groups.
//
// This file is compiled when the "fips" build tag is specified.
// In FIPS mode, POST failures panic and the conditional self-tests
// (pairwise consistency, RNG health) run; the algorithm set is the same as
// in standard mode.
package crypto

// FIPSMode reports whether the binary was built in FIPS mode.
// When true, self-test failures are fatal; NewAEAD and the key-share groups
// do not consult it, so ChaCha20-Poly1305 and X25519 stay available.
func FIPSMode() bool { return true }
