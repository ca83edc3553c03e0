//go:build !fips
// +build !fips

// Package crypto implements the cryptographic primitives backing the
// handshake engine: HKDF-Expand-Label, record AEADs, and key-share groups.
//
// This file is compiled when the "fips" build tag is NOT specified.
// In standard mode, all supported algorithms are available and self-test
// failures are recorded without stopping operation.
package crypto

// FIPSMode reports whether the binary was built in FIPS mode.
// When false, all supported algorithms (AES-256-GCM and ChaCha20-Poly1305) are available.
func FIPSMode() bool { return false }
