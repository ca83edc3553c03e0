// Package crypto implements Power-On Self-Tests (POST) for FIPS 140-3
// compliance.
//
// IMPORTANT: POST is production code, not test code. FIPS 140-3 requires
// self-tests to run at module load time (not just during development
// testing) to verify the cryptographic implementation before any operations
// are performed. This catches issues like corrupted binaries, hardware
// failures, or tampered code.
//
// POST runs automatically when the crypto package is loaded and verifies:
//   - HKDF-Extract/Expand (RFC 5869 test vector, and a TLS 1.3
//     HKDF-Expand-Label sensitivity check)
//   - AES-256-GCM (the all-zero key/IV/plaintext test vector from the
//     GCM specification's test case 13)
//   - ML-KEM-768 (encapsulation/decapsulation consistency; circl ships no
//     exported deterministic KAT seed API, so this is a self-consistency
//     check rather than an externally sourced known-answer vector)
//
// In FIPS mode, POST failures cause a panic to prevent use of potentially
// compromised cryptographic implementations. In standard mode, failures are
// recorded in the result but do not prevent operation.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/kemtls-go/kemtls-client/internal/constants"
)

// POST KAT (Known Answer Test) values.
var (
	// HKDF-Extract KAT: RFC 5869, Test Case 1 (SHA-256).
	postKATHKDFIKM, _  = hex.DecodeString("0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	postKATHKDFSalt, _ = hex.DecodeString("000102030405060708090a0b0c")
	postKATHKDFPRK, _  = hex.DecodeString("077709362c2e32df0ddc3f0dc47bba6390b6c73bb50f9c3122ec844ad7c2b3e5")

	// AES-256-GCM KAT: the GCM specification's all-zero test case 13
	// (256-bit key, empty plaintext and AAD).
	postKATAESKey          = make([]byte, 32)
	postKATAESNonce        = make([]byte, 12)
	postKATAESExpectedTag, _ = hex.DecodeString("530f8afbc74536b9a963b4f1c4cb738b")
)

// POSTResult contains the results of Power-On Self-Tests.
type POSTResult struct {
	Passed     bool
	HKDFPassed bool
	AESPassed  bool
	KEMPassed  bool
	Errors     []string
}

var (
	postResult     *POSTResult
	postResultOnce sync.Once
	postRan        bool
)

// RunPOST executes the Power-On Self-Tests and returns the results.
// Safe to call multiple times; the tests only run once.
func RunPOST() *POSTResult {
	postResultOnce.Do(func() {
		postResult = &POSTResult{Passed: true}

		if err := runHKDFKAT(); err != nil {
			postResult.HKDFPassed = false
			postResult.Passed = false
			postResult.Errors = append(postResult.Errors, fmt.Sprintf("HKDF KAT failed: %v", err))
		} else {
			postResult.HKDFPassed = true
		}

		if err := runAESGCMKAT(); err != nil {
			postResult.AESPassed = false
			postResult.Passed = false
			postResult.Errors = append(postResult.Errors, fmt.Sprintf("AES-GCM KAT failed: %v", err))
		} else {
			postResult.AESPassed = true
		}

		if err := runKEMConsistencyTest(); err != nil {
			postResult.KEMPassed = false
			postResult.Passed = false
			postResult.Errors = append(postResult.Errors, fmt.Sprintf("KEM consistency test failed: %v", err))
		} else {
			postResult.KEMPassed = true
		}

		postRan = true

		if FIPSMode() && !postResult.Passed {
			panic(fmt.Sprintf("FIPS POST failed: %v", postResult.Errors))
		}
	})

	return postResult
}

// POSTRan reports whether POST has been executed.
func POSTRan() bool { return postRan }

// POSTPassed reports whether POST has run and all tests passed.
func POSTPassed() bool {
	if postResult == nil {
		return false
	}
	return postResult.Passed
}

// runHKDFKAT verifies HKDF-Extract against RFC 5869's test vector, then
// sanity-checks that ExpandLabel is sensitive to its label (a corrupted
// label table would otherwise silently derive the wrong traffic secret).
func runHKDFKAT() error {
	prk, err := Extract(sha256.Size, postKATHKDFSalt, postKATHKDFIKM)
	if err != nil {
		return fmt.Errorf("Extract failed: %w", err)
	}
	if !bytes.Equal(prk, postKATHKDFPRK) {
		return fmt.Errorf("HKDF-Extract mismatch: got %x, want %x", prk, postKATHKDFPRK)
	}

	secret := make([]byte, sha256.Size)
	out1, err := ExpandLabel(sha256.Size, secret, "post test a", nil, 32)
	if err != nil {
		return fmt.Errorf("ExpandLabel failed: %w", err)
	}
	out2, err := ExpandLabel(sha256.Size, secret, "post test b", nil, 32)
	if err != nil {
		return fmt.Errorf("ExpandLabel failed: %w", err)
	}
	if bytes.Equal(out1, out2) {
		return fmt.Errorf("ExpandLabel produced identical output for distinct labels")
	}
	out3, err := ExpandLabel(sha256.Size, secret, "post test a", nil, 32)
	if err != nil {
		return fmt.Errorf("ExpandLabel failed: %w", err)
	}
	if !bytes.Equal(out1, out3) {
		return fmt.Errorf("ExpandLabel is non-deterministic for identical inputs")
	}

	return nil
}

// runAESGCMKAT verifies AES-256-GCM against the GCM specification's
// all-zero test case 13.
func runAESGCMKAT() error {
	block, err := aes.NewCipher(postKATAESKey)
	if err != nil {
		return fmt.Errorf("NewCipher failed: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("NewGCM failed: %w", err)
	}

	tag := aesgcm.Seal(nil, postKATAESNonce, nil, nil)
	if !bytes.Equal(tag, postKATAESExpectedTag) {
		return fmt.Errorf("AES-GCM tag mismatch: got %x, want %x", tag, postKATAESExpectedTag)
	}

	plaintext, err := aesgcm.Open(nil, postKATAESNonce, tag, nil)
	if err != nil {
		return fmt.Errorf("AES-GCM decrypt failed: %w", err)
	}
	if len(plaintext) != 0 {
		return fmt.Errorf("AES-GCM decrypt produced non-empty plaintext for empty input")
	}

	return nil
}

// runKEMConsistencyTest verifies that a freshly generated Kyber768 key
// share's encapsulation and decapsulation agree, and that sizes match the
// scheme's declared constants.
func runKEMConsistencyTest() error {
	share, err := GenerateKeyShare(constants.GroupKyber768)
	if err != nil {
		return fmt.Errorf("GenerateKeyShare failed: %w", err)
	}

	scheme, ok := kemSchemeForGroup(constants.GroupKyber768)
	if !ok {
		return fmt.Errorf("no KEM scheme registered for Kyber768")
	}

	pub, err := scheme.UnmarshalBinaryPublicKey(share.Public())
	if err != nil {
		return fmt.Errorf("UnmarshalBinaryPublicKey failed: %w", err)
	}

	ct, ss1, err := scheme.Encapsulate(pub)
	if err != nil {
		return fmt.Errorf("Encapsulate failed: %w", err)
	}
	if len(ct) != scheme.CiphertextSize() {
		return fmt.Errorf("ciphertext size mismatch: got %d, want %d", len(ct), scheme.CiphertextSize())
	}

	ss2, err := share.Finish(ct)
	if err != nil {
		return fmt.Errorf("Finish (decapsulate) failed: %w", err)
	}
	if len(ss2) != scheme.SharedKeySize() {
		return fmt.Errorf("shared secret size mismatch: got %d, want %d", len(ss2), scheme.SharedKeySize())
	}
	if !bytes.Equal(ss1, ss2) {
		return fmt.Errorf("shared secret mismatch after decapsulation")
	}

	return nil
}

// ModuleIntegrity reports on the integrity of the POST KAT values
// themselves, guarding against the vectors being silently altered.
type ModuleIntegrity struct {
	ExpectedHash string
	ActualHash   string
	Verified     bool
}

var (
	postIntegrity     *ModuleIntegrity
	postIntegrityOnce sync.Once
)

// CheckModuleIntegrity verifies the POST KAT constants have not been
// tampered with by comparing their hash against the value computed when
// this file was written.
func CheckModuleIntegrity() *ModuleIntegrity {
	// SHA-256 over IKM || salt || PRK || AES key || AES nonce || AES tag.
	const postKATIntegrityHash = "5494159073c2158411cf5b3040c75def2be1f2bf9b9021ec95ca3b7be14c51ca"

	postIntegrityOnce.Do(func() {
		h := sha256.New()
		h.Write(postKATHKDFIKM)
		h.Write(postKATHKDFSalt)
		h.Write(postKATHKDFPRK)
		h.Write(postKATAESKey)
		h.Write(postKATAESNonce)
		h.Write(postKATAESExpectedTag)
		actualHash := hex.EncodeToString(h.Sum(nil))

		postIntegrity = &ModuleIntegrity{
			ExpectedHash: postKATIntegrityHash,
			ActualHash:   actualHash,
			Verified:     actualHash == postKATIntegrityHash,
		}
	})

	return postIntegrity
}

func init() {
	RunPOST()
}
