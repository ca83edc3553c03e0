// cst.go implements Conditional Self-Tests (CST) for FIPS 140-3 compliance.
//
// Conditional Self-Tests run during specific cryptographic operations rather
// than at module load (that is POST, post.go). This build checks two things:
// pairwise consistency of a freshly generated key share, and DRBG health of
// the OS CSPRNG. In FIPS mode a CST failure panics rather than returning an
// error, since continuing would risk using a compromised key or RNG output.
package crypto

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kemtls-go/kemtls-client/internal/constants"
)

// CSTConfig configures Conditional Self-Test behavior.
type CSTConfig struct {
	EnablePairwiseTest     bool
	EnableRNGHealthCheck   bool
	RNGHealthCheckInterval uint64
}

// DefaultCSTConfig enables all tests in FIPS mode, none otherwise.
func DefaultCSTConfig() CSTConfig {
	return CSTConfig{
		EnablePairwiseTest:     FIPSMode(),
		EnableRNGHealthCheck:   FIPSMode(),
		RNGHealthCheckInterval: 1000,
	}
}

var (
	cstConfig     CSTConfig
	cstConfigOnce sync.Once
	rngCallCount  atomic.Uint64
	lastRNGOutput []byte
	lastRNGMutex  sync.Mutex
)

// InitCST sets the CST configuration. Must be called before any
// cryptographic operation if the caller wants non-default behavior.
func InitCST(config CSTConfig) {
	cstConfigOnce.Do(func() { cstConfig = config })
}

func getConfig() CSTConfig {
	cstConfigOnce.Do(func() { cstConfig = DefaultCSTConfig() })
	return cstConfig
}

// CSTResult is the outcome of one Conditional Self-Test.
type CSTResult struct {
	Passed bool
	Error  error
}

// PairwiseConsistencyTestKeyShare verifies that a freshly generated key
// share's public/private halves are mutually consistent: for classical
// groups, two independent shares agree on a DH secret in both directions;
// for KEM groups, a self-encapsulation against the share's own public key
// decapsulates to the same secret.
func PairwiseConsistencyTestKeyShare(group constants.NamedGroup) *CSTResult {
	share, err := GenerateKeyShare(group)
	if err != nil {
		return &CSTResult{Passed: false, Error: fmt.Errorf("key share generation failed: %w", err)}
	}

	if scheme, ok := kemSchemeForGroup(group); ok {
		pub, err := scheme.UnmarshalBinaryPublicKey(share.Public())
		if err != nil {
			return &CSTResult{Passed: false, Error: fmt.Errorf("unmarshal public key failed: %w", err)}
		}
		seed := make([]byte, scheme.EncapsulationSeedSize())
		if err := SecureRandom(seed); err != nil {
			return &CSTResult{Passed: false, Error: err}
		}
		ct, ssEnc, err := scheme.EncapsulateDeterministically(pub, seed)
		if err != nil {
			return &CSTResult{Passed: false, Error: fmt.Errorf("encapsulation failed: %w", err)}
		}
		ssDec, err := share.Finish(ct)
		if err != nil {
			return &CSTResult{Passed: false, Error: fmt.Errorf("decapsulation failed: %w", err)}
		}
		if !ConstantTimeCompare(ssEnc, ssDec) {
			return &CSTResult{Passed: false, Error: fmt.Errorf("encapsulated and decapsulated secrets do not match")}
		}
		return &CSTResult{Passed: true}
	}

	peer, err := GenerateKeyShare(group)
	if err != nil {
		return &CSTResult{Passed: false, Error: fmt.Errorf("peer key share generation failed: %w", err)}
	}
	secret1, err := share.Finish(peer.Public())
	if err != nil {
		return &CSTResult{Passed: false, Error: fmt.Errorf("DH operation 1 failed: %w", err)}
	}
	secret2, err := peer.Finish(share.Public())
	if err != nil {
		return &CSTResult{Passed: false, Error: fmt.Errorf("DH operation 2 failed: %w", err)}
	}
	if !ConstantTimeCompare(secret1, secret2) {
		return &CSTResult{Passed: false, Error: fmt.Errorf("shared secrets do not match")}
	}
	return &CSTResult{Passed: true}
}

func runPairwiseTest(group constants.NamedGroup) error {
	config := getConfig()
	if !config.EnablePairwiseTest {
		return nil
	}
	result := PairwiseConsistencyTestKeyShare(group)
	if !result.Passed {
		if FIPSMode() {
			panic(fmt.Sprintf("FIPS CST failed: %s pairwise consistency test: %v", group.String(), result.Error))
		}
		return result.Error
	}
	return nil
}

// RNGHealthCheck verifies the CSPRNG produces non-zero, non-repeating,
// non-constant output across two independent samples.
func RNGHealthCheck() *CSTResult {
	sample1 := make([]byte, 32)
	sample2 := make([]byte, 32)

	if err := SecureRandom(sample1); err != nil {
		return &CSTResult{Passed: false, Error: fmt.Errorf("RNG read 1 failed: %w", err)}
	}
	if err := SecureRandom(sample2); err != nil {
		return &CSTResult{Passed: false, Error: fmt.Errorf("RNG read 2 failed: %w", err)}
	}

	if isAllZero(sample1) {
		return &CSTResult{Passed: false, Error: fmt.Errorf("RNG produced all-zero sample 1")}
	}
	if isAllZero(sample2) {
		return &CSTResult{Passed: false, Error: fmt.Errorf("RNG produced all-zero sample 2")}
	}
	if bytes.Equal(sample1, sample2) {
		return &CSTResult{Passed: false, Error: fmt.Errorf("RNG produced identical consecutive samples")}
	}
	if isConstant(sample1) {
		return &CSTResult{Passed: false, Error: fmt.Errorf("RNG sample 1 has no variation")}
	}
	if isConstant(sample2) {
		return &CSTResult{Passed: false, Error: fmt.Errorf("RNG sample 2 has no variation")}
	}
	return &CSTResult{Passed: true}
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func isConstant(b []byte) bool {
	for i := 1; i < len(b); i++ {
		if b[i] != b[0] {
			return false
		}
	}
	return true
}

// ContinuousRNGTest compares output against the previous CSPRNG read and
// fails if they match, per the FIPS 140-3 continuous RNG test requirement.
func ContinuousRNGTest(output []byte) *CSTResult {
	lastRNGMutex.Lock()
	defer lastRNGMutex.Unlock()

	if lastRNGOutput == nil {
		lastRNGOutput = append([]byte(nil), output...)
		return &CSTResult{Passed: true}
	}
	if len(output) == len(lastRNGOutput) && bytes.Equal(output, lastRNGOutput) {
		return &CSTResult{Passed: false, Error: fmt.Errorf("RNG produced repeated output")}
	}
	lastRNGOutput = append(lastRNGOutput[:0], output...)
	return &CSTResult{Passed: true}
}

func runRNGHealthCheck() error {
	config := getConfig()
	if !config.EnableRNGHealthCheck {
		return nil
	}
	count := rngCallCount.Add(1)
	if count%config.RNGHealthCheckInterval == 0 {
		result := RNGHealthCheck()
		if !result.Passed {
			if FIPSMode() {
				panic(fmt.Sprintf("FIPS CST failed: RNG health check: %v", result.Error))
			}
			return result.Error
		}
	}
	return nil
}

// GenerateKeyShareWithCST generates a key share and runs its pairwise
// consistency test before returning it.
func GenerateKeyShareWithCST(group constants.NamedGroup) (KeyShare, error) {
	share, err := GenerateKeyShare(group)
	if err != nil {
		return nil, err
	}
	if err := runPairwiseTest(group); err != nil {
		return nil, fmt.Errorf("pairwise consistency test failed: %w", err)
	}
	return share, nil
}

// SecureRandomWithCST reads random bytes and, in FIPS mode, runs the
// continuous RNG test against them before returning.
func SecureRandomWithCST(b []byte) error {
	if err := SecureRandom(b); err != nil {
		return err
	}
	if FIPSMode() {
		result := ContinuousRNGTest(b)
		if !result.Passed {
			panic(fmt.Sprintf("FIPS CST failed: continuous RNG test: %v", result.Error))
		}
	}
	return runRNGHealthCheck()
}

// CSTEnabled reports whether any Conditional Self-Test is active.
func CSTEnabled() bool {
	config := getConfig()
	return config.EnablePairwiseTest || config.EnableRNGHealthCheck
}

// GetCSTConfig returns the active CST configuration.
func GetCSTConfig() CSTConfig { return getConfig() }
