package crypto_test

import (
	"testing"

	"github.com/kemtls-go/kemtls-client/internal/constants"
	"github.com/kemtls-go/kemtls-client/pkg/crypto"
)

// TestCSTConfig verifies CST configuration.
func TestCSTConfig(t *testing.T) {
	config := crypto.DefaultCSTConfig()

	if !crypto.FIPSMode() {
		if config.EnablePairwiseTest {
			t.Error("pairwise test should be disabled in non-FIPS mode by default")
		}
		if config.EnableRNGHealthCheck {
			t.Error("RNG health check should be disabled in non-FIPS mode by default")
		}
	}

	if config.RNGHealthCheckInterval == 0 {
		t.Error("RNGHealthCheckInterval should not be zero")
	}
}

// TestPairwiseConsistencyTestKeyShare_X25519 verifies the classical DH path.
func TestPairwiseConsistencyTestKeyShare_X25519(t *testing.T) {
	result := crypto.PairwiseConsistencyTestKeyShare(constants.GroupX25519)
	if !result.Passed {
		t.Errorf("pairwise consistency test failed: %v", result.Error)
	}
}

// TestPairwiseConsistencyTestKeyShare_Kyber verifies the KEM encapsulate/
// decapsulate path for both offered Kyber sizes.
func TestPairwiseConsistencyTestKeyShare_Kyber(t *testing.T) {
	for _, group := range []constants.NamedGroup{constants.GroupKyber768, constants.GroupKyber1024} {
		t.Run(group.String(), func(t *testing.T) {
			result := crypto.PairwiseConsistencyTestKeyShare(group)
			if !result.Passed {
				t.Errorf("pairwise consistency test failed: %v", result.Error)
			}
		})
	}
}

// TestRNGHealthCheck verifies RNG health check.
func TestRNGHealthCheck(t *testing.T) {
	result := crypto.RNGHealthCheck()
	if !result.Passed {
		t.Errorf("RNG health check failed: %v", result.Error)
	}
}

// TestContinuousRNGTest verifies continuous RNG test.
func TestContinuousRNGTest(t *testing.T) {
	sample1 := make([]byte, 32)
	if err := crypto.SecureRandom(sample1); err != nil {
		t.Fatalf("SecureRandom failed: %v", err)
	}

	result := crypto.ContinuousRNGTest(sample1)
	if !result.Passed {
		t.Errorf("first continuous RNG test should pass: %v", result.Error)
	}

	sample2 := make([]byte, 32)
	if err := crypto.SecureRandom(sample2); err != nil {
		t.Fatalf("SecureRandom failed: %v", err)
	}

	result = crypto.ContinuousRNGTest(sample2)
	if !result.Passed {
		t.Errorf("continuous RNG test with different data should pass: %v", result.Error)
	}
}

// TestGenerateKeyShareWithCST verifies key share generation under CST.
func TestGenerateKeyShareWithCST(t *testing.T) {
	for _, group := range []constants.NamedGroup{constants.GroupX25519, constants.GroupKyber768, constants.GroupKyber1024} {
		t.Run(group.String(), func(t *testing.T) {
			share, err := crypto.GenerateKeyShareWithCST(group)
			if err != nil {
				t.Fatalf("GenerateKeyShareWithCST failed: %v", err)
			}
			if share == nil {
				t.Fatal("key share should not be nil")
			}
			if len(share.Public()) == 0 {
				t.Error("key share public value should not be empty")
			}
			if share.Group() != group {
				t.Errorf("key share group = %v, want %v", share.Group(), group)
			}
		})
	}
}

// TestSecureRandomWithCST verifies SecureRandom with CST.
func TestSecureRandomWithCST(t *testing.T) {
	buf := make([]byte, 32)
	if err := crypto.SecureRandomWithCST(buf); err != nil {
		t.Fatalf("SecureRandomWithCST failed: %v", err)
	}

	allZeros := true
	for _, b := range buf {
		if b != 0 {
			allZeros = false
			break
		}
	}
	if allZeros {
		t.Error("SecureRandomWithCST produced all zeros")
	}
}

// TestCSTEnabled verifies CSTEnabled runs without error.
func TestCSTEnabled(t *testing.T) {
	_ = crypto.CSTEnabled()
}

// TestGetCSTConfig verifies GetCSTConfig.
func TestGetCSTConfig(t *testing.T) {
	config := crypto.GetCSTConfig()
	if config.RNGHealthCheckInterval == 0 {
		t.Error("RNGHealthCheckInterval should not be zero")
	}
}

// TestCSTInFIPSMode documents CST behavior in FIPS mode.
func TestCSTInFIPSMode(t *testing.T) {
	if crypto.FIPSMode() {
		t.Log("running in FIPS mode - CST is enabled by default")
		config := crypto.GetCSTConfig()
		if !config.EnablePairwiseTest {
			t.Error("pairwise test should be enabled in FIPS mode")
		}
		if !config.EnableRNGHealthCheck {
			t.Error("RNG health check should be enabled in FIPS mode")
		}
	} else {
		t.Log("running in standard mode - CST is disabled by default")
	}
}

// TestMultipleRNGHealthChecks runs multiple health checks to verify consistency.
func TestMultipleRNGHealthChecks(t *testing.T) {
	for i := 0; i < 10; i++ {
		result := crypto.RNGHealthCheck()
		if !result.Passed {
			t.Errorf("RNG health check %d failed: %v", i, result.Error)
		}
	}
}

// TestCSTResultStructure verifies CSTResult structure.
func TestCSTResultStructure(t *testing.T) {
	result := crypto.PairwiseConsistencyTestKeyShare(constants.GroupX25519)
	if result == nil {
		t.Fatal("result should not be nil")
	}
	if result.Passed && result.Error != nil {
		t.Error("passed result should have nil error")
	}
}
