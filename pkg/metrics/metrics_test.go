package metrics

import (
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	labels := Labels{"instance": "test"}
	c := NewCollector(labels)

	if c == nil {
		t.Fatal("expected non-nil collector")
	}

	snap := c.Snapshot()
	if snap.Labels["instance"] != "test" {
		t.Errorf("expected label instance=test, got %v", snap.Labels)
	}
}

func TestCollectorHandshakeLifecycle(t *testing.T) {
	c := NewCollector(nil)

	c.HandshakeStarted()
	c.HandshakeStarted()
	snap := c.Snapshot()
	if snap.HandshakesActive != 2 {
		t.Errorf("expected 2 active handshakes, got %d", snap.HandshakesActive)
	}
	if snap.HandshakesStarted != 2 {
		t.Errorf("expected 2 started handshakes, got %d", snap.HandshakesStarted)
	}

	c.HandshakeCompleted(100 * time.Millisecond)
	snap = c.Snapshot()
	if snap.HandshakesActive != 1 {
		t.Errorf("expected 1 active handshake, got %d", snap.HandshakesActive)
	}
	if snap.HandshakesCompleted != 1 {
		t.Errorf("expected 1 completed handshake, got %d", snap.HandshakesCompleted)
	}

	c.HandshakeFailed()
	snap = c.Snapshot()
	if snap.HandshakesFailed != 1 {
		t.Errorf("expected 1 failed handshake, got %d", snap.HandshakesFailed)
	}
	if snap.HandshakesActive != 0 {
		t.Errorf("expected 0 active handshakes, got %d", snap.HandshakesActive)
	}
}

func TestCollectorProtocolShapeMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordStateTransition()
	c.RecordStateTransition()
	c.RecordHelloRetryRequest()
	c.RecordKEMTLSHandshake()
	c.RecordSessionResumption()

	snap := c.Snapshot()
	if snap.StateTransitions != 2 {
		t.Errorf("expected 2 state transitions, got %d", snap.StateTransitions)
	}
	if snap.HelloRetryRequests != 1 {
		t.Errorf("expected 1 hello retry request, got %d", snap.HelloRetryRequests)
	}
	if snap.KEMTLSHandshakes != 1 {
		t.Errorf("expected 1 KEMTLS handshake, got %d", snap.KEMTLSHandshakes)
	}
	if snap.SessionResumptions != 1 {
		t.Errorf("expected 1 session resumption, got %d", snap.SessionResumptions)
	}
}

func TestCollectorTrafficMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordBytesSent(1000)
	c.RecordBytesSent(500)
	c.RecordBytesReceived(2000)

	snap := c.Snapshot()
	if snap.BytesSent != 1500 {
		t.Errorf("expected 1500 bytes sent, got %d", snap.BytesSent)
	}
	if snap.BytesReceived != 2000 {
		t.Errorf("expected 2000 bytes received, got %d", snap.BytesReceived)
	}
}

func TestCollectorKeyScheduleMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordKeyDerivation(10 * time.Microsecond)
	c.RecordKeyDerivation(20 * time.Microsecond)
	c.RecordKeyUpdateInitiated()
	c.RecordKeyUpdateCompleted()
	c.RecordKeyUpdateFailed()

	snap := c.Snapshot()
	if snap.KeyDerivations != 2 {
		t.Errorf("expected 2 key derivations, got %d", snap.KeyDerivations)
	}
	if snap.KeyUpdatesInitiated != 1 {
		t.Errorf("expected 1 key update initiated, got %d", snap.KeyUpdatesInitiated)
	}
	if snap.KeyUpdatesCompleted != 1 {
		t.Errorf("expected 1 key update completed, got %d", snap.KeyUpdatesCompleted)
	}
	if snap.KeyUpdatesFailed != 1 {
		t.Errorf("expected 1 key update failed, got %d", snap.KeyUpdatesFailed)
	}
}

func TestCollectorFaultMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.RecordAlertSent()
	c.RecordCertVerifyFailure()
	c.RecordSignatureVerifyFailure()
	c.RecordDecryptError()
	c.RecordEncryptError()
	c.RecordProtocolError()

	snap := c.Snapshot()
	if snap.AlertsSent != 1 {
		t.Errorf("expected 1 alert sent, got %d", snap.AlertsSent)
	}
	if snap.CertVerifyFailures != 1 {
		t.Errorf("expected 1 cert verify failure, got %d", snap.CertVerifyFailures)
	}
	if snap.SignatureVerifyFailures != 1 {
		t.Errorf("expected 1 signature verify failure, got %d", snap.SignatureVerifyFailures)
	}
	if snap.DecryptErrors != 1 {
		t.Errorf("expected 1 decrypt error, got %d", snap.DecryptErrors)
	}
	if snap.EncryptErrors != 1 {
		t.Errorf("expected 1 encrypt error, got %d", snap.EncryptErrors)
	}
	if snap.ProtocolErrors != 1 {
		t.Errorf("expected 1 protocol error, got %d", snap.ProtocolErrors)
	}
}

func TestCollectorLatencyMetrics(t *testing.T) {
	c := NewCollector(nil)

	c.HandshakeCompleted(100 * time.Millisecond)
	c.HandshakeCompleted(200 * time.Millisecond)
	c.RecordKeyDerivation(10 * time.Microsecond)

	snap := c.Snapshot()
	if snap.HandshakeLatency.Count != 2 {
		t.Errorf("expected 2 handshake latency observations, got %d", snap.HandshakeLatency.Count)
	}
	if snap.HandshakeLatency.Mean != 150 {
		t.Errorf("expected mean handshake latency 150ms, got %.2f", snap.HandshakeLatency.Mean)
	}
	if snap.KeyDerivationLatency.Count != 1 {
		t.Errorf("expected 1 key derivation latency observation, got %d", snap.KeyDerivationLatency.Count)
	}
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector(nil)

	c.HandshakeStarted()
	c.RecordBytesSent(1000)
	c.RecordAlertSent()

	snap := c.Snapshot()
	if snap.HandshakesActive != 1 || snap.BytesSent != 1000 {
		t.Fatal("metrics not recorded")
	}

	c.Reset()

	snap = c.Snapshot()
	if snap.HandshakesActive != 0 {
		t.Errorf("expected 0 active handshakes after reset, got %d", snap.HandshakesActive)
	}
	if snap.BytesSent != 0 {
		t.Errorf("expected 0 bytes sent after reset, got %d", snap.BytesSent)
	}
	if snap.AlertsSent != 0 {
		t.Errorf("expected 0 alerts sent after reset, got %d", snap.AlertsSent)
	}
}

func TestCollectorUptime(t *testing.T) {
	c := NewCollector(nil)
	time.Sleep(10 * time.Millisecond)

	snap := c.Snapshot()
	if snap.Uptime < 10*time.Millisecond {
		t.Errorf("expected uptime >= 10ms, got %v", snap.Uptime)
	}
}

func TestGlobalCollector(t *testing.T) {
	// Get global collector
	g := Global()
	if g == nil {
		t.Fatal("expected non-nil global collector")
	}

	// Should return same instance
	g2 := Global()
	if g != g2 {
		t.Error("expected same global collector instance")
	}

	// Set custom global
	custom := NewCollector(Labels{"custom": "true"})
	SetGlobal(custom)

	// Note: SetGlobal replaces the instance Global returns from now on
	// This test just verifies the setter doesn't panic
}

func TestCollectorConcurrency(t *testing.T) {
	c := NewCollector(nil)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.HandshakeStarted()
				c.RecordBytesSent(uint64(j))
				c.HandshakeCompleted(time.Duration(j) * time.Millisecond)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	snap := c.Snapshot()
	if snap.HandshakesStarted != 1000 {
		t.Errorf("expected 1000 started handshakes, got %d", snap.HandshakesStarted)
	}
	if snap.HandshakesActive != 0 {
		t.Errorf("expected 0 active handshakes, got %d", snap.HandshakesActive)
	}
}
