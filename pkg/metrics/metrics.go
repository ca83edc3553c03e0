// Package metrics provides observability primitives for the kemtls-client
// handshake engine: counters and latency histograms over handshake
// lifecycle events (start/complete/fail), state transitions, alerts, key
// derivations and rekeys, plus a pluggable Tracer interface compatible
// with OpenTelemetry (see tracing.go, otel_enabled.go).
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates metrics from handshake connections.
type Collector struct {
	// Handshake lifecycle metrics
	handshakesActive    atomic.Uint64
	handshakesStarted   atomic.Uint64
	handshakesCompleted atomic.Uint64
	handshakesFailed    atomic.Uint64
	handshakeLatency    *Histogram

	// Protocol shape metrics
	stateTransitions    atomic.Uint64
	helloRetryRequests  atomic.Uint64
	kemtlsHandshakes    atomic.Uint64
	sessionResumptions  atomic.Uint64

	// Application traffic metrics (post-handshake)
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	// Key schedule metrics
	keyDerivations       atomic.Uint64
	keyUpdatesInitiated  atomic.Uint64
	keyUpdatesCompleted  atomic.Uint64
	keyUpdatesFailed     atomic.Uint64

	// Fault metrics
	alertsSent               atomic.Uint64
	certVerifyFailures       atomic.Uint64
	signatureVerifyFailures  atomic.Uint64
	decryptErrors            atomic.Uint64
	encryptErrors            atomic.Uint64
	protocolErrors           atomic.Uint64

	// Performance histograms
	keyDerivationLatency *Histogram

	// Creation time for uptime tracking
	createdAt time.Time

	// Labels for this collector instance
	labels Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	return &Collector{
		handshakeLatency:     NewHistogram(HandshakeLatencyBuckets),
		keyDerivationLatency: NewHistogram(LatencyBuckets),
		createdAt:            time.Now(),
		labels:               labels,
	}
}

// Default bucket configurations for histograms.
var (
	// HandshakeLatencyBuckets for end-to-end handshake duration (milliseconds).
	HandshakeLatencyBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	// LatencyBuckets for single key-derivation operations (microseconds).
	LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// --- Handshake Lifecycle Metrics ---

// HandshakeStarted increments active and started handshake counters, called
// when the Dispatcher enters the initial state.
func (c *Collector) HandshakeStarted() {
	c.handshakesActive.Add(1)
	c.handshakesStarted.Add(1)
}

// HandshakeCompleted decrements the active counter and records completion,
// called when ExpectTLS13Traffic is first entered.
func (c *Collector) HandshakeCompleted(d time.Duration) {
	c.decrementActive()
	c.handshakesCompleted.Add(1)
	c.handshakeLatency.Observe(float64(d.Milliseconds()))
}

// HandshakeFailed decrements the active counter and records a failure,
// called whenever the Dispatcher returns a fatal error.
func (c *Collector) HandshakeFailed() {
	c.decrementActive()
	c.handshakesFailed.Add(1)
}

func (c *Collector) decrementActive() {
	for {
		current := c.handshakesActive.Load()
		if current == 0 {
			return
		}
		if c.handshakesActive.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// --- Protocol Shape Metrics ---

// RecordStateTransition increments the count of state transitions the
// Dispatcher has performed.
func (c *Collector) RecordStateTransition() {
	c.stateTransitions.Add(1)
}

// RecordHelloRetryRequest records that ExpectServerHelloOrHelloRetryRequest
// rejected the server's first ServerHello and retried.
func (c *Collector) RecordHelloRetryRequest() {
	c.helloRetryRequests.Add(1)
}

// RecordKEMTLSHandshake records that the KEMTLS fork of
// ExpectTLS13Certificate was taken instead of the signed CertificateVerify
// path.
func (c *Collector) RecordKEMTLSHandshake() {
	c.kemtlsHandshakes.Add(1)
}

// RecordSessionResumption records that a PSK offered in ClientHello was
// accepted by the server.
func (c *Collector) RecordSessionResumption() {
	c.sessionResumptions.Add(1)
}

// --- Traffic Metrics ---

// RecordBytesSent adds to the application bytes sent counter.
func (c *Collector) RecordBytesSent(n uint64) {
	c.bytesSent.Add(n)
}

// RecordBytesReceived adds to the application bytes received counter.
func (c *Collector) RecordBytesReceived(n uint64) {
	c.bytesReceived.Add(n)
}

// --- Key Schedule Metrics ---

// RecordKeyDerivation records one Derive/DeriveWithHash call and its
// latency.
func (c *Collector) RecordKeyDerivation(d time.Duration) {
	c.keyDerivations.Add(1)
	c.keyDerivationLatency.Observe(float64(d.Microseconds()))
}

// RecordKeyUpdateInitiated records the client sending or receiving a
// KeyUpdate message.
func (c *Collector) RecordKeyUpdateInitiated() {
	c.keyUpdatesInitiated.Add(1)
}

// RecordKeyUpdateCompleted records a successful traffic secret ratchet.
func (c *Collector) RecordKeyUpdateCompleted() {
	c.keyUpdatesCompleted.Add(1)
}

// RecordKeyUpdateFailed records a failed traffic secret ratchet.
func (c *Collector) RecordKeyUpdateFailed() {
	c.keyUpdatesFailed.Add(1)
}

// --- Fault Metrics ---

// RecordAlertSent increments the fatal-alert counter.
func (c *Collector) RecordAlertSent() {
	c.alertsSent.Add(1)
}

// RecordCertVerifyFailure increments the CertVerifier rejection counter.
func (c *Collector) RecordCertVerifyFailure() {
	c.certVerifyFailures.Add(1)
}

// RecordSignatureVerifyFailure increments the SignatureVerifier rejection
// counter.
func (c *Collector) RecordSignatureVerifyFailure() {
	c.signatureVerifyFailures.Add(1)
}

// RecordDecryptError increments the AEAD decryption failure counter.
func (c *Collector) RecordDecryptError() {
	c.decryptErrors.Add(1)
}

// RecordEncryptError increments the AEAD encryption failure counter.
func (c *Collector) RecordEncryptError() {
	c.encryptErrors.Add(1)
}

// RecordProtocolError increments the generic wire/ordering error counter
// (CorruptMessagePayload, InappropriateMessage).
func (c *Collector) RecordProtocolError() {
	c.protocolErrors.Add(1)
}

// --- Snapshot ---

// Snapshot returns a point-in-time snapshot of all metrics.
type Snapshot struct {
	// Timestamp of the snapshot
	Timestamp time.Time

	// Uptime since collector creation
	Uptime time.Duration

	// Handshake lifecycle metrics
	HandshakesActive    uint64
	HandshakesStarted   uint64
	HandshakesCompleted uint64
	HandshakesFailed    uint64

	// Protocol shape metrics
	StateTransitions   uint64
	HelloRetryRequests uint64
	KEMTLSHandshakes   uint64
	SessionResumptions uint64

	// Traffic metrics
	BytesSent     uint64
	BytesReceived uint64

	// Key schedule metrics
	KeyDerivations      uint64
	KeyUpdatesInitiated uint64
	KeyUpdatesCompleted uint64
	KeyUpdatesFailed    uint64

	// Fault metrics
	AlertsSent              uint64
	CertVerifyFailures      uint64
	SignatureVerifyFailures uint64
	DecryptErrors           uint64
	EncryptErrors           uint64
	ProtocolErrors          uint64

	// Histogram summaries
	HandshakeLatency     HistogramSummary
	KeyDerivationLatency HistogramSummary

	// Labels
	Labels Labels
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:               time.Now(),
		Uptime:                  time.Since(c.createdAt),
		HandshakesActive:        c.handshakesActive.Load(),
		HandshakesStarted:       c.handshakesStarted.Load(),
		HandshakesCompleted:     c.handshakesCompleted.Load(),
		HandshakesFailed:        c.handshakesFailed.Load(),
		StateTransitions:        c.stateTransitions.Load(),
		HelloRetryRequests:      c.helloRetryRequests.Load(),
		KEMTLSHandshakes:        c.kemtlsHandshakes.Load(),
		SessionResumptions:      c.sessionResumptions.Load(),
		BytesSent:               c.bytesSent.Load(),
		BytesReceived:           c.bytesReceived.Load(),
		KeyDerivations:          c.keyDerivations.Load(),
		KeyUpdatesInitiated:     c.keyUpdatesInitiated.Load(),
		KeyUpdatesCompleted:     c.keyUpdatesCompleted.Load(),
		KeyUpdatesFailed:        c.keyUpdatesFailed.Load(),
		AlertsSent:              c.alertsSent.Load(),
		CertVerifyFailures:      c.certVerifyFailures.Load(),
		SignatureVerifyFailures: c.signatureVerifyFailures.Load(),
		DecryptErrors:           c.decryptErrors.Load(),
		EncryptErrors:           c.encryptErrors.Load(),
		ProtocolErrors:          c.protocolErrors.Load(),
		HandshakeLatency:        c.handshakeLatency.Summary(),
		KeyDerivationLatency:    c.keyDerivationLatency.Summary(),
		Labels:                  c.labels,
	}
}

// Reset clears all metrics (useful for testing).
func (c *Collector) Reset() {
	c.handshakesActive.Store(0)
	c.handshakesStarted.Store(0)
	c.handshakesCompleted.Store(0)
	c.handshakesFailed.Store(0)
	c.stateTransitions.Store(0)
	c.helloRetryRequests.Store(0)
	c.kemtlsHandshakes.Store(0)
	c.sessionResumptions.Store(0)
	c.bytesSent.Store(0)
	c.bytesReceived.Store(0)
	c.keyDerivations.Store(0)
	c.keyUpdatesInitiated.Store(0)
	c.keyUpdatesCompleted.Store(0)
	c.keyUpdatesFailed.Store(0)
	c.alertsSent.Store(0)
	c.certVerifyFailures.Store(0)
	c.signatureVerifyFailures.Store(0)
	c.decryptErrors.Store(0)
	c.encryptErrors.Store(0)
	c.protocolErrors.Store(0)
	c.handshakeLatency.Reset()
	c.keyDerivationLatency.Reset()
	c.createdAt = time.Now()
}

// --- Global Collector ---

var (
	globalCollector     *Collector
	globalCollectorOnce sync.Once
)

// Global returns the global metrics collector.
// Creates one with default settings if not already initialized.
func Global() *Collector {
	globalCollectorOnce.Do(func() {
		globalCollector = NewCollector(Labels{"instance": "default"})
	})
	return globalCollector
}

// SetGlobal sets the global metrics collector.
// Should be called during initialization before any metrics are recorded.
func SetGlobal(c *Collector) {
	globalCollectorOnce.Do(func() {})
	globalCollector = c
}
