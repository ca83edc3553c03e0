package metrics

import "time"

// Observer is the narrow interface pkg/handshake depends on, decoupling
// the state machine from this package's concrete Collector. A caller that
// doesn't want metrics passes NoopObserver{}.
type Observer interface {
	HandshakeStarted()
	HandshakeCompleted(d time.Duration)
	HandshakeFailed()
	RecordStateTransition()
	RecordHelloRetryRequest()
	RecordKEMTLSHandshake()
	RecordSessionResumption()
	RecordKeyDerivation(d time.Duration)
	RecordKeyUpdateInitiated()
	RecordKeyUpdateCompleted()
	RecordKeyUpdateFailed()
	RecordAlertSent()
	RecordCertVerifyFailure()
	RecordSignatureVerifyFailure()
	RecordDecryptError()
	RecordEncryptError()
	RecordProtocolError()
}

// NoopObserver discards every event; it is the default for callers that
// haven't wired a Collector.
type NoopObserver struct{}

func (NoopObserver) HandshakeStarted()                {}
func (NoopObserver) HandshakeCompleted(time.Duration)  {}
func (NoopObserver) HandshakeFailed()                  {}
func (NoopObserver) RecordStateTransition()            {}
func (NoopObserver) RecordHelloRetryRequest()          {}
func (NoopObserver) RecordKEMTLSHandshake()             {}
func (NoopObserver) RecordSessionResumption()          {}
func (NoopObserver) RecordKeyDerivation(time.Duration) {}
func (NoopObserver) RecordKeyUpdateInitiated()         {}
func (NoopObserver) RecordKeyUpdateCompleted()         {}
func (NoopObserver) RecordKeyUpdateFailed()            {}
func (NoopObserver) RecordAlertSent()                  {}
func (NoopObserver) RecordCertVerifyFailure()          {}
func (NoopObserver) RecordSignatureVerifyFailure()     {}
func (NoopObserver) RecordDecryptError()               {}
func (NoopObserver) RecordEncryptError()               {}
func (NoopObserver) RecordProtocolError()              {}

var _ Observer = NoopObserver{}
var _ Observer = (*Collector)(nil)
