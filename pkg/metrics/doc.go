// Package metrics provides observability primitives for the kemtls-client
// handshake engine.
//
// # Overview
//
// The metrics package offers:
//   - A Collector aggregating handshake lifecycle, protocol-shape, traffic,
//     key-schedule and fault counters, with latency histograms
//   - An Observer interface (pkg/handshake's dependency, by signature only)
//     so the state machine never imports a concrete Collector
//   - Distributed tracing support via a Tracer interface, with an
//     OpenTelemetry adapter built under the "otel" build tag
//
// # Quick Start
//
// Basic usage with the global collector:
//
//	import "github.com/kemtls-go/kemtls-client/pkg/metrics"
//
//	metrics.Global().HandshakeStarted()
//	metrics.Global().RecordStateTransition()
//	metrics.Global().HandshakeCompleted(150 * time.Millisecond)
//
// # Metrics Collection
//
// The Collector type aggregates metrics from handshake connections:
//
//	collector := metrics.NewCollector(metrics.Labels{
//		"instance": "node-1",
//	})
//
//	collector.HandshakeStarted()
//	collector.RecordStateTransition()
//	collector.RecordKeyDerivation(d)
//	collector.RecordHelloRetryRequest()
//	collector.HandshakeCompleted(d)
//
//	snap := collector.Snapshot()
//
// # Observer
//
// pkg/handshake.Context depends on the Observer interface rather than on
// *Collector directly. Wire a
// Collector in by passing it directly - *Collector implements Observer -
// or pass metrics.NoopObserver{} to disable metrics entirely:
//
//	ctx := handshake.NewContext(cfg, io, certVerifier, sigVerifier, certFactory, cache, collector)
//
// # Tracing
//
// The package provides a Tracer interface compatible with OpenTelemetry:
//
//	tracer := metrics.NewSimpleTracer() // in-memory, for tests
//	metrics.SetTracer(tracer)
//
//	// Build with -tags otel to enable the real adapter:
//	otelTracer := metrics.NewOTelTracer("kemtls-client")
//	metrics.SetTracer(otelTracer)
//
//	ctx, end := metrics.StartSpan(ctx, metrics.SpanHandshakeClient)
//	defer end(nil) // or end(err) on failure
package metrics
