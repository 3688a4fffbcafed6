// Package telemetry provides logging, tracing, metrics, and event publishing
// for OpenFacade.
//
// The Logger wraps zerolog with resolution-aware field helpers, the Tracer
// wraps OpenTelemetry with resolution and policy span helpers, Metrics exposes
// Prometheus counters and histograms for the resolver pipeline, and the
// EventPublisher fans resolution lifecycle events out to subscribers.
package telemetry
