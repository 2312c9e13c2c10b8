// Package telemetry wires OpenTelemetry exporters and meters for the content
// orchestrator.
//
// It centralises trace provider setup and offers recording helpers for steps,
// enrichers, batches and pipeline runs so operators can see which upstream made a
// response slow or incomplete.
package telemetry
