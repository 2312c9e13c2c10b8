// Package engine assembles and runs the content orchestration pipeline.
//
// Architecture:
//
// executor.go     - PipelineExecutor: priority-ordered, short-circuiting step runner
// builtin.go      - Factory registries for the built-in steps and enrichers
// orchestrator.go - Orchestrator: wires steps, enrichers and batch policy; Resolve entry point
// http_handler.go - HTTP integration layer (ContentHandler, error mapping)
//
// Sub-packages hold the building blocks: runtime (step and enricher contracts),
// batch (concurrent keyed fan-out), dispatch (discriminant registry), enrich (the
// fail-safe enricher chain) and handlers (the built-in steps and enrichers).
package engine
