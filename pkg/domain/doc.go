// Package domain defines the core business types and collaborator ports for the content
// response orchestrator.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. The types here describe editorials and their related records
// (sections, embedded bundles, tags, photos, media, signatures), the per-request
// PipelineContext accumulator, the narrower EnrichmentContext, and the interfaces
// implemented by upstream fetchers.
//
// Other packages (engine, upstream, storage) implement the interfaces defined here
// and depend on these types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
