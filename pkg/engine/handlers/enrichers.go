package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/batch"
)

// Built-in enricher names and priorities.
const (
	EnricherTags       = "tags"
	EnricherMembership = "membership"
	EnricherPhotos     = "photos"

	PriorityTagsEnricher       = 300
	PriorityMembershipEnricher = 200
	PriorityPhotosEnricher     = 100
)

// errAllRejected is returned when every item of an enricher batch failed, so the
// chain records the enricher as failed rather than as an empty success.
func errAllRejected(component string, rejected map[string]error) error {
	for _, err := range rejected {
		return fmt.Errorf("%s: all %d lookups failed, e.g. %w", component, len(rejected), err)
	}
	return nil
}

// TagsEnricher resolves the authoritative tags referenced by the bundle.
type TagsEnricher struct {
	fetcher  domain.TagFetcher
	resolver *batch.Resolver
	logger   *slog.Logger
}

// NewTagsEnricher constructs the enricher.
func NewTagsEnricher(fetcher domain.TagFetcher, resolver *batch.Resolver, logger *slog.Logger) *TagsEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TagsEnricher{fetcher: fetcher, resolver: resolver, logger: logger}
}

// Supports implements runtime.Enricher.
func (e *TagsEnricher) Supports(*domain.Editorial) bool { return true }

// Name implements enrich.Named.
func (e *TagsEnricher) Name() string { return EnricherTags }

// Priority implements runtime.Enricher.
func (e *TagsEnricher) Priority() int { return PriorityTagsEnricher }

// Enrich implements runtime.Enricher.
func (e *TagsEnricher) Enrich(ctx context.Context, enrichCtx *domain.EnrichmentContext) error {
	ids := unique(enrichCtx.Bundle().TagIDs)
	if len(ids) == 0 {
		return nil
	}

	ops := make(map[string]batch.Operation[*domain.Tag], len(ids))
	for _, id := range ids {
		ops[id] = func(ctx context.Context) (*domain.Tag, error) {
			return e.fetcher.FetchTag(ctx, id)
		}
	}
	result := batch.Resolve(ctx, e.resolver, EnricherTags, ops)
	if len(result.Fulfilled()) == 0 {
		return errAllRejected(EnricherTags, result.Rejected())
	}
	logRejected(ctx, e.logger, EnricherTags, enrichCtx.Editorial().ID, result.Rejected())

	tags := make([]domain.Tag, 0, len(ids))
	for _, id := range ids {
		if tag, ok := result.Value(id); ok && tag != nil {
			tags = append(tags, *tag)
		}
	}
	enrichCtx.AddTags(tags...)
	return nil
}

// MembershipEnricher resolves membership URLs to their final destination. When
// sections is non-empty it only applies to editorials of those sections.
type MembershipEnricher struct {
	resolver   domain.MembershipResolver
	batch      *batch.Resolver
	sectionIDs []string
	logger     *slog.Logger
}

// NewMembershipEnricher constructs the enricher.
func NewMembershipEnricher(resolver domain.MembershipResolver, batchResolver *batch.Resolver, sectionIDs []string, logger *slog.Logger) *MembershipEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipEnricher{
		resolver:   resolver,
		batch:      batchResolver,
		sectionIDs: append([]string(nil), sectionIDs...),
		logger:     logger,
	}
}

// Supports implements runtime.Enricher.
func (e *MembershipEnricher) Supports(editorial *domain.Editorial) bool {
	if editorial == nil {
		return false
	}
	return len(e.sectionIDs) == 0 || slices.Contains(e.sectionIDs, editorial.SectionID)
}

// Name implements enrich.Named.
func (e *MembershipEnricher) Name() string { return EnricherMembership }

// Priority implements runtime.Enricher.
func (e *MembershipEnricher) Priority() int { return PriorityMembershipEnricher }

// Enrich implements runtime.Enricher.
func (e *MembershipEnricher) Enrich(ctx context.Context, enrichCtx *domain.EnrichmentContext) error {
	urls := unique(enrichCtx.Bundle().MembershipLinks)
	if len(urls) == 0 {
		return nil
	}

	ops := make(map[string]batch.Operation[*domain.MembershipLink], len(urls))
	for _, url := range urls {
		ops[url] = func(ctx context.Context) (*domain.MembershipLink, error) {
			return e.resolver.ResolveMembershipLink(ctx, url)
		}
	}
	result := batch.Resolve(ctx, e.batch, EnricherMembership, ops)
	if len(result.Fulfilled()) == 0 {
		return errAllRejected(EnricherMembership, result.Rejected())
	}
	logRejected(ctx, e.logger, EnricherMembership, enrichCtx.Editorial().ID, result.Rejected())

	links := make([]domain.MembershipLink, 0, len(urls))
	for _, url := range urls {
		if link, ok := result.Value(url); ok && link != nil {
			links = append(links, *link)
		}
	}
	enrichCtx.AddMembershipLinks(links...)
	return nil
}

// PhotosEnricher resolves the photos referenced by the bundle.
type PhotosEnricher struct {
	fetcher  domain.PhotoFetcher
	resolver *batch.Resolver
	logger   *slog.Logger
}

// NewPhotosEnricher constructs the enricher.
func NewPhotosEnricher(fetcher domain.PhotoFetcher, resolver *batch.Resolver, logger *slog.Logger) *PhotosEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhotosEnricher{fetcher: fetcher, resolver: resolver, logger: logger}
}

// Supports implements runtime.Enricher.
func (e *PhotosEnricher) Supports(*domain.Editorial) bool { return true }

// Name implements enrich.Named.
func (e *PhotosEnricher) Name() string { return EnricherPhotos }

// Priority implements runtime.Enricher.
func (e *PhotosEnricher) Priority() int { return PriorityPhotosEnricher }

// Enrich implements runtime.Enricher.
func (e *PhotosEnricher) Enrich(ctx context.Context, enrichCtx *domain.EnrichmentContext) error {
	ids := unique(enrichCtx.Bundle().PhotoIDs)
	if len(ids) == 0 {
		return nil
	}

	ops := make(map[string]batch.Operation[*domain.Photo], len(ids))
	for _, id := range ids {
		ops[id] = func(ctx context.Context) (*domain.Photo, error) {
			return e.fetcher.FetchPhoto(ctx, id)
		}
	}
	result := batch.Resolve(ctx, e.resolver, EnricherPhotos, ops)
	if len(result.Fulfilled()) == 0 {
		return errAllRejected(EnricherPhotos, result.Rejected())
	}
	logRejected(ctx, e.logger, EnricherPhotos, enrichCtx.Editorial().ID, result.Rejected())

	for _, photo := range result.Fulfilled() {
		if photo != nil {
			enrichCtx.PutPhoto(*photo)
		}
	}
	return nil
}
