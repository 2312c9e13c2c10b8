package domain

import "context"

// EditorialFetcher loads primary records. Implementations return ErrNotFound when the
// record does not exist and ErrNotPublished when it exists but is not visible yet.
type EditorialFetcher interface {
	FetchEditorial(ctx context.Context, id string) (*Editorial, error)
}

// EmbeddedContentFetcher loads the bundle of related identifiers for an editorial.
type EmbeddedContentFetcher interface {
	FetchEmbedded(ctx context.Context, editorial *Editorial, section Section) (*EmbeddedBundle, error)
}

// CommentsFetcher counts the comments of an editorial.
type CommentsFetcher interface {
	CountComments(ctx context.Context, editorialID string) (int, error)
}

// SignatureFetcher loads an author signature.
type SignatureFetcher interface {
	FetchSignature(ctx context.Context, id string) (*Signature, error)
}

// TagFetcher loads an authoritative tag.
type TagFetcher interface {
	FetchTag(ctx context.Context, id string) (*Tag, error)
}

// MembershipResolver resolves a membership URL to its final link.
type MembershipResolver interface {
	ResolveMembershipLink(ctx context.Context, url string) (*MembershipLink, error)
}

// PhotoFetcher loads a photo.
type PhotoFetcher interface {
	FetchPhoto(ctx context.Context, id string) (*Photo, error)
}

// VideoFetcher loads a video as media.
type VideoFetcher interface {
	FetchVideo(ctx context.Context, id string) (*Media, error)
}

// WidgetFetcher loads an embeddable widget as media.
type WidgetFetcher interface {
	FetchWidget(ctx context.Context, id string) (*Media, error)
}

// Aggregator composes the final response from everything accumulated for a request.
type Aggregator interface {
	Aggregate(ctx context.Context, view *PipelineContext) (*Response, error)
}

// ContentSource bundles every fetcher port. Both the HTTP upstream client and the
// in-memory store implement it.
type ContentSource interface {
	EditorialFetcher
	EmbeddedContentFetcher
	CommentsFetcher
	SignatureFetcher
	TagFetcher
	MembershipResolver
	PhotoFetcher
	VideoFetcher
	WidgetFetcher
}
