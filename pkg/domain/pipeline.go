package domain

import (
	"fmt"
	"maps"
	"sort"
)

// Context field names, used in ErrFieldAlreadySet messages and logs.
const (
	FieldEditorial       = "editorial"
	FieldEmbedded        = "embedded"
	FieldTags            = "tags"
	FieldMembershipLinks = "membership_links"
	FieldPhotos          = "photos"
	FieldMedia           = "media"
	FieldCommentCount    = "comment_count"
	FieldSignatures      = "signatures"
	FieldRelated         = "related"
)

// PipelineContext holds runtime state during one pipeline execution.
//
// Every setter succeeds at most once per field; a second call returns
// ErrFieldAlreadySet and leaves the stored value untouched. Steps call the HasX
// predicates before reading optional data.
type PipelineContext struct {
	contentID string
	requestID string

	editorial       *Editorial
	section         Section
	embedded        *EmbeddedBundle
	tags            []Tag
	membershipLinks []MembershipLink
	photos          map[string]Photo
	media           map[string]Media
	commentCount    int
	signatures      []Signature
	embeddedRecords []*Editorial
	recommended     []*Editorial

	extras map[string]any
	set    map[string]struct{}
}

// NewPipelineContext creates the accumulator for one request.
func NewPipelineContext(contentID, requestID string) *PipelineContext {
	return &PipelineContext{
		contentID: contentID,
		requestID: requestID,
		extras:    make(map[string]any),
		set:       make(map[string]struct{}),
	}
}

// ContentID returns the identifier the request asked for.
func (c *PipelineContext) ContentID() string { return c.contentID }

// RequestID returns the correlation identifier of the request.
func (c *PipelineContext) RequestID() string { return c.requestID }

func (c *PipelineContext) markSet(field string) error {
	if c.set == nil {
		c.set = make(map[string]struct{})
	}
	if _, ok := c.set[field]; ok {
		return fmt.Errorf("%w: %s", ErrFieldAlreadySet, field)
	}
	c.set[field] = struct{}{}
	return nil
}

func (c *PipelineContext) has(field string) bool {
	_, ok := c.set[field]
	return ok
}

// SetEditorial stores the fetched primary record and derives its section.
func (c *PipelineContext) SetEditorial(editorial *Editorial) error {
	if editorial == nil {
		return fmt.Errorf("editorial must not be nil")
	}
	if err := c.markSet(FieldEditorial); err != nil {
		return err
	}
	c.editorial = editorial
	c.section = editorial.Section()
	return nil
}

// HasEditorial reports whether the primary record was fetched.
func (c *PipelineContext) HasEditorial() bool { return c.has(FieldEditorial) }

// Editorial returns the primary record, or nil before it is fetched.
func (c *PipelineContext) Editorial() *Editorial { return c.editorial }

// Section returns the section derived from the primary record.
func (c *PipelineContext) Section() Section { return c.section }

// SetEmbedded stores the embedded-content bundle.
func (c *PipelineContext) SetEmbedded(bundle *EmbeddedBundle) error {
	if bundle == nil {
		return fmt.Errorf("embedded bundle must not be nil")
	}
	if err := c.markSet(FieldEmbedded); err != nil {
		return err
	}
	c.embedded = bundle
	return nil
}

// HasEmbedded reports whether the embedded bundle was fetched.
func (c *PipelineContext) HasEmbedded() bool { return c.has(FieldEmbedded) }

// Embedded returns the embedded bundle, or nil before it is fetched.
func (c *PipelineContext) Embedded() *EmbeddedBundle { return c.embedded }

// SetTags stores the authoritative tag list.
func (c *PipelineContext) SetTags(tags []Tag) error {
	if err := c.markSet(FieldTags); err != nil {
		return err
	}
	c.tags = append([]Tag(nil), tags...)
	return nil
}

// HasTags reports whether tags were resolved.
func (c *PipelineContext) HasTags() bool { return c.has(FieldTags) }

// Tags returns the resolved tags.
func (c *PipelineContext) Tags() []Tag { return c.tags }

// SetMembershipLinks stores the resolved membership links.
func (c *PipelineContext) SetMembershipLinks(links []MembershipLink) error {
	if err := c.markSet(FieldMembershipLinks); err != nil {
		return err
	}
	c.membershipLinks = append([]MembershipLink(nil), links...)
	return nil
}

// HasMembershipLinks reports whether membership links were resolved.
func (c *PipelineContext) HasMembershipLinks() bool { return c.has(FieldMembershipLinks) }

// MembershipLinks returns the resolved membership links.
func (c *PipelineContext) MembershipLinks() []MembershipLink { return c.membershipLinks }

// SetPhotos stores the resolved photo-by-id map.
func (c *PipelineContext) SetPhotos(photos map[string]Photo) error {
	if err := c.markSet(FieldPhotos); err != nil {
		return err
	}
	c.photos = maps.Clone(photos)
	return nil
}

// HasPhotos reports whether photos were resolved.
func (c *PipelineContext) HasPhotos() bool { return c.has(FieldPhotos) }

// Photos returns the resolved photos keyed by id.
func (c *PipelineContext) Photos() map[string]Photo { return c.photos }

// SetMedia stores the resolved media-by-key map (see MediaRef.Key).
func (c *PipelineContext) SetMedia(media map[string]Media) error {
	if err := c.markSet(FieldMedia); err != nil {
		return err
	}
	c.media = maps.Clone(media)
	return nil
}

// HasMedia reports whether media were resolved.
func (c *PipelineContext) HasMedia() bool { return c.has(FieldMedia) }

// Media returns the resolved media keyed by MediaRef.Key.
func (c *PipelineContext) Media() map[string]Media { return c.media }

// SetCommentCount stores the comment count.
func (c *PipelineContext) SetCommentCount(count int) error {
	if err := c.markSet(FieldCommentCount); err != nil {
		return err
	}
	c.commentCount = count
	return nil
}

// HasCommentCount reports whether the comment count was fetched.
func (c *PipelineContext) HasCommentCount() bool { return c.has(FieldCommentCount) }

// CommentCount returns the comment count.
func (c *PipelineContext) CommentCount() int { return c.commentCount }

// SetSignatures stores the resolved signatures.
func (c *PipelineContext) SetSignatures(signatures []Signature) error {
	if err := c.markSet(FieldSignatures); err != nil {
		return err
	}
	c.signatures = append([]Signature(nil), signatures...)
	return nil
}

// HasSignatures reports whether signatures were resolved.
func (c *PipelineContext) HasSignatures() bool { return c.has(FieldSignatures) }

// Signatures returns the resolved signatures.
func (c *PipelineContext) Signatures() []Signature { return c.signatures }

// SetRelated stores the resolved embedded and recommended editorials.
func (c *PipelineContext) SetRelated(embedded, recommended []*Editorial) error {
	if err := c.markSet(FieldRelated); err != nil {
		return err
	}
	c.embeddedRecords = append([]*Editorial(nil), embedded...)
	c.recommended = append([]*Editorial(nil), recommended...)
	return nil
}

// HasRelated reports whether related editorials were resolved.
func (c *PipelineContext) HasRelated() bool { return c.has(FieldRelated) }

// EmbeddedEditorials returns the resolved embedded editorials in bundle order.
func (c *PipelineContext) EmbeddedEditorials() []*Editorial { return c.embeddedRecords }

// RecommendedEditorials returns the resolved recommended editorials in bundle order.
func (c *PipelineContext) RecommendedEditorials() []*Editorial { return c.recommended }

// SetExtra stores forward-compatible extension data under key. Each key is write-once.
func (c *PipelineContext) SetExtra(key string, value any) error {
	if c.extras == nil {
		c.extras = make(map[string]any)
	}
	if _, ok := c.extras[key]; ok {
		return fmt.Errorf("%w: extra %q", ErrFieldAlreadySet, key)
	}
	c.extras[key] = value
	return nil
}

// Extra returns the extension value stored under key.
func (c *PipelineContext) Extra(key string) (any, bool) {
	v, ok := c.extras[key]
	return v, ok
}

// Extras returns a copy of the extension bag.
func (c *PipelineContext) Extras() map[string]any {
	return maps.Clone(c.extras)
}

// SetFields lists the fields that have been populated, sorted by name.
func (c *PipelineContext) SetFields() []string {
	out := make([]string, 0, len(c.set))
	for k := range c.set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewEnrichmentContext builds the isolated context handed to the enricher chain.
// The primary record must have been fetched.
func (c *PipelineContext) NewEnrichmentContext() (*EnrichmentContext, error) {
	if !c.HasEditorial() {
		return nil, fmt.Errorf("enrichment requires the primary record")
	}
	bundle := c.embedded
	if bundle == nil {
		bundle = &EmbeddedBundle{}
	}
	return NewEnrichmentContext(c.editorial, c.section, bundle), nil
}

// ApplyEnrichment copies the outputs of an enrichment pass back into the pipeline
// context. Outputs an enricher did not produce are left unset.
func (c *PipelineContext) ApplyEnrichment(ectx *EnrichmentContext) error {
	if ectx == nil {
		return nil
	}
	if ectx.tagsTouched {
		if err := c.SetTags(ectx.tags); err != nil {
			return err
		}
	}
	if ectx.membershipTouched {
		if err := c.SetMembershipLinks(ectx.membershipLinks); err != nil {
			return err
		}
	}
	if ectx.photosTouched {
		if err := c.SetPhotos(ectx.photos); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(ectx.custom))
	for k := range ectx.custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.SetExtra(k, ectx.custom[k]); err != nil {
			return err
		}
	}
	return nil
}

// EnrichmentContext is scoped to one enrichment pass. Editorial, section and
// bundle are read-only inputs; tags, membership links, photos and custom data are
// the outputs enrichers may write.
type EnrichmentContext struct {
	editorial *Editorial
	section   Section
	bundle    *EmbeddedBundle

	tags              []Tag
	tagsTouched       bool
	membershipLinks   []MembershipLink
	membershipTouched bool
	photos            map[string]Photo
	photosTouched     bool
	custom            map[string]any
}

// NewEnrichmentContext creates an enrichment context over copies of the given
// inputs, so enrichers never reach the records held by the pipeline context.
func NewEnrichmentContext(editorial *Editorial, section Section, bundle *EmbeddedBundle) *EnrichmentContext {
	if bundle == nil {
		bundle = &EmbeddedBundle{}
	}
	return &EnrichmentContext{
		editorial: editorial.Clone(),
		section:   section,
		bundle:    bundle.Clone(),
		photos:    make(map[string]Photo),
		custom:    make(map[string]any),
	}
}

// Editorial returns a copy of the primary record being enriched.
func (e *EnrichmentContext) Editorial() *Editorial { return e.editorial.Clone() }

// Section returns the section of the primary record.
func (e *EnrichmentContext) Section() Section { return e.section }

// Bundle returns a copy of the embedded-content bundle.
func (e *EnrichmentContext) Bundle() *EmbeddedBundle { return e.bundle.Clone() }

// AddTags appends tags to the enriched output.
func (e *EnrichmentContext) AddTags(tags ...Tag) {
	e.tags = append(e.tags, tags...)
	e.tagsTouched = true
}

// Tags returns the tags produced so far.
func (e *EnrichmentContext) Tags() []Tag { return e.tags }

// AddMembershipLinks appends resolved membership links.
func (e *EnrichmentContext) AddMembershipLinks(links ...MembershipLink) {
	e.membershipLinks = append(e.membershipLinks, links...)
	e.membershipTouched = true
}

// MembershipLinks returns the membership links produced so far.
func (e *EnrichmentContext) MembershipLinks() []MembershipLink { return e.membershipLinks }

// PutPhoto records a resolved photo.
func (e *EnrichmentContext) PutPhoto(photo Photo) {
	e.photos[photo.ID] = photo
	e.photosTouched = true
}

// Photos returns the photos produced so far.
func (e *EnrichmentContext) Photos() map[string]Photo { return e.photos }

// SetCustom stores free-form enrichment data, copied to the pipeline extras.
func (e *EnrichmentContext) SetCustom(key string, value any) {
	e.custom[key] = value
}

// Custom returns the free-form data produced so far.
func (e *EnrichmentContext) Custom() map[string]any { return e.custom }
