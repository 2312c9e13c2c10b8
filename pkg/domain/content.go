package domain

import (
	"maps"
	"slices"
	"time"
)

// Media kinds used as dispatch discriminants for embedded media.
const (
	MediaKindPhoto  = "photo"
	MediaKindVideo  = "video"
	MediaKindWidget = "widget"
)

// Editorial is the primary record fetched for a content identifier.
type Editorial struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title" yaml:"title"`
	Lead        string            `json:"lead,omitempty" yaml:"lead"`
	Body        string            `json:"body,omitempty" yaml:"body"`
	SectionID   string            `json:"sectionId" yaml:"sectionId"`
	SectionName string            `json:"sectionName,omitempty" yaml:"sectionName"`
	SectionURL  string            `json:"sectionUrl,omitempty" yaml:"sectionUrl"`
	Visible     bool              `json:"visible" yaml:"visible"`
	Legacy      bool              `json:"legacy,omitempty" yaml:"legacy"`
	LegacyURL   string            `json:"legacyUrl,omitempty" yaml:"legacyUrl"`
	PublishedAt time.Time         `json:"publishedAt,omitempty" yaml:"publishedAt"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes"`
}

// Section returns the section reference derived from the editorial.
func (e *Editorial) Section() Section {
	return Section{ID: e.SectionID, Name: e.SectionName, URL: e.SectionURL}
}

// Clone returns a deep copy of e.
func (e *Editorial) Clone() *Editorial {
	if e == nil {
		return nil
	}
	out := *e
	out.Attributes = maps.Clone(e.Attributes)
	return &out
}

// Section identifies the site section an editorial belongs to.
type Section struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name"`
	URL  string `json:"url,omitempty" yaml:"url"`
}

// MediaRef points to a piece of embedded media of a given kind.
type MediaRef struct {
	Kind string `json:"kind" yaml:"kind"`
	ID   string `json:"id" yaml:"id"`
}

// Key returns the identifier used to index resolved media.
func (r MediaRef) Key() string {
	return r.Kind + ":" + r.ID
}

// EmbeddedBundle lists the related identifiers referenced by an editorial.
type EmbeddedBundle struct {
	EmbeddedIDs     []string   `json:"embeddedIds,omitempty" yaml:"embeddedIds"`
	RecommendedIDs  []string   `json:"recommendedIds,omitempty" yaml:"recommendedIds"`
	PhotoIDs        []string   `json:"photoIds,omitempty" yaml:"photoIds"`
	Media           []MediaRef `json:"media,omitempty" yaml:"media"`
	TagIDs          []string   `json:"tagIds,omitempty" yaml:"tagIds"`
	SignatureIDs    []string   `json:"signatureIds,omitempty" yaml:"signatureIds"`
	MembershipLinks []string   `json:"membershipLinks,omitempty" yaml:"membershipLinks"`
}

// Clone returns a deep copy of b.
func (b *EmbeddedBundle) Clone() *EmbeddedBundle {
	if b == nil {
		return nil
	}
	return &EmbeddedBundle{
		EmbeddedIDs:     slices.Clone(b.EmbeddedIDs),
		RecommendedIDs:  slices.Clone(b.RecommendedIDs),
		PhotoIDs:        slices.Clone(b.PhotoIDs),
		Media:           slices.Clone(b.Media),
		TagIDs:          slices.Clone(b.TagIDs),
		SignatureIDs:    slices.Clone(b.SignatureIDs),
		MembershipLinks: slices.Clone(b.MembershipLinks),
	}
}

// Tag is an authoritative tag attached to an editorial.
type Tag struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug,omitempty" yaml:"slug"`
}

// MembershipLink is a membership URL resolved to its final destination.
type MembershipLink struct {
	Source   string `json:"source" yaml:"source"`
	Resolved string `json:"resolved" yaml:"resolved"`
}

// Photo is an image resolved by identifier.
type Photo struct {
	ID      string `json:"id" yaml:"id"`
	URL     string `json:"url" yaml:"url"`
	Caption string `json:"caption,omitempty" yaml:"caption"`
	Width   int    `json:"width,omitempty" yaml:"width"`
	Height  int    `json:"height,omitempty" yaml:"height"`
}

// Media is a resolved piece of embedded media. Only the fields relevant to Kind are set.
type Media struct {
	Kind     string `json:"kind" yaml:"kind"`
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title,omitempty" yaml:"title"`
	URL      string `json:"url,omitempty" yaml:"url"`
	Duration int    `json:"durationSeconds,omitempty" yaml:"durationSeconds"`
	Embed    string `json:"embed,omitempty" yaml:"embed"`
	Photo    *Photo `json:"photo,omitempty" yaml:"photo"`
}

// Signature describes an author of an editorial.
type Signature struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Role     string `json:"role,omitempty" yaml:"role"`
	PhotoURL string `json:"photoUrl,omitempty" yaml:"photoUrl"`
}

// Response is the final result of a pipeline run.
type Response struct {
	Status  int                 `json:"-"`
	Headers map[string][]string `json:"-"`
	Kind    string              `json:"kind"`
	Body    any                 `json:"body,omitempty"`
}

// Response kinds.
const (
	ResponseKindContent      = "content"
	ResponseKindNotPublished = "not_published"
	ResponseKindLegacy       = "legacy"
)

// ContentDocument is the composed body returned for a fully aggregated editorial.
type ContentDocument struct {
	Editorial       *Editorial       `json:"editorial"`
	Section         Section          `json:"section"`
	Tags            []Tag            `json:"tags"`
	Signatures      []Signature      `json:"signatures"`
	Photos          map[string]Photo `json:"photos"`
	Media           map[string]Media `json:"media"`
	Embedded        []*Editorial     `json:"embedded"`
	Recommended     []*Editorial     `json:"recommended"`
	MembershipLinks []MembershipLink `json:"membershipLinks"`
	CommentCount    *int             `json:"commentCount,omitempty"`
	Extras          map[string]any   `json:"extras,omitempty"`
}
