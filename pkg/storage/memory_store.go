// Package storage holds the in-memory content backend used for local runs and tests.
package storage

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/arazvan-ec/contentapi/pkg/domain"
)

// Fixtures is the YAML document the memory store is loaded from.
type Fixtures struct {
	Editorials []domain.Editorial                `yaml:"editorials"`
	Embedded   map[string]domain.EmbeddedBundle `yaml:"embedded"`
	Comments   map[string]int                   `yaml:"comments"`
	Signatures []domain.Signature               `yaml:"signatures"`
	Tags       []domain.Tag                     `yaml:"tags"`
	Photos     []domain.Photo                   `yaml:"photos"`
	Videos     []domain.Media                   `yaml:"videos"`
	Widgets    []domain.Media                   `yaml:"widgets"`
	Membership map[string]string                `yaml:"membership"`
	// Failures lists lookups that fail as if their upstream were down, keyed
	// "<kind>:<id>" such as "comments:42" or "photo:p1".
	Failures []string `yaml:"failures"`
}

// Failure keys per lookup kind.
const (
	KindEditorial  = "editorial"
	KindEmbedded   = "embedded"
	KindComments   = "comments"
	KindSignature  = "signature"
	KindTag        = "tag"
	KindPhoto      = "photo"
	KindVideo      = "video"
	KindWidget     = "widget"
	KindMembership = "membership"
)

// MemoryContentStore is an in-memory implementation of domain.ContentSource.
type MemoryContentStore struct {
	mu         sync.RWMutex
	editorials map[string]domain.Editorial
	embedded   map[string]domain.EmbeddedBundle
	comments   map[string]int
	signatures map[string]domain.Signature
	tags       map[string]domain.Tag
	photos     map[string]domain.Photo
	videos     map[string]domain.Media
	widgets    map[string]domain.Media
	membership map[string]string
	failures   map[string]struct{}
}

var _ domain.ContentSource = (*MemoryContentStore)(nil)

// NewMemoryContentStore creates an empty store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		editorials: make(map[string]domain.Editorial),
		embedded:   make(map[string]domain.EmbeddedBundle),
		comments:   make(map[string]int),
		signatures: make(map[string]domain.Signature),
		tags:       make(map[string]domain.Tag),
		photos:     make(map[string]domain.Photo),
		videos:     make(map[string]domain.Media),
		widgets:    make(map[string]domain.Media),
		membership: make(map[string]string),
		failures:   make(map[string]struct{}),
	}
}

// LoadFixtures reads a fixtures file into a new store.
func LoadFixtures(path string) (*MemoryContentStore, error) {
	//nolint:gosec // Fixture path is controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures %s: %w", path, err)
	}
	var fixtures Fixtures
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures %s: %w", path, err)
	}
	store := NewMemoryContentStore()
	store.Apply(fixtures)
	return store, nil
}

// Apply merges fixtures into the store.
func (s *MemoryContentStore) Apply(f Fixtures) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range f.Editorials {
		s.editorials[e.ID] = e
	}
	for id, b := range f.Embedded {
		s.embedded[id] = b
	}
	for id, n := range f.Comments {
		s.comments[id] = n
	}
	for _, sig := range f.Signatures {
		s.signatures[sig.ID] = sig
	}
	for _, t := range f.Tags {
		s.tags[t.ID] = t
	}
	for _, p := range f.Photos {
		s.photos[p.ID] = p
	}
	for _, v := range f.Videos {
		v.Kind = domain.MediaKindVideo
		s.videos[v.ID] = v
	}
	for _, w := range f.Widgets {
		w.Kind = domain.MediaKindWidget
		s.widgets[w.ID] = w
	}
	for src, dst := range f.Membership {
		s.membership[src] = dst
	}
	for _, key := range f.Failures {
		s.failures[key] = struct{}{}
	}
}

// PutEditorial stores an editorial.
func (s *MemoryContentStore) PutEditorial(e domain.Editorial) {
	s.Apply(Fixtures{Editorials: []domain.Editorial{e}})
}

// PutEmbedded stores the bundle of an editorial.
func (s *MemoryContentStore) PutEmbedded(editorialID string, bundle domain.EmbeddedBundle) {
	s.Apply(Fixtures{Embedded: map[string]domain.EmbeddedBundle{editorialID: bundle}})
}

// FailOn makes the lookup of kind and id fail with domain.ErrUpstreamUnreachable.
func (s *MemoryContentStore) FailOn(kind, id string) {
	s.Apply(Fixtures{Failures: []string{kind + ":" + id}})
}

func (s *MemoryContentStore) check(kind, id string) error {
	if _, ok := s.failures[kind+":"+id]; ok {
		return fmt.Errorf("%s %q: %w", kind, id, domain.ErrUpstreamUnreachable)
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
}

// FetchEditorial implements domain.EditorialFetcher.
func (s *MemoryContentStore) FetchEditorial(_ context.Context, id string) (*domain.Editorial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(KindEditorial, id); err != nil {
		return nil, err
	}
	e, ok := s.editorials[id]
	if !ok {
		return nil, notFound(KindEditorial, id)
	}
	return &e, nil
}

// FetchEmbedded implements domain.EmbeddedContentFetcher. An editorial without a
// bundle has nothing embedded.
func (s *MemoryContentStore) FetchEmbedded(_ context.Context, editorial *domain.Editorial, _ domain.Section) (*domain.EmbeddedBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(KindEmbedded, editorial.ID); err != nil {
		return nil, err
	}
	b := s.embedded[editorial.ID]
	return &b, nil
}

// CountComments implements domain.CommentsFetcher.
func (s *MemoryContentStore) CountComments(_ context.Context, editorialID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(KindComments, editorialID); err != nil {
		return 0, err
	}
	return s.comments[editorialID], nil
}

// FetchSignature implements domain.SignatureFetcher.
func (s *MemoryContentStore) FetchSignature(_ context.Context, id string) (*domain.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(KindSignature, id); err != nil {
		return nil, err
	}
	sig, ok := s.signatures[id]
	if !ok {
		return nil, notFound(KindSignature, id)
	}
	return &sig, nil
}

// FetchTag implements domain.TagFetcher.
func (s *MemoryContentStore) FetchTag(_ context.Context, id string) (*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(KindTag, id); err != nil {
		return nil, err
	}
	t, ok := s.tags[id]
	if !ok {
		return nil, notFound(KindTag, id)
	}
	return &t, nil
}

// ResolveMembershipLink implements domain.MembershipResolver.
func (s *MemoryContentStore) ResolveMembershipLink(_ context.Context, url string) (*domain.MembershipLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(KindMembership, url); err != nil {
		return nil, err
	}
	resolved, ok := s.membership[url]
	if !ok {
		return nil, notFound(KindMembership, url)
	}
	return &domain.MembershipLink{Source: url, Resolved: resolved}, nil
}

// FetchPhoto implements domain.PhotoFetcher.
func (s *MemoryContentStore) FetchPhoto(_ context.Context, id string) (*domain.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(KindPhoto, id); err != nil {
		return nil, err
	}
	p, ok := s.photos[id]
	if !ok {
		return nil, notFound(KindPhoto, id)
	}
	return &p, nil
}

// FetchVideo implements domain.VideoFetcher.
func (s *MemoryContentStore) FetchVideo(_ context.Context, id string) (*domain.Media, error) {
	return s.media(s.videos, KindVideo, id)
}

// FetchWidget implements domain.WidgetFetcher.
func (s *MemoryContentStore) FetchWidget(_ context.Context, id string) (*domain.Media, error) {
	return s.media(s.widgets, KindWidget, id)
}

func (s *MemoryContentStore) media(from map[string]domain.Media, kind, id string) (*domain.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(kind, id); err != nil {
		return nil, err
	}
	m, ok := from[id]
	if !ok {
		return nil, notFound(kind, id)
	}
	return &m, nil
}
