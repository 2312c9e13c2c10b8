// Package upstream implements the content ports over JSON HTTP backends.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arazvan-ec/contentapi/pkg/domain"
)

const maxBodyBytes = 4 << 20

// Endpoints holds the base URL of every backend service. An empty URL makes the
// corresponding lookup fail with domain.ErrUpstreamUnreachable.
type Endpoints struct {
	Editorial  string
	Embedded   string
	Comments   string
	Signatures string
	Tags       string
	Membership string
	Photos     string
	Videos     string
	Widgets    string
}

// Config holds configuration for creating a Client.
type Config struct {
	Endpoints Endpoints
	// Timeout bounds every single upstream call. Zero leaves calls bounded only by
	// the request context.
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// StatusError reports an unexpected upstream status code.
type StatusError struct {
	Upstream   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s upstream returned status %d", e.Upstream, e.StatusCode)
}

// Unwrap makes errors.Is(err, domain.ErrUpstreamUnreachable) true.
func (e *StatusError) Unwrap() error { return domain.ErrUpstreamUnreachable }

// Client implements domain.ContentSource against HTTP backends.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.ContentSource = (*Client)(nil)

// NewClient constructs a client whose transport is instrumented with otelhttp.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		endpoints: cfg.Endpoints,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
		logger: logger,
	}
}

func (c *Client) getJSON(ctx context.Context, upstream, base, path string, query url.Values, out any) error {
	if base == "" {
		return fmt.Errorf("%s upstream not configured: %w", upstream, domain.ErrUpstreamUnreachable)
	}
	target := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", upstream, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s upstream: %w: %w", upstream, domain.ErrUpstreamUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.DebugContext(ctx, "upstream call",
		"upstream", upstream,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", upstream, path, domain.ErrNotFound)
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusLocked:
		return fmt.Errorf("%s %s: %w", upstream, path, domain.ErrNotPublished)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &StatusError{Upstream: upstream, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s upstream returned an empty body: %w", upstream, domain.ErrUpstreamUnreachable)
		}
		return fmt.Errorf("decode %s response: %w", upstream, err)
	}
	return nil
}

func segment(id string) string { return url.PathEscape(id) }

// FetchEditorial implements domain.EditorialFetcher.
func (c *Client) FetchEditorial(ctx context.Context, id string) (*domain.Editorial, error) {
	var e domain.Editorial
	if err := c.getJSON(ctx, "editorial", c.endpoints.Editorial, "/editorials/"+segment(id), nil, &e); err != nil {
		return nil, err
	}
	if e.ID == "" {
		e.ID = id
	}
	return &e, nil
}

// FetchEmbedded implements domain.EmbeddedContentFetcher.
func (c *Client) FetchEmbedded(ctx context.Context, editorial *domain.Editorial, section domain.Section) (*domain.EmbeddedBundle, error) {
	query := url.Values{}
	if section.ID != "" {
		query.Set("section", section.ID)
	}
	var b domain.EmbeddedBundle
	if err := c.getJSON(ctx, "embedded", c.endpoints.Embedded, "/editorials/"+segment(editorial.ID)+"/embedded", query, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CountComments implements domain.CommentsFetcher.
func (c *Client) CountComments(ctx context.Context, editorialID string) (int, error) {
	var payload struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, "comments", c.endpoints.Comments, "/editorials/"+segment(editorialID)+"/comments/count", nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

// FetchSignature implements domain.SignatureFetcher.
func (c *Client) FetchSignature(ctx context.Context, id string) (*domain.Signature, error) {
	var s domain.Signature
	if err := c.getJSON(ctx, "signatures", c.endpoints.Signatures, "/signatures/"+segment(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchTag implements domain.TagFetcher.
func (c *Client) FetchTag(ctx context.Context, id string) (*domain.Tag, error) {
	var t domain.Tag
	if err := c.getJSON(ctx, "tags", c.endpoints.Tags, "/tags/"+segment(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ResolveMembershipLink implements domain.MembershipResolver.
func (c *Client) ResolveMembershipLink(ctx context.Context, link string) (*domain.MembershipLink, error) {
	var l domain.MembershipLink
	if err := c.getJSON(ctx, "membership", c.endpoints.Membership, "/links/resolve", url.Values{"url": {link}}, &l); err != nil {
		return nil, err
	}
	if l.Source == "" {
		l.Source = link
	}
	return &l, nil
}

// FetchPhoto implements domain.PhotoFetcher.
func (c *Client) FetchPhoto(ctx context.Context, id string) (*domain.Photo, error) {
	var p domain.Photo
	if err := c.getJSON(ctx, "photos", c.endpoints.Photos, "/photos/"+segment(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchVideo implements domain.VideoFetcher.
func (c *Client) FetchVideo(ctx context.Context, id string) (*domain.Media, error) {
	var m domain.Media
	if err := c.getJSON(ctx, "videos", c.endpoints.Videos, "/videos/"+segment(id), nil, &m); err != nil {
		return nil, err
	}
	m.Kind = domain.MediaKindVideo
	return &m, nil
}

// FetchWidget implements domain.WidgetFetcher.
func (c *Client) FetchWidget(ctx context.Context, id string) (*domain.Media, error) {
	var m domain.Media
	if err := c.getJSON(ctx, "widgets", c.endpoints.Widgets, "/widgets/"+segment(id), nil, &m); err != nil {
		return nil, err
	}
	m.Kind = domain.MediaKindWidget
	return &m, nil
}
