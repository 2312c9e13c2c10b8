package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arazvan-ec/contentapi/pkg/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Endpoints: Endpoints{
			Editorial:  srv.URL,
			Embedded:   srv.URL,
			Comments:   srv.URL,
			Signatures: srv.URL,
			Tags:       srv.URL,
			Membership: srv.URL,
			Photos:     srv.URL,
			Videos:     srv.URL,
			Widgets:    srv.URL,
		},
		Timeout: time.Second,
	})
}

func TestFetchEditorialDecodesJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/editorials/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","title":"Hello","sectionId":"news","visible":true}`))
	})

	editorial, err := client.FetchEditorial(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Hello", editorial.Title)
	assert.Equal(t, "news", editorial.SectionID)
	assert.True(t, editorial.Visible)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusConflict, domain.ErrNotPublished},
		{http.StatusLocked, domain.ErrNotPublished},
		{http.StatusServiceUnavailable, domain.ErrUpstreamUnreachable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.FetchEditorial(context.Background(), "1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestStatusErrorCarriesCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.FetchTag(context.Background(), "t1")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "tags", statusErr.Upstream)
}

func TestUnconfiguredUpstream(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.CountComments(context.Background(), "1")
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnreachable))
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(Config{Endpoints: Endpoints{Photos: url}, Timeout: time.Second})
	_, err := client.FetchPhoto(context.Background(), "p1")
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnreachable))
}

func TestEmbeddedAndMembershipQueries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/editorials/7/embedded":
			assert.Equal(t, "sports", r.URL.Query().Get("section"))
			_, _ = w.Write([]byte(`{"photoIds":["p1"],"media":[{"kind":"video","id":"v1"}]}`))
		case "/links/resolve":
			assert.Equal(t, "https://m.example.com/x", r.URL.Query().Get("url"))
			_, _ = w.Write([]byte(`{"resolved":"https://m.example.com/x?ok=1"}`))
		case "/editorials/7/comments/count":
			_, _ = w.Write([]byte(`{"count":5}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	bundle, err := client.FetchEmbedded(ctx, &domain.Editorial{ID: "7"}, domain.Section{ID: "sports"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, bundle.PhotoIDs)
	assert.Equal(t, domain.MediaRef{Kind: "video", ID: "v1"}, bundle.Media[0])

	link, err := client.ResolveMembershipLink(ctx, "https://m.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "https://m.example.com/x", link.Source)
	assert.Equal(t, "https://m.example.com/x?ok=1", link.Resolved)

	count, err := client.CountComments(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
