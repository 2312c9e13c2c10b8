package handlers

import (
	"net/http"

	"github.com/arazvan-ec/contentapi/pkg/domain"
)

// Error codes used in short-circuit response bodies.
const (
	CodeNotPublished = "NOT_PUBLISHED"
)

// NotPublishedResponse is returned when the editorial exists but must not be shown yet.
func NotPublishedResponse(contentID string) *domain.Response {
	return &domain.Response{
		Status:  http.StatusNotFound,
		Kind:    domain.ResponseKindNotPublished,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body: domain.ErrorResponse{
			Code:    CodeNotPublished,
			Message: "content " + contentID + " is not published",
		},
	}
}

// LegacyResponse redirects the client to the legacy location of the editorial.
func LegacyResponse(location string) *domain.Response {
	return &domain.Response{
		Status:  http.StatusTemporaryRedirect,
		Kind:    domain.ResponseKindLegacy,
		Headers: map[string][]string{"Location": {location}},
	}
}
