package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorWrapsSentinel(t *testing.T) {
	err := fmt.Errorf("step %q failed: %w", "fetch_editorial",
		NewDomainError(ErrNotFound, "NOT_FOUND", `content "7" not found`).WithDetail("content_id", "7"))

	assert.ErrorIs(t, err, ErrNotFound)

	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
	assert.Equal(t, map[string]any{"content_id": "7"}, domainErr.Details)
	assert.Equal(t, `content "7" not found: content not found`, domainErr.Error())
}

func TestDomainErrorMessageFallbacks(t *testing.T) {
	assert.Equal(t, "content not found", (&DomainError{Err: ErrNotFound}).Error())
	assert.Equal(t, "only a message", (&DomainError{Message: "only a message"}).Error())
}
