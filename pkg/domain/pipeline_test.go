package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineContextFieldsAreWriteOnce(t *testing.T) {
	pctx := NewPipelineContext("1", "req")
	first := &Editorial{ID: "1", Title: "first", SectionID: "news"}

	require.NoError(t, pctx.SetEditorial(first))
	err := pctx.SetEditorial(&Editorial{ID: "1", Title: "second"})
	assert.ErrorIs(t, err, ErrFieldAlreadySet)
	assert.Equal(t, "first", pctx.Editorial().Title)
	assert.Equal(t, "news", pctx.Section().ID)

	require.NoError(t, pctx.SetCommentCount(0))
	assert.ErrorIs(t, pctx.SetCommentCount(5), ErrFieldAlreadySet)
	assert.True(t, pctx.HasCommentCount())
	assert.Equal(t, 0, pctx.CommentCount())

	require.NoError(t, pctx.SetExtra("k", 1))
	assert.ErrorIs(t, pctx.SetExtra("k", 2), ErrFieldAlreadySet)

	assert.Equal(t, []string{FieldCommentCount, FieldEditorial}, pctx.SetFields())
}

func TestPipelineContextRejectsNil(t *testing.T) {
	pctx := NewPipelineContext("1", "")
	assert.Error(t, pctx.SetEditorial(nil))
	assert.Error(t, pctx.SetEmbedded(nil))
	assert.False(t, pctx.HasEditorial())
	assert.False(t, pctx.HasEmbedded())
}

func TestPipelineContextCopiesCollections(t *testing.T) {
	pctx := NewPipelineContext("1", "")
	photos := map[string]Photo{"p1": {ID: "p1"}}
	require.NoError(t, pctx.SetPhotos(photos))
	photos["p2"] = Photo{ID: "p2"}
	assert.Len(t, pctx.Photos(), 1)

	tags := []Tag{{ID: "t1"}}
	require.NoError(t, pctx.SetTags(tags))
	tags[0].ID = "changed"
	assert.Equal(t, "t1", pctx.Tags()[0].ID)
}

func TestEnrichmentRequiresEditorial(t *testing.T) {
	_, err := NewPipelineContext("1", "").NewEnrichmentContext()
	assert.Error(t, err)
}

func TestApplyEnrichmentOnlyTouchedOutputs(t *testing.T) {
	pctx := NewPipelineContext("1", "")
	require.NoError(t, pctx.SetEditorial(&Editorial{ID: "1"}))

	ectx, err := pctx.NewEnrichmentContext()
	require.NoError(t, err)
	require.NotNil(t, ectx.Bundle())

	ectx.AddTags(Tag{ID: "t1"})
	ectx.SetCustom("score", 0.5)
	require.NoError(t, pctx.ApplyEnrichment(ectx))

	assert.True(t, pctx.HasTags())
	assert.False(t, pctx.HasPhotos())
	assert.False(t, pctx.HasMembershipLinks())
	v, ok := pctx.Extra("score")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)

	assert.ErrorIs(t, pctx.ApplyEnrichment(ectx), ErrFieldAlreadySet)
}

func TestMediaRefKey(t *testing.T) {
	assert.Equal(t, "video:v1", MediaRef{Kind: "video", ID: "v1"}.Key())
}

func TestEnrichmentContextInputsAreIsolated(t *testing.T) {
	pctx := NewPipelineContext("1", "")
	require.NoError(t, pctx.SetEditorial(&Editorial{
		ID:         "1",
		Title:      "City council approves new budget",
		Visible:    true,
		Attributes: map[string]string{"kind": "news"},
	}))
	require.NoError(t, pctx.SetEmbedded(&EmbeddedBundle{
		Media:        []MediaRef{{Kind: MediaKindPhoto, ID: "p1"}, {Kind: MediaKindVideo, ID: "v1"}},
		SignatureIDs: []string{"s1", "s2"},
	}))

	ectx, err := pctx.NewEnrichmentContext()
	require.NoError(t, err)

	editorial := ectx.Editorial()
	editorial.Title = "hijacked"
	editorial.Visible = false
	editorial.Attributes["kind"] = "changed"
	bundle := ectx.Bundle()
	bundle.Media = nil
	bundle.SignatureIDs[0] = "changed"

	assert.Equal(t, "City council approves new budget", pctx.Editorial().Title)
	assert.True(t, pctx.Editorial().Visible)
	assert.Equal(t, "news", pctx.Editorial().Attributes["kind"])
	assert.Len(t, pctx.Embedded().Media, 2)
	assert.Equal(t, []string{"s1", "s2"}, pctx.Embedded().SignatureIDs)

	assert.Equal(t, "City council approves new budget", ectx.Editorial().Title)
	assert.Len(t, ectx.Bundle().Media, 2)
}
