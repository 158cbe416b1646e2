// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

type fakeIndex struct {
	chunks map[string][]types.GuidelineChunk
	err    error
	calls  []string
}

func (f *fakeIndex) Search(_ context.Context, query string, _ int) ([]types.GuidelineChunk, error) {
	f.calls = append(f.calls, query)
	return f.chunks[query], f.err
}

func TestGuidelinesAdapterSearch(t *testing.T) {
	htn := types.GuidelineChunk{
		DocID: "htn-2024", Index: 1, Title: "Hypertension Guideline", Section: "First-line therapy",
		Organization: "NHS", Text: "Thiazides are first line.", URL: "https://example.org/htn", Published: "2024",
	}
	idx := &fakeIndex{chunks: map[string][]types.GuidelineChunk{
		"htn therapy":          {htn},
		"hypertension therapy": {htn, {DocID: "htn-2024", Index: 2, Title: "Hypertension Guideline", Text: "Monitor."}},
	}}

	a := &GuidelinesAdapter{Index: idx}
	results, err := a.Search(context.Background(), []string{"htn therapy", "hypertension therapy"}, types.Constraints{})
	require.NoError(t, err)
	assert.Equal(t, []string{"htn therapy", "hypertension therapy"}, idx.calls)

	require.Len(t, results, 2)
	r0 := results[0]
	assert.Equal(t, "htn-2024#1", r0.ID)
	assert.Equal(t, "Hypertension Guideline: First-line therapy", r0.Title)
	assert.Equal(t, "Thiazides are first line.", r0.Meta(types.MetaFullText))
	assert.Equal(t, "First-line therapy", r0.Meta(types.MetaSection))
	assert.Equal(t, "1", r0.Meta(types.MetaChunkIndex))
	assert.True(t, r0.FullTextAvailable)

	assert.Equal(t, "htn-2024#2", results[1].ID)
	assert.Equal(t, "Hypertension Guideline", results[1].Title)
}

func TestGuidelinesAdapterErrors(t *testing.T) {
	_, err := (&GuidelinesAdapter{}).Search(context.Background(), []string{"q"}, types.Constraints{})
	assert.ErrorIs(t, err, ErrAdapterFailure)

	a := &GuidelinesAdapter{Index: &fakeIndex{err: errors.New("no such table")}}
	_, err = a.Search(context.Background(), []string{"q"}, types.Constraints{})
	assert.ErrorIs(t, err, ErrAdapterFailure)
	assert.Contains(t, err.Error(), "no such table")
}
