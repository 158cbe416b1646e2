// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestTavilyAdapterSearch(t *testing.T) {
	var (
		auth string
		body tavilyRequest
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"results": [
			{"title": "Asthma care", "url": "https://www.nih.gov/asthma", "content": "Inhaled steroids are first line.", "score": 0.9, "published_date": "2024-01-10"},
			{"title": "No URL", "url": "", "content": "dropped"}
		]}`)
	}))
	defer ts.Close()
	swapBase(t, &tavilyAPIBase, ts.URL)

	a := &TavilyAdapter{Client: ts.Client(), APIKey: "tv-key", IncludeDomains: []string{"nih.gov"}}
	results, err := a.Search(context.Background(), []string{"asthma first line"}, types.Constraints{MaxResults: 3})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tv-key", auth)
	assert.Equal(t, "asthma first line", body.Query)
	assert.Equal(t, 3, body.MaxResults)
	assert.Equal(t, []string{"nih.gov"}, body.IncludeDomains)

	require.Len(t, results, 1)
	assert.Equal(t, "https://www.nih.gov/asthma", results[0].ID)
	assert.Equal(t, "Inhaled steroids are first line.", results[0].Meta(types.MetaSnippet))
	assert.Equal(t, "2024-01-10", results[0].Meta(types.MetaPublished))
}

func TestTavilyAdapterDefaultDomains(t *testing.T) {
	var body tavilyRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer ts.Close()
	swapBase(t, &tavilyAPIBase, ts.URL)

	_, err := (&TavilyAdapter{APIKey: "k"}).Search(context.Background(), []string{"q"}, types.Constraints{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTavilyDomains, body.IncludeDomains)
	assert.Equal(t, 5, body.MaxResults)
}

func TestTavilyAdapterMissingKey(t *testing.T) {
	_, err := (&TavilyAdapter{}).Search(context.Background(), []string{"q"}, types.Constraints{})
	assert.ErrorIs(t, err, ErrAdapterFailure)
}
