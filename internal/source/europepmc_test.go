// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const sampleEuropePMCJSON = `{
  "hitCount": 2,
  "resultList": {"result": [
    {
      "id": "34000001", "source": "MED", "pmid": "34000001", "pmcid": "PMC8000001",
      "doi": "10.1000/copd.1", "title": "Triple therapy in COPD: a systematic review",
      "authorString": "Smith A, Jones B.", "abstractText": "Triple therapy reduced exacerbations.",
      "pubYear": "2022", "firstPublicationDate": "2022-02-14",
      "isOpenAccess": "Y", "inPMC": "Y",
      "journalInfo": {"journal": {"title": "Thorax"}},
      "pubTypeList": {"pubType": ["Systematic Review", "Journal Article"]}
    },
    {
      "id": "PPR12345", "source": "PPR", "title": "A preprint on COPD",
      "pubYear": "2023", "isOpenAccess": "N"
    },
    {"id": "", "source": "MED", "title": "dropped"}
  ]}
}`

func TestEuropePMCAdapterSearch(t *testing.T) {
	var query string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("query")
		assert.Equal(t, "core", r.URL.Query().Get("resultType"))
		fmt.Fprint(w, sampleEuropePMCJSON)
	}))
	defer ts.Close()
	swapBase(t, &europePMCAPIBase, ts.URL)

	a := &EuropePMCAdapter{Client: ts.Client()}
	c := types.Constraints{DateFrom: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)}
	results, err := a.Search(context.Background(), []string{"copd triple therapy"}, c)
	require.NoError(t, err)
	assert.Equal(t, "(copd triple therapy) AND FIRST_PDATE:[2021-06-01 TO 3000-12-31]", query)

	require.Len(t, results, 2)
	r0 := results[0]
	assert.Equal(t, "MED/34000001", r0.ID)
	assert.True(t, r0.FullTextAvailable)
	assert.Equal(t, "https://europepmc.org/article/PMC/PMC8000001", r0.Meta(types.MetaURL))
	assert.Equal(t, "Systematic Review;Journal Article", r0.Meta(types.MetaPublicationTypes))
	assert.Equal(t, "2022-02-14", r0.Meta(types.MetaPublished))
	assert.Equal(t, "Thorax", r0.Meta(types.MetaJournal))

	r1 := results[1]
	assert.Equal(t, "PPR/PPR12345", r1.ID)
	assert.False(t, r1.FullTextAvailable)
	assert.Equal(t, "https://europepmc.org/article/PPR/PPR12345", r1.Meta(types.MetaURL))
	assert.Empty(t, r1.Meta(types.MetaAbstract))
}

func TestEuropePMCAdapterHTTPError(t *testing.T) {
	ts := jsonServer(t, http.StatusServiceUnavailable, "")
	swapBase(t, &europePMCAPIBase, ts.URL)

	_, err := (&EuropePMCAdapter{}).Search(context.Background(), []string{"copd"}, types.Constraints{})
	assert.ErrorIs(t, err, ErrAdapterFailure)
}
