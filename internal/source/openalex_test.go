// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"nil map", nil, ""},
		{"empty map", map[string][]int{}, ""},
		{"single word", map[string][]int{"hello": {0}}, "hello"},
		{
			name:  "repeated word",
			index: map[string][]int{"the": {0, 4}, "cat": {1}, "sat": {2}, "on": {3}, "mat": {5}},
			want:  "the cat sat on the mat",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconstructAbstract(tt.index); got != tt.want {
				t.Errorf("reconstructAbstract() = %q, want %q", got, tt.want)
			}
		})
	}
}

const sampleOpenAlexJSON = `{
  "results": [
    {
      "id": "https://openalex.org/W1",
      "title": "Statins for primary prevention",
      "doi": "https://doi.org/10.1000/statin.1",
      "type": "review",
      "publication_date": "2020-05-01",
      "publication_year": 2020,
      "authorships": [{"author": {"display_name": "Ada Lovelace"}}],
      "abstract_inverted_index": {"Statins": [0], "lower": [1], "LDL": [2]},
      "ids": {"pmid": "https://pubmed.ncbi.nlm.nih.gov/30000001"},
      "primary_location": {"source": {"display_name": "JAMA"}},
      "open_access": {"is_oa": true, "oa_url": "https://example.org/pdf"}
    },
    {
      "id": "https://openalex.org/W2",
      "title": "Untitled cohort",
      "doi": "",
      "publication_year": 2018,
      "open_access": {"is_oa": false}
    }
  ]
}`

func TestOpenAlexAdapterSearch(t *testing.T) {
	var mailto, filter string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mailto = r.URL.Query().Get("mailto")
		filter = r.URL.Query().Get("filter")
		fmt.Fprint(w, sampleOpenAlexJSON)
	}))
	defer ts.Close()
	swapBase(t, &openAlexSearchBase, ts.URL)

	a := &OpenAlexAdapter{Client: ts.Client(), Email: "ops@example.com"}
	results, err := a.Search(context.Background(), []string{"statins primary prevention"}, types.Constraints{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if mailto != "ops@example.com" {
		t.Errorf("mailto = %q", mailto)
	}
	if filter != "" {
		t.Errorf("filter = %q, want none without DateFrom", filter)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	r0 := results[0]
	if r0.ID != "10.1000/statin.1" {
		t.Errorf("ID = %q, want bare DOI", r0.ID)
	}
	if r0.Meta(types.MetaURL) != "https://doi.org/10.1000/statin.1" {
		t.Errorf("url = %q", r0.Meta(types.MetaURL))
	}
	if r0.Meta(types.MetaAbstract) != "Statins lower LDL" {
		t.Errorf("abstract = %q", r0.Meta(types.MetaAbstract))
	}
	if r0.Meta(types.MetaPMID) != "30000001" {
		t.Errorf("pmid = %q", r0.Meta(types.MetaPMID))
	}
	if !r0.FullTextAvailable {
		t.Error("FullTextAvailable = false, want true for OA with URL")
	}

	r1 := results[1]
	if r1.ID != "https://openalex.org/W2" {
		t.Errorf("ID = %q, want OpenAlex id fallback", r1.ID)
	}
	if r1.Meta(types.MetaYear) != "2018" {
		t.Errorf("year = %q", r1.Meta(types.MetaYear))
	}
}

func TestOpenAlexAdapterEmptyQuery(t *testing.T) {
	_, err := (&OpenAlexAdapter{}).Search(context.Background(), []string{"  "}, types.Constraints{})
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("err = %v, want empty query error", err)
	}
}
