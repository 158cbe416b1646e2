// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/ratelimit"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexAdapter queries the OpenAlex Works API.
type OpenAlexAdapter struct {
	Client  *http.Client
	Limiter ratelimit.Limiter
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
}

// Name returns the source identifier.
func (a *OpenAlexAdapter) Name() types.Source { return types.SourceOpenAlex }

// Search queries OpenAlex with the primary variant.
func (a *OpenAlexAdapter) Search(ctx context.Context, variants []string, c types.Constraints) ([]types.EvidenceCandidate, error) {
	q := primaryQuery(variants)
	if q == "" {
		return nil, fmt.Errorf("empty OpenAlex query")
	}

	params := url.Values{
		"search":   {q},
		"per_page": {fmt.Sprintf("%d", limit(c, 20, 200))},
		"page":     {"1"},
	}
	if !c.DateFrom.IsZero() {
		params.Set("filter", "from_publication_date:"+c.DateFrom.Format("2006-01-02"))
	}
	if a.Email != "" {
		params.Set("mailto", a.Email)
	}

	req, err := newGet(ctx, openAlexSearchBase+"?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, err
	}
	resp, err := do(ctx, a.Client, a.Limiter, a.Name(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	var results []types.EvidenceCandidate
	for _, work := range oar.Results {
		meta := map[string]string{}
		id := work.ID
		if work.DOI != "" {
			// OpenAlex is DOI-centric; strip the resolver prefix for the bare DOI.
			doi := strings.TrimPrefix(work.DOI, "https://doi.org/")
			meta[types.MetaDOI] = doi
			meta[types.MetaURL] = "https://doi.org/" + doi
			id = doi
		} else if work.ID != "" {
			meta[types.MetaURL] = work.ID
		}
		if id == "" {
			continue
		}

		if abs := reconstructAbstract(work.AbstractInvertedIndex); abs != "" {
			meta[types.MetaAbstract] = abs
		}
		var authors []string
		for _, au := range work.Authorships {
			if au.Author.DisplayName != "" {
				authors = append(authors, au.Author.DisplayName)
			}
		}
		if len(authors) > 0 {
			meta[types.MetaAuthors] = strings.Join(authors, ", ")
		}
		if work.PublicationDate != "" {
			meta[types.MetaPublished] = work.PublicationDate
		} else if work.PublicationYear > 0 {
			meta[types.MetaYear] = fmt.Sprintf("%d", work.PublicationYear)
		}
		if work.Type != "" {
			meta[types.MetaPublicationTypes] = work.Type
		}
		if work.PrimaryLocation.Source.DisplayName != "" {
			meta[types.MetaJournal] = work.PrimaryLocation.Source.DisplayName
		}
		if pmid := strings.TrimPrefix(work.IDs.PMID, "https://pubmed.ncbi.nlm.nih.gov/"); pmid != "" {
			meta[types.MetaPMID] = strings.TrimSuffix(pmid, "/")
		}

		results = append(results, types.EvidenceCandidate{
			Source:            types.SourceOpenAlex,
			ID:                id,
			Title:             work.Title,
			Metadata:          meta,
			FullTextAvailable: work.OpenAccess.IsOA && work.OpenAccess.OAURL != "",
		})
	}
	return results, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The index maps each word to the positions where it appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DOI                   string           `json:"doi"`
	Type                  string           `json:"type"`
	PublicationDate       string           `json:"publication_date"`
	PublicationYear       int              `json:"publication_year"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	IDs struct {
		PMID string `json:"pmid"`
	} `json:"ids"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	OpenAccess struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
}
