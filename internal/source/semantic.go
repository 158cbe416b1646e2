// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/ratelimit"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate,publicationTypes,venue,openAccessPdf,tldr"

// SemanticScholarAdapter queries the Semantic Scholar Graph API.
type SemanticScholarAdapter struct {
	Client    *http.Client
	Limiter   ratelimit.Limiter
	APIKey    string
	UserAgent string
}

// Name returns the source identifier.
func (a *SemanticScholarAdapter) Name() types.Source { return types.SourceSemanticScholar }

// Search queries Semantic Scholar with the primary variant.
func (a *SemanticScholarAdapter) Search(ctx context.Context, variants []string, c types.Constraints) ([]types.EvidenceCandidate, error) {
	q := primaryQuery(variants)
	if q == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}

	params := url.Values{
		"query":  {q},
		"limit":  {fmt.Sprintf("%d", limit(c, 20, 100))},
		"fields": {semanticFields},
	}
	if !c.DateFrom.IsZero() {
		params.Set("year", fmt.Sprintf("%d-", c.DateFrom.Year()))
	}

	req, err := newGet(ctx, semanticAPIBase+"?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, err
	}
	if a.APIKey != "" {
		req.Header.Set("x-api-key", a.APIKey)
	}

	resp, err := do(ctx, a.Client, a.Limiter, a.Name(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	var results []types.EvidenceCandidate
	for _, paper := range sr.Data {
		meta := map[string]string{}

		// Prefer the DOI, then the PMID, then the native paper id.
		id := paper.PaperID
		switch {
		case paper.ExternalIDs.DOI != "":
			id = paper.ExternalIDs.DOI
			meta[types.MetaURL] = "https://doi.org/" + paper.ExternalIDs.DOI
		case paper.ExternalIDs.PubMed != "":
			id = "pmid:" + paper.ExternalIDs.PubMed
		}
		if id == "" {
			continue
		}
		if paper.ExternalIDs.DOI != "" {
			meta[types.MetaDOI] = paper.ExternalIDs.DOI
		}
		if paper.ExternalIDs.PubMed != "" {
			meta[types.MetaPMID] = paper.ExternalIDs.PubMed
		}
		if meta[types.MetaURL] == "" && paper.PaperID != "" {
			meta[types.MetaURL] = "https://www.semanticscholar.org/paper/" + paper.PaperID
		}

		switch {
		case paper.Abstract != "":
			meta[types.MetaAbstract] = paper.Abstract
		case paper.TLDR.Text != "":
			meta[types.MetaSnippet] = paper.TLDR.Text
		}

		var authors []string
		for _, au := range paper.Authors {
			authors = append(authors, au.Name)
		}
		if len(authors) > 0 {
			meta[types.MetaAuthors] = strings.Join(authors, ", ")
		}
		if paper.PublicationDate != "" {
			meta[types.MetaPublished] = paper.PublicationDate
		} else if paper.Year > 0 {
			meta[types.MetaYear] = fmt.Sprintf("%d", paper.Year)
		}
		if len(paper.PublicationTypes) > 0 {
			meta[types.MetaPublicationTypes] = strings.Join(paper.PublicationTypes, ";")
		}
		if paper.Venue != "" {
			meta[types.MetaJournal] = paper.Venue
		}

		results = append(results, types.EvidenceCandidate{
			Source:            types.SourceSemanticScholar,
			ID:                id,
			Title:             paper.Title,
			Metadata:          meta,
			FullTextAvailable: paper.OpenAccessPDF.URL != "",
		})
	}
	return results, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID          string   `json:"paperId"`
	Title            string   `json:"title"`
	Abstract         string   `json:"abstract"`
	Year             int      `json:"year"`
	PublicationDate  string   `json:"publicationDate"`
	PublicationTypes []string `json:"publicationTypes"`
	Venue            string   `json:"venue"`
	Authors          []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs struct {
		DOI    string `json:"DOI"`
		PubMed string `json:"PubMed"`
	} `json:"externalIds"`
	OpenAccessPDF struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	TLDR struct {
		Text string `json:"text"`
	} `json:"tldr"`
}
