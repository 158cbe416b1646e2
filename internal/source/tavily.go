// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pdiddy/evidence-engine/internal/ratelimit"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// tavilyAPIBase is the Tavily search endpoint.
var tavilyAPIBase = "https://api.tavily.com/search"

// DefaultTavilyDomains restricts web search to clinical reference sites.
var DefaultTavilyDomains = []string{
	"nih.gov",
	"cdc.gov",
	"who.int",
	"fda.gov",
	"nice.org.uk",
	"mayoclinic.org",
	"uptodate.com",
	"medscape.com",
	"heart.org",
	"diabetesjournals.org",
}

// TavilyAdapter performs a domain-restricted web search through Tavily.
type TavilyAdapter struct {
	Client    *http.Client
	Limiter   ratelimit.Limiter
	APIKey    string
	UserAgent string

	// IncludeDomains overrides DefaultTavilyDomains when non-empty.
	IncludeDomains []string
}

// Name returns the source identifier.
func (a *TavilyAdapter) Name() types.Source { return types.SourceTavily }

// Search posts the primary variant to Tavily. A missing API key is an
// adapter failure.
func (a *TavilyAdapter) Search(ctx context.Context, variants []string, c types.Constraints) ([]types.EvidenceCandidate, error) {
	if a.APIKey == "" {
		return nil, fmt.Errorf("%w: tavily: no API key configured", ErrAdapterFailure)
	}
	q := primaryQuery(variants)
	if q == "" {
		return nil, fmt.Errorf("empty Tavily query")
	}

	domains := a.IncludeDomains
	if len(domains) == 0 {
		domains = DefaultTavilyDomains
	}
	body, err := json.Marshal(tavilyRequest{
		Query:          q,
		MaxResults:     limit(c, 5, 20),
		SearchDepth:    "advanced",
		IncludeDomains: domains,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding Tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyAPIBase, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
	if a.UserAgent != "" {
		req.Header.Set("User-Agent", a.UserAgent)
	}

	resp, err := do(ctx, a.Client, a.Limiter, a.Name(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("parsing Tavily response: %w", err)
	}

	var results []types.EvidenceCandidate
	for _, r := range tr.Results {
		if r.URL == "" {
			continue
		}
		meta := map[string]string{types.MetaURL: r.URL}
		if r.Content != "" {
			meta[types.MetaSnippet] = r.Content
		}
		if r.PublishedDate != "" {
			meta[types.MetaPublished] = r.PublishedDate
		}
		results = append(results, types.EvidenceCandidate{
			Source:   types.SourceTavily,
			ID:       r.URL,
			Title:    r.Title,
			Metadata: meta,
		})
	}
	return results, nil
}

// Tavily API JSON structures.
type tavilyRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}
