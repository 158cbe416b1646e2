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

// europePMCAPIBase is the Europe PMC REST search endpoint.
var europePMCAPIBase = "https://www.ebi.ac.uk/europepmc/webservices/rest/search"

// EuropePMCAdapter queries Europe PMC, which indexes PubMed records and
// the PMC open-access full-text subset.
type EuropePMCAdapter struct {
	Client    *http.Client
	Limiter   ratelimit.Limiter
	UserAgent string
}

// Name returns the source identifier.
func (a *EuropePMCAdapter) Name() types.Source { return types.SourceEuropePMC }

// Search queries Europe PMC with the OR-joined variants.
func (a *EuropePMCAdapter) Search(ctx context.Context, variants []string, c types.Constraints) ([]types.EvidenceCandidate, error) {
	q := orQuery(variants)
	if q == "" {
		return nil, fmt.Errorf("empty Europe PMC query")
	}
	if !c.DateFrom.IsZero() {
		q = fmt.Sprintf("(%s) AND FIRST_PDATE:[%s TO 3000-12-31]", q, c.DateFrom.Format("2006-01-02"))
	}

	params := url.Values{
		"query":      {q},
		"format":     {"json"},
		"resultType": {"core"},
		"pageSize":   {fmt.Sprintf("%d", limit(c, 20, 100))},
	}

	req, err := newGet(ctx, europePMCAPIBase+"?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, err
	}
	resp, err := do(ctx, a.Client, a.Limiter, a.Name(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var er europePMCResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("parsing Europe PMC response: %w", err)
	}

	var results []types.EvidenceCandidate
	for _, r := range er.ResultList.Result {
		if r.ID == "" || r.Source == "" {
			continue
		}
		meta := map[string]string{}
		set := func(k, v string) {
			if v = strings.TrimSpace(v); v != "" {
				meta[k] = v
			}
		}
		set(types.MetaPMID, r.PMID)
		set(types.MetaPMCID, r.PMCID)
		set(types.MetaDOI, r.DOI)
		set(types.MetaAbstract, r.AbstractText)
		set(types.MetaAuthors, r.AuthorString)
		set(types.MetaJournal, r.JournalInfo.Journal.Title)
		set(types.MetaPublished, r.FirstPublicationDate)
		set(types.MetaYear, r.PubYear)
		set(types.MetaPublicationTypes, strings.Join(r.PubTypeList.PubType, ";"))
		set(types.MetaURL, europePMCURL(r.Source, r.ID, r.PMCID))

		results = append(results, types.EvidenceCandidate{
			Source:            types.SourceEuropePMC,
			ID:                r.Source + "/" + r.ID,
			Title:             strings.TrimSpace(r.Title),
			Metadata:          meta,
			FullTextAvailable: r.IsOpenAccess == "Y" || r.InPMC == "Y",
		})
	}
	return results, nil
}

// europePMCURL links to the full-text article when a PMCID exists, else to
// the abstract page.
func europePMCURL(src, id, pmcid string) string {
	if pmcid != "" {
		return "https://europepmc.org/article/PMC/" + pmcid
	}
	return "https://europepmc.org/article/" + src + "/" + id
}

// Europe PMC API JSON structures.
type europePMCResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []europePMCResult `json:"result"`
	} `json:"resultList"`
}

type europePMCResult struct {
	ID                   string `json:"id"`
	Source               string `json:"source"`
	PMID                 string `json:"pmid"`
	PMCID                string `json:"pmcid"`
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"`
	AbstractText         string `json:"abstractText"`
	PubYear              string `json:"pubYear"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	IsOpenAccess         string `json:"isOpenAccess"`
	InPMC                string `json:"inPMC"`
	JournalInfo          struct {
		Journal struct {
			Title string `json:"title"`
		} `json:"journal"`
	} `json:"journalInfo"`
	PubTypeList struct {
		PubType []string `json:"pubType"`
	} `json:"pubTypeList"`
}
