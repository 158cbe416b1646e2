// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/ratelimit"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// pubmedAPIBase is the NCBI E-utilities base. Declared as a var so tests
// can substitute an httptest server.
var pubmedAPIBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedAdapter searches PubMed through esearch (ids) and efetch (records).
type PubMedAdapter struct {
	Client    *http.Client
	Limiter   ratelimit.Limiter
	APIKey    string
	UserAgent string
}

// Name returns the source identifier.
func (a *PubMedAdapter) Name() types.Source { return types.SourcePubMed }

// Search runs esearch for PMIDs and fetches their abstracts with efetch.
func (a *PubMedAdapter) Search(ctx context.Context, variants []string, c types.Constraints) ([]types.EvidenceCandidate, error) {
	term := orQuery(variants)
	if term == "" {
		return nil, fmt.Errorf("empty PubMed query")
	}

	ids, err := a.esearch(ctx, term, c)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	articles, err := a.efetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	var results []types.EvidenceCandidate
	for _, art := range articles {
		if cand, ok := art.candidate(); ok {
			results = append(results, cand)
		}
	}
	return results, nil
}

func (a *PubMedAdapter) esearch(ctx context.Context, term string, c types.Constraints) ([]string, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {term},
		"retmax":  {fmt.Sprintf("%d", limit(c, 20, 100))},
		"retmode": {"json"},
		"sort":    {"relevance"},
	}
	if !c.DateFrom.IsZero() {
		params.Set("datetype", "pdat")
		params.Set("mindate", c.DateFrom.Format("2006/01/02"))
		params.Set("maxdate", "3000")
	}
	if a.APIKey != "" {
		params.Set("api_key", a.APIKey)
	}

	req, err := newGet(ctx, pubmedAPIBase+"/esearch.fcgi?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, err
	}
	resp, err := do(ctx, a.Client, a.Limiter, a.Name(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing PubMed esearch response: %w", err)
	}
	return sr.Result.IDList, nil
}

func (a *PubMedAdapter) efetch(ctx context.Context, ids []string) ([]pubmedArticle, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(ids, ",")},
		"retmode": {"xml"},
	}
	if a.APIKey != "" {
		params.Set("api_key", a.APIKey)
	}

	req, err := newGet(ctx, pubmedAPIBase+"/efetch.fcgi?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, err
	}
	resp, err := do(ctx, a.Client, a.Limiter, a.Name(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var set pubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("parsing PubMed efetch response: %w", err)
	}
	return set.Articles, nil
}

// candidate maps one efetch record to an EvidenceCandidate. Records without
// a PMID are skipped.
func (art pubmedArticle) candidate() (types.EvidenceCandidate, bool) {
	cit := art.MedlineCitation
	pmid := strings.TrimSpace(cit.PMID)
	if pmid == "" {
		return types.EvidenceCandidate{}, false
	}

	meta := map[string]string{
		types.MetaPMID:    pmid,
		types.MetaURL:     "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		types.MetaJournal: strings.TrimSpace(cit.Article.Journal.Title),
	}

	var abstract []string
	for _, at := range cit.Article.Abstract.Texts {
		text := strings.TrimSpace(at.Text)
		if text == "" {
			continue
		}
		if at.Label != "" {
			text = at.Label + ": " + text
		}
		abstract = append(abstract, text)
	}
	if len(abstract) > 0 {
		meta[types.MetaAbstract] = strings.Join(abstract, "\n")
	}

	var authors []string
	for _, au := range cit.Article.Authors {
		name := strings.TrimSpace(au.LastName + " " + au.Initials)
		if name == "" {
			name = strings.TrimSpace(au.CollectiveName)
		}
		if name != "" {
			authors = append(authors, name)
		}
	}
	if len(authors) > 0 {
		meta[types.MetaAuthors] = strings.Join(authors, ", ")
	}

	var pubTypes []string
	for _, pt := range cit.Article.PublicationTypes {
		pubTypes = append(pubTypes, strings.TrimSpace(pt))
	}
	if len(pubTypes) > 0 {
		meta[types.MetaPublicationTypes] = strings.Join(pubTypes, ";")
	}

	pd := cit.Article.Journal.Issue.PubDate
	switch {
	case pd.Year != "":
		meta[types.MetaYear] = pd.Year
	case len(pd.MedlineDate) >= 4:
		meta[types.MetaYear] = pd.MedlineDate[:4]
	}

	fullText := false
	for _, id := range art.PubmedData.ArticleIDs {
		switch id.IDType {
		case "doi":
			meta[types.MetaDOI] = strings.TrimSpace(id.Value)
		case "pmc":
			meta[types.MetaPMCID] = strings.TrimSpace(id.Value)
			fullText = true
		}
	}

	return types.EvidenceCandidate{
		Source:            types.SourcePubMed,
		ID:                pmid,
		Title:             strings.TrimSpace(cit.Article.Title),
		Metadata:          meta,
		FullTextAvailable: fullText,
	}, true
}

// NCBI E-utilities JSON and XML structures.
type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title   string `xml:"ArticleTitle"`
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate struct {
						Year        string `xml:"Year"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Abstract struct {
				Texts []pubmedAbstractText `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors          []pubmedAuthor `xml:"AuthorList>Author"`
			PublicationTypes []string       `xml:"PublicationTypeList>PublicationType"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []pubmedArticleID `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

type pubmedAbstractText struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type pubmedAuthor struct {
	LastName       string `xml:"LastName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

type pubmedArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}
