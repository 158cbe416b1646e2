// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/evidence-engine/internal/ratelimit"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// dailyMedAPIBase is the DailyMed v2 services base.
var dailyMedAPIBase = "https://dailymed.nlm.nih.gov/dailymed/services/v2"

// Label sections extracted from SPL documents, keyed by LOINC code, in the
// order they appear in candidate text.
var splSections = []struct {
	Code string
	Name string
}{
	{"34067-9", "Indications and Usage"},
	{"34068-7", "Dosage and Administration"},
	{"43685-7", "Warnings and Precautions"},
	{"34084-4", "Adverse Reactions"},
	{"34073-7", "Drug Interactions"},
	{"34090-1", "Clinical Pharmacology"},
	{"34076-0", "Information for Patients"},
}

const (
	splSectionMaxChars  = 3000
	splFallbackMaxChars = 5000
	splMinSectionChars  = 20
)

// DailyMedAdapter retrieves FDA structured product labels for the drugs
// named in the constraints. It returns nothing when no drugs are named.
type DailyMedAdapter struct {
	Client    *http.Client
	Limiter   ratelimit.Limiter
	UserAgent string

	// PublishedAfter restricts labels by publication date. Constraints.DateFrom
	// takes precedence when set.
	PublishedAfter time.Time

	// LabelsPerDrug caps labels fetched per drug (default 2).
	LabelsPerDrug int
}

// Name returns the source identifier.
func (a *DailyMedAdapter) Name() types.Source { return types.SourceDailyMed }

// Search fetches up to LabelsPerDrug labels for each drug. A drug whose
// lookup fails is skipped; the call fails only when every drug fails.
func (a *DailyMedAdapter) Search(ctx context.Context, _ []string, c types.Constraints) ([]types.EvidenceCandidate, error) {
	if len(c.Drugs) == 0 {
		return nil, nil
	}

	perDrug := a.LabelsPerDrug
	if perDrug <= 0 {
		perDrug = 2
	}
	after := a.PublishedAfter
	if !c.DateFrom.IsZero() {
		after = c.DateFrom
	}

	var (
		results []types.EvidenceCandidate
		errs    []error
		seen    = make(map[string]bool)
	)
	for _, drug := range c.Drugs {
		labels, err := a.searchDrug(ctx, drug, perDrug, after)
		if err != nil {
			var rl *RateLimitError
			if errors.As(err, &rl) || ctx.Err() != nil {
				return results, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", drug, err))
			continue
		}
		for _, l := range labels {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			results = append(results, l)
		}
	}
	if len(errs) == len(c.Drugs) {
		return nil, fmt.Errorf("%w: dailymed: %w", ErrAdapterFailure, errors.Join(errs...))
	}
	return results, nil
}

func (a *DailyMedAdapter) searchDrug(ctx context.Context, drug string, n int, after time.Time) ([]types.EvidenceCandidate, error) {
	params := url.Values{
		"drug_name": {drug},
		"pagesize":  {fmt.Sprintf("%d", n)},
	}
	if !after.IsZero() {
		params.Set("published_after", after.Format("2006-01-02"))
	}

	req, err := newGet(ctx, dailyMedAPIBase+"/spls.json?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, err
	}
	resp, err := do(ctx, a.Client, a.Limiter, a.Name(), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lr dailyMedListResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("parsing DailyMed spls response: %w", err)
	}

	var out []types.EvidenceCandidate
	for _, spl := range lr.Data {
		if len(out) == n {
			break
		}
		if spl.SetID == "" {
			continue
		}
		text, err := a.fetchLabel(ctx, spl.SetID)
		if err != nil {
			var rl *RateLimitError
			if errors.As(err, &rl) || ctx.Err() != nil {
				return out, err
			}
			continue
		}

		meta := map[string]string{
			types.MetaSetID:        spl.SetID,
			types.MetaURL:          "https://dailymed.nlm.nih.gov/dailymed/drugInfo.cfm?setid=" + spl.SetID,
			types.MetaOrganization: "U.S. Food and Drug Administration",
		}
		if text != "" {
			meta[types.MetaFullText] = text
		}
		if t, err := time.Parse("Jan 02, 2006", spl.PublishedDate); err == nil {
			meta[types.MetaPublished] = t.Format("2006-01-02")
		}
		out = append(out, types.EvidenceCandidate{
			Source:            types.SourceDailyMed,
			ID:                spl.SetID,
			Title:             strings.TrimSpace(spl.Title),
			Metadata:          meta,
			FullTextAvailable: text != "",
		})
	}
	return out, nil
}

func (a *DailyMedAdapter) fetchLabel(ctx context.Context, setID string) (string, error) {
	req, err := newGet(ctx, dailyMedAPIBase+"/spls/"+url.PathEscape(setID)+".xml", a.UserAgent)
	if err != nil {
		return "", err
	}
	resp, err := do(ctx, a.Client, a.Limiter, a.Name(), req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	sections, fallback, err := parseSPL(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing SPL %s: %w", setID, err)
	}
	return labelText(sections, fallback), nil
}

// parseSPL walks an SPL document and collects the text of every section
// whose code is one of splSections. Nested sections contribute their text
// to each enclosing tracked section. fallback holds all document text, used
// when no tracked section is present.
func parseSPL(r io.Reader) (map[string]string, string, error) {
	known := make(map[string]bool, len(splSections))
	for _, s := range splSections {
		known[s.Code] = true
	}

	type frame struct {
		code    string
		sawCode bool
		text    strings.Builder
	}

	var (
		stack    []*frame
		all      strings.Builder
		sections = make(map[string]string)
		d        = xml.NewDecoder(r)
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "section":
				stack = append(stack, &frame{})
			case "code":
				if len(stack) == 0 {
					continue
				}
				top := stack[len(stack)-1]
				if top.sawCode {
					continue
				}
				top.sawCode = true
				for _, attr := range t.Attr {
					if attr.Name.Local == "code" && known[attr.Value] {
						top.code = attr.Value
					}
				}
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			all.WriteString(text)
			all.WriteByte(' ')
			for _, f := range stack {
				if f.code != "" {
					f.text.WriteString(text)
					f.text.WriteByte(' ')
				}
			}
		case xml.EndElement:
			if t.Name.Local != "section" || len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			text := strings.TrimSpace(top.text.String())
			if top.code == "" || len(text) <= splMinSectionChars {
				continue
			}
			if prev := sections[top.code]; prev != "" {
				text = prev + "\n\n" + text
			}
			sections[top.code] = truncate(text, splSectionMaxChars)
		}
	}
	return sections, truncate(strings.TrimSpace(all.String()), splFallbackMaxChars), nil
}

// labelText renders extracted sections in splSections order, or the
// fallback text when none were found.
func labelText(sections map[string]string, fallback string) string {
	var parts []string
	for _, s := range splSections {
		if text := sections[s.Code]; text != "" {
			parts = append(parts, s.Name+":\n"+text)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// DailyMed API JSON structures.
type dailyMedListResponse struct {
	Data []struct {
		SetID         string `json:"setid"`
		Title         string `json:"title"`
		PublishedDate string `json:"published_date"`
		SPLVersion    int    `json:"spl_version"`
	} `json:"data"`
}
