// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize maps adapter output onto the common candidate shape and
// removes duplicates. Both stages are pure: malformed records are dropped
// with a diagnostic and never cause an error.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Diagnostic records why a candidate was dropped or merged.
type Diagnostic struct {
	Key    string `json:"key" yaml:"key"`
	Reason string `json:"reason" yaml:"reason"`
}

// minTextChars is the shortest body or title treated as usable text.
const minTextChars = 3

// Normalize fills the derived fields of each candidate: body text from the
// richest available field, content level, publication date and year,
// evidence type, and canonical URL. A record with neither identifier nor
// usable text is dropped; a record with text but no identifier gets a
// content-hash identifier.
func Normalize(cands []types.EvidenceCandidate) ([]types.EvidenceCandidate, []Diagnostic) {
	out := make([]types.EvidenceCandidate, 0, len(cands))
	var diags []Diagnostic

	for _, c := range cands {
		n := normalizeOne(c)

		hasText := len(n.Title) >= minTextChars || len(n.Body) >= minTextChars
		switch {
		case n.Source == "":
			diags = append(diags, Diagnostic{Key: n.Key(), Reason: "missing source"})
			continue
		case n.ID == "" && !hasText:
			diags = append(diags, Diagnostic{Key: n.Key(), Reason: "no identifier and no usable text"})
			continue
		case n.ID == "":
			n.ID = "sha256:" + contentHash(n.Title, n.Body)
		}
		out = append(out, n)
	}
	return out, diags
}

func normalizeOne(c types.EvidenceCandidate) types.EvidenceCandidate {
	meta := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	c.Metadata = meta
	c.ID = strings.TrimSpace(c.ID)
	c.Title = CleanText(c.Title)

	level := types.ContentNone
	switch {
	case strings.TrimSpace(c.Body) != "":
		c.Body = CleanText(c.Body)
		level = types.ContentAbstract
		if c.FullTextAvailable || strings.TrimSpace(meta[types.MetaFullText]) != "" {
			level = types.ContentFullText
		}
	case strings.TrimSpace(meta[types.MetaFullText]) != "":
		c.Body = CleanText(meta[types.MetaFullText])
		level = types.ContentFullText
	case strings.TrimSpace(meta[types.MetaAbstract]) != "":
		c.Body = CleanText(meta[types.MetaAbstract])
		level = types.ContentAbstract
	case strings.TrimSpace(meta[types.MetaSnippet]) != "":
		c.Body = CleanText(meta[types.MetaSnippet])
		level = types.ContentSnippet
	}
	c.ContentLevel = level
	meta[types.MetaContentLevel] = level.String()

	if c.Published.IsZero() {
		if t, ok := ParseDate(meta[types.MetaPublished]); ok {
			c.Published = t
		}
	}
	if c.Year == 0 {
		switch {
		case !c.Published.IsZero():
			c.Year = c.Published.Year()
		default:
			if y, err := strconv.Atoi(strings.TrimSpace(meta[types.MetaYear])); err == nil && y > 1800 {
				c.Year = y
			}
		}
	}

	if c.EvidenceType == "" {
		c.EvidenceType = Classify(c)
	}
	if !isHTTPURL(c.URL) {
		c.URL = CanonicalURL(c)
	}
	return c
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"2006",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"2 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseDate parses the date formats adapters emit.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// CanonicalURL returns the link used in citations. It prefers the adapter's
// URL, then identifiers in order PMID, PMCID, DOI, DailyMed set id. It
// returns "" when none is available.
func CanonicalURL(c types.EvidenceCandidate) string {
	if u := strings.TrimSpace(c.Meta(types.MetaURL)); isHTTPURL(u) {
		return u
	}
	if pmid := c.Meta(types.MetaPMID); pmid != "" {
		return "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/"
	}
	if pmcid := c.Meta(types.MetaPMCID); pmcid != "" {
		return "https://www.ncbi.nlm.nih.gov/pmc/articles/" + pmcid + "/"
	}
	if doi := c.Meta(types.MetaDOI); doi != "" {
		return "https://doi.org/" + doi
	}
	if setID := c.Meta(types.MetaSetID); setID != "" {
		return "https://dailymed.nlm.nih.gov/dailymed/drugInfo.cfm?setid=" + setID
	}
	if c.Source == types.SourceTavily && isHTTPURL(c.ID) {
		return c.ID
	}
	return ""
}

func isHTTPURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Classification markers, checked in priority order against publication
// types first and the title second.
var typeMarkers = []struct {
	kind    types.EvidenceType
	markers []string
}{
	{types.EvidenceGuideline, []string{"practice guideline", "guideline", "consensus statement", "position statement", "recommendations"}},
	{types.EvidenceSystematicReview, []string{"systematic review", "meta-analysis", "meta analysis", "metaanalysis", "network meta"}},
	{types.EvidenceRCT, []string{"randomized controlled trial", "randomised controlled trial", "randomized", "randomised", "clinical trial, phase iii"}},
	{types.EvidenceObservational, []string{"cohort", "case-control", "case control", "observational", "cross-sectional", "registry", "retrospective", "prospective study"}},
	{types.EvidenceNarrative, []string{"review", "editorial", "comment", "case report"}},
}

// Classify derives the evidence type from the source and publication
// metadata.
func Classify(c types.EvidenceCandidate) types.EvidenceType {
	switch c.Source {
	case types.SourceGuidelines:
		return types.EvidenceGuideline
	case types.SourceDailyMed:
		return types.EvidenceDrugLabel
	}

	if t := matchType(strings.ToLower(c.Meta(types.MetaPublicationTypes))); t != "" {
		return t
	}
	if t := matchType(strings.ToLower(c.Title)); t != "" {
		return t
	}
	if c.Source == types.SourceTavily {
		return types.EvidenceWeb
	}
	return types.EvidenceOther
}

func matchType(s string) types.EvidenceType {
	if s == "" {
		return ""
	}
	for _, tm := range typeMarkers {
		for _, m := range tm.markers {
			if strings.Contains(s, m) {
				return tm.kind
			}
		}
	}
	return ""
}

func contentHash(title, body string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(title) + "\x00" + strings.ToLower(body)))
	return hex.EncodeToString(sum[:8])
}

// String renders a diagnostic for logs.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Key, d.Reason)
}
