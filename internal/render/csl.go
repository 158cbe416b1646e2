// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// CSLItem is a bibliographic entry in CSL-YAML form, consumable by Pandoc
// and reference managers.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	Publisher      string    `yaml:"publisher,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	PMID           string    `yaml:"PMID,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
	Note           string    `yaml:"note,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a CSL date using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// CSL writes citations as a CSL-YAML list.
func CSL(w io.Writer, cites []types.Citation) error {
	items := make([]CSLItem, len(cites))
	for i, c := range cites {
		items[i] = toCSLItem(c)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// cslTypes maps evidence types onto CSL item types; unlisted types are
// journal articles.
var cslTypes = map[types.EvidenceType]string{
	types.EvidenceGuideline: "report",
	types.EvidenceDrugLabel: "document",
	types.EvidenceWeb:       "webpage",
}

func toCSLItem(c types.Citation) CSLItem {
	item := CSLItem{
		ID:             cslID(c),
		Type:           "article-journal",
		Title:          c.Title,
		ContainerTitle: c.Journal,
		URL:            c.URL,
		Note:           "evidence type: " + string(c.EvidenceType),
	}
	if t, ok := cslTypes[c.EvidenceType]; ok {
		item.Type = t
		item.ContainerTitle = ""
		item.Publisher = c.Journal
	}
	if c.EvidenceType == "" {
		item.Note = ""
	}

	for _, a := range splitAuthors(c.Authors) {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if c.Year > 0 {
		item.Issued = &CSLDate{DateParts: [][]int{{c.Year}}}
	}

	switch {
	case strings.HasPrefix(c.ID, "10."):
		item.DOI = c.ID
	case c.Source == types.SourcePubMed:
		item.PMID = c.ID
	}
	if item.DOI == "" {
		if doi, ok := strings.CutPrefix(c.URL, "https://doi.org/"); ok {
			item.DOI = doi
		}
	}
	return item
}

// cslID is the citation key: source and id, with characters Pandoc rejects
// in keys replaced.
func cslID(c types.Citation) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '#', '/', ',':
			return '_'
		}
		return r
	}, string(c.Source)+":"+c.ID)
}

// splitAuthors splits a "A, B; C" author string on semicolons, or on commas
// when there are no semicolons.
func splitAuthors(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	var out []string
	for _, a := range strings.Split(s, sep) {
		if a = strings.TrimSpace(a); a != "" && !strings.EqualFold(a, "et al.") && !strings.EqualFold(a, "et al") {
			out = append(out, a)
		}
	}
	return out
}

// parseAuthorName splits a full name on its last space into given and
// family parts. PubMed-style "Family INITIALS" names keep the initials as
// the given name. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	if last := name[idx+1:]; isInitials(last) {
		return CSLName{Given: last, Family: name[:idx]}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}

func isInitials(s string) bool {
	if len(s) == 0 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
