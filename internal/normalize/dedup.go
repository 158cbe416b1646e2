// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Deduplicate merges candidates that refer to the same record. Records
// collide on the identity key (source, id), on a shared DOI or PMID, or on
// normalized title plus publication year, even across sources. The richer
// record survives (full text > abstract > snippet, then source priority)
// and absorbs metadata the other has. Output order follows first
// appearance.
func Deduplicate(cands []types.EvidenceCandidate) ([]types.EvidenceCandidate, []Diagnostic) {
	seen := make(map[string]int) // dedup key -> index in out
	var (
		out   []types.EvidenceCandidate
		diags []Diagnostic
	)

	for _, c := range cands {
		keys := dedupKeys(c)

		idx, matched := -1, ""
		for _, k := range keys {
			if i, ok := seen[k]; ok {
				idx, matched = i, k
				break
			}
		}

		if idx < 0 {
			idx = len(out)
			out = append(out, c)
		} else {
			kept, dropped := merge(out[idx], c)
			out[idx] = kept
			diags = append(diags, Diagnostic{
				Key:    dropped.Key(),
				Reason: fmt.Sprintf("duplicate of %s (%s)", kept.Key(), keyKind(matched)),
			})
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = idx
			}
		}
		// The surviving record's own identity must always resolve here.
		seen["key:"+out[idx].Key()] = idx
	}
	return out, diags
}

// dedupKeys returns the collision keys for c, most specific first.
func dedupKeys(c types.EvidenceCandidate) []string {
	keys := []string{"key:" + c.Key()}
	if doi := strings.ToLower(strings.TrimSpace(c.Meta(types.MetaDOI))); doi != "" {
		keys = append(keys, "doi:"+doi)
	}
	if pmid := strings.TrimSpace(c.Meta(types.MetaPMID)); pmid != "" {
		keys = append(keys, "pmid:"+pmid)
	}
	// Guideline chunks share their document title by construction.
	if c.Source != types.SourceGuidelines {
		if t := NormalizeTitle(c.Title); t != "" {
			keys = append(keys, fmt.Sprintf("title:%s|%d", t, c.Year))
		}
	}
	return keys
}

func keyKind(k string) string {
	if i := strings.IndexByte(k, ':'); i > 0 {
		return k[:i]
	}
	return k
}

// richer reports whether a should be kept over b.
func richer(a, b types.EvidenceCandidate) bool {
	if a.ContentLevel != b.ContentLevel {
		return a.ContentLevel > b.ContentLevel
	}
	if pa, pb := a.Source.Priority(), b.Source.Priority(); pa != pb {
		return pa < pb
	}
	return len(a.Body) > len(b.Body)
}

// merge returns the surviving record, with empty fields filled from the
// other, and the dropped record.
func merge(existing, incoming types.EvidenceCandidate) (kept, dropped types.EvidenceCandidate) {
	kept, dropped = existing, incoming
	if richer(incoming, existing) {
		kept, dropped = incoming, existing
	}

	meta := make(map[string]string, len(kept.Metadata)+len(dropped.Metadata))
	for k, v := range dropped.Metadata {
		meta[k] = v
	}
	for k, v := range kept.Metadata {
		if v != "" {
			meta[k] = v
		}
	}
	kept.Metadata = meta

	if kept.Title == "" {
		kept.Title = dropped.Title
	}
	if kept.URL == "" {
		kept.URL = dropped.URL
	}
	if kept.Year == 0 {
		kept.Year = dropped.Year
	}
	if kept.Published.IsZero() {
		kept.Published = dropped.Published
	}
	if kept.EvidenceType == types.EvidenceOther && dropped.EvidenceType != "" {
		kept.EvidenceType = dropped.EvidenceType
	}
	kept.FullTextAvailable = kept.FullTextAvailable || dropped.FullTextAvailable
	if dropped.LexicalScore > kept.LexicalScore {
		kept.LexicalScore = dropped.LexicalScore
	}
	return kept, dropped
}
