// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// GuidelineIndex searches ingested guideline chunks.
type GuidelineIndex interface {
	Search(ctx context.Context, query string, limit int) ([]types.GuidelineChunk, error)
}

// GuidelinesAdapter serves the local guideline index as an evidence source.
type GuidelinesAdapter struct {
	Index GuidelineIndex
}

// Name returns the source identifier.
func (a *GuidelinesAdapter) Name() types.Source { return types.SourceGuidelines }

// Search queries the index with each variant and merges chunks in first-seen
// order.
func (a *GuidelinesAdapter) Search(ctx context.Context, variants []string, c types.Constraints) ([]types.EvidenceCandidate, error) {
	if a.Index == nil {
		return nil, fmt.Errorf("%w: guidelines: no index configured", ErrAdapterFailure)
	}

	n := limit(c, 10, 50)
	seen := make(map[string]bool)
	var results []types.EvidenceCandidate
	for i, v := range variants {
		if i == maxVariants {
			break
		}
		chunks, err := a.Index.Search(ctx, v, n)
		if err != nil {
			return nil, fmt.Errorf("%w: guidelines: %w", ErrAdapterFailure, err)
		}
		for _, ch := range chunks {
			id := fmt.Sprintf("%s#%d", ch.DocID, ch.Index)
			if seen[id] {
				continue
			}
			seen[id] = true
			results = append(results, chunkCandidate(id, ch))
		}
	}
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

func chunkCandidate(id string, ch types.GuidelineChunk) types.EvidenceCandidate {
	meta := map[string]string{
		types.MetaFullText:   ch.Text,
		types.MetaChunkIndex: fmt.Sprintf("%d", ch.Index),
	}
	if ch.Section != "" {
		meta[types.MetaSection] = ch.Section
	}
	if ch.Organization != "" {
		meta[types.MetaOrganization] = ch.Organization
	}
	if ch.URL != "" {
		meta[types.MetaURL] = ch.URL
	}
	if ch.Published != "" {
		meta[types.MetaPublished] = ch.Published
	}
	title := ch.Title
	if ch.Section != "" {
		title = ch.Title + ": " + ch.Section
	}
	return types.EvidenceCandidate{
		Source:            types.SourceGuidelines,
		ID:                id,
		Title:             title,
		Metadata:          meta,
		FullTextAvailable: true,
	}
}
