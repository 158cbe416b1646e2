// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesis builds the cited-answer generation request, calls the
// injected generator, and repairs citation markers in its output.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/citation"
	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// ErrGeneration is returned when the generator fails or returns nothing.
// It is terminal for the run; callers may retry.
var ErrGeneration = errors.New("generation failed")

// Gate runs synthesis under the citation contract.
type Gate struct {
	gen Generator
	cfg types.SynthesisConfig
	log *slog.Logger
}

// New returns a Gate. Unset word budgets fall back to the defaults.
func New(gen Generator, cfg types.SynthesisConfig) *Gate {
	def := types.DefaultConfig().Synthesis
	if cfg.BaseWords <= 0 {
		cfg.BaseWords = def.BaseWords
	}
	if cfg.ExtraWords < 0 {
		cfg.ExtraWords = def.ExtraWords
	}
	return &Gate{gen: gen, cfg: cfg, log: logging.New("synthesis")}
}

// Synthesize generates a cited answer from pack. The citation list holds
// every pack item cited in the text, ordered by rank.
func (g *Gate) Synthesize(ctx context.Context, q types.QueryAnalysis, pack types.EvidencePack, gap types.GapAnalysis) (types.SynthesisResult, error) {
	if pack.IsEmpty() {
		return types.SynthesisResult{}, fmt.Errorf("%w: empty evidence pack", ErrGeneration)
	}
	if g.gen == nil {
		return types.SynthesisResult{}, fmt.Errorf("%w: no generator configured", ErrGeneration)
	}

	req, err := BuildRequest(g.cfg, q, pack, gap)
	if err != nil {
		return types.SynthesisResult{}, fmt.Errorf("%w: building request: %w", ErrGeneration, err)
	}

	resp, err := g.gen.Generate(ctx, req)
	if err != nil {
		return types.SynthesisResult{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return types.SynthesisResult{}, fmt.Errorf("%w: empty response", ErrGeneration)
	}

	text, repaired := RepairCitations(resp.Text, pack)
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	res := types.SynthesisResult{
		Text:            text,
		Citations:       Citations(text, pack),
		RepairedMarkers: repaired,
		Usage: types.Usage{
			Model:        model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CostUSD:      Cost(model, resp.InputTokens, resp.OutputTokens),
		},
	}
	if len(res.Citations) == 0 {
		res.Warning = "answer cites no evidence"
	}
	g.log.Info("synthesized",
		"model", model,
		"citations", len(res.Citations),
		"repaired", repaired,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return res, nil
}

// RepairCitations rewrites markers whose target is missing, empty, or a
// placeholder to point at the canonical URL of their rank. Markers whose
// rank is absent from the pack, or whose item has no URL, are left as is.
// It returns the repaired text and the number of markers rewritten.
func RepairCitations(text string, pack types.EvidencePack) (string, int) {
	markers := citation.Parse(text)
	if len(markers) == 0 {
		return text, 0
	}

	var b strings.Builder
	last, repaired := 0, 0
	for _, m := range markers {
		if m.HasTarget && !citation.IsPlaceholder(m.Target) {
			continue
		}
		item, ok := pack.ByRank(m.Rank)
		if !ok || item.URL == "" {
			continue
		}
		b.WriteString(text[last:m.Start])
		b.WriteString(citation.Format(m.Rank, item.URL))
		last = m.End
		repaired++
	}
	b.WriteString(text[last:])
	return b.String(), repaired
}

// Citations maps the distinct ranks cited in text that exist in pack to
// their source metadata, ordered by rank.
func Citations(text string, pack types.EvidencePack) []types.Citation {
	ranks := citation.Ranks(text)
	sort.Ints(ranks)
	var out []types.Citation
	for _, r := range ranks {
		it, ok := pack.ByRank(r)
		if !ok {
			continue
		}
		out = append(out, CitationFor(it))
	}
	return out
}

// CitationFor builds the citation entry for a pack item.
func CitationFor(it types.RankedEvidence) types.Citation {
	return types.Citation{
		Rank:         it.Rank,
		Source:       it.Source,
		ID:           it.ID,
		Title:        it.Title,
		URL:          it.URL,
		Year:         it.Year,
		EvidenceType: it.EvidenceType,
		Authors:      it.Meta(types.MetaAuthors),
		Journal:      it.Meta(types.MetaJournal),
	}
}
