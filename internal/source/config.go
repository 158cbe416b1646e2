// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"net/http"

	"github.com/pdiddy/evidence-engine/internal/ratelimit"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// FromConfig builds a registry with one adapter per remote source, each with
// its own token bucket. Every adapter is registered whether or not it is
// enabled: routing picks the first round, and the fallback round uses them
// all. The guidelines adapter is registered only when idx is non-nil.
func FromConfig(cfg types.RetrievalConfig, idx GuidelineIndex) *Registry {
	client := &http.Client{Timeout: cfg.Timeout}
	ua := cfg.UserAgent
	src := cfg.Source

	adapters := []Adapter{
		&PubMedAdapter{
			Client:    client,
			Limiter:   ratelimit.FromConfig(src(types.SourcePubMed)),
			APIKey:    src(types.SourcePubMed).APIKey,
			UserAgent: ua,
		},
		&EuropePMCAdapter{
			Client:    client,
			Limiter:   ratelimit.FromConfig(src(types.SourceEuropePMC)),
			UserAgent: ua,
		},
		&DailyMedAdapter{
			Client:    client,
			Limiter:   ratelimit.FromConfig(src(types.SourceDailyMed)),
			UserAgent: ua,
		},
		&OpenAlexAdapter{
			Client:    client,
			Limiter:   ratelimit.FromConfig(src(types.SourceOpenAlex)),
			Email:     src(types.SourceOpenAlex).Email,
			UserAgent: ua,
		},
		&SemanticScholarAdapter{
			Client:    client,
			Limiter:   ratelimit.FromConfig(src(types.SourceSemanticScholar)),
			APIKey:    src(types.SourceSemanticScholar).APIKey,
			UserAgent: ua,
		},
	}
	// Tavily refuses unauthenticated calls.
	if key := src(types.SourceTavily).APIKey; key != "" {
		adapters = append(adapters, &TavilyAdapter{
			Client:    client,
			Limiter:   ratelimit.FromConfig(src(types.SourceTavily)),
			APIKey:    key,
			UserAgent: ua,
		})
	}
	if idx != nil {
		adapters = append(adapters, &GuidelinesAdapter{Index: idx})
	}
	return NewRegistry(adapters...)
}
