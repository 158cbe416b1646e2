// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one question through retrieval, normalization,
// relevance filtering, reranking, gap analysis, synthesis, and citation
// verification. At most one fallback retrieval round runs per question.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/metrics"
	"github.com/pdiddy/evidence-engine/internal/normalize"
	"github.com/pdiddy/evidence-engine/internal/query"
	"github.com/pdiddy/evidence-engine/internal/relevance"
	"github.com/pdiddy/evidence-engine/internal/rerank"
	"github.com/pdiddy/evidence-engine/internal/retrieval"
	"github.com/pdiddy/evidence-engine/internal/sufficiency"
	"github.com/pdiddy/evidence-engine/internal/synthesis"
	"github.com/pdiddy/evidence-engine/internal/verify"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// ErrNoEvidence marks a run that found no usable evidence. Run never
// returns it; the run ends with the insufficient-evidence answer instead.
var ErrNoEvidence = errors.New("no usable evidence found")

// InsufficientEvidenceMessage is the fixed answer text when no usable
// evidence survives retrieval and ranking.
const InsufficientEvidenceMessage = "There is not enough evidence in the available sources to answer this question reliably. " +
	"No relevant guideline, study, or drug label was found. Try rephrasing the question or consult a specialist resource."

// Pipeline wires the stages together. It is safe for concurrent use.
type Pipeline struct {
	analyzer *query.Analyzer
	coord    *retrieval.Coordinator
	filter   *relevance.Filter
	reranker *rerank.Reranker
	suff     *sufficiency.Analyzer
	gate     *synthesis.Gate
	verifier *verify.Verifier
	cfg      types.Config
	sink     metrics.Sink
	log      *slog.Logger

	newID func() string
	now   func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink sets the metrics sink.
func WithSink(s metrics.Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithAnalyzer replaces the default query analyzer.
func WithAnalyzer(a *query.Analyzer) Option {
	return func(p *Pipeline) { p.analyzer = a }
}

// WithClock sets the time source used for staleness and date constraints.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New assembles a pipeline. The filter, gap analyzer, and verifier are built
// from cfg; coord, reranker, and gate carry the injected services.
func New(coord *retrieval.Coordinator, reranker *rerank.Reranker, gate *synthesis.Gate, cfg types.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		coord:    coord,
		filter:   relevance.New(cfg.Relevance),
		reranker: reranker,
		suff:     sufficiency.New(cfg.Sufficiency),
		gate:     gate,
		verifier: verify.New(cfg.Verify),
		cfg:      cfg,
		sink:     metrics.Noop{},
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.analyzer == nil {
		p.analyzer = query.NewAnalyzer(nil)
	}
	if p.log == nil {
		p.log = logging.New("pipeline")
	}
	p.suff.Now = p.now
	return p
}

// Analyze runs only the query analysis stage.
func (p *Pipeline) Analyze(text string) types.QueryAnalysis {
	return p.analyzer.Analyze(text)
}

// Ask analyzes text, routes it by configuration, and runs the pipeline.
func (p *Pipeline) Ask(ctx context.Context, text string) (*types.Answer, error) {
	q := p.analyzer.Analyze(text)
	return p.Run(ctx, q, query.Route(q, p.cfg.Retrieval))
}

// run is the state of one pipeline run.
type run struct {
	start  time.Time
	answer *types.Answer
	now    func() time.Time
}

func (r *run) enter(stage types.Stage, round, count int) {
	r.answer.Stages = append(r.answer.Stages, types.StageEvent{
		Stage:   stage,
		Round:   round,
		Count:   count,
		Elapsed: r.now().Sub(r.start),
	})
}

func (p *Pipeline) newRun(q types.QueryAnalysis) *run {
	return &run{
		start:  p.now(),
		now:    p.now,
		answer: &types.Answer{Query: q, Metadata: types.AnswerMetadata{RunID: p.newID()}},
	}
}

// Evidence runs retrieval and ranking, including the fallback round, and
// returns the pack and its gap analysis without synthesizing.
func (p *Pipeline) Evidence(ctx context.Context, q types.QueryAnalysis, routing types.Routing) (types.EvidencePack, types.GapAnalysis, error) {
	if q.IsEmpty() {
		return types.EvidencePack{}, p.suff.Analyze(q, types.EvidencePack{}), nil
	}
	r := p.newRun(q)
	pack, gap := p.gather(ctx, r, q, routing)
	if err := ctx.Err(); err != nil {
		return types.EvidencePack{}, gap, err
	}
	return pack, gap, nil
}

// Run executes the state machine for q with the given first-round routing.
// It returns an error only when generation fails or ctx ends; missing
// evidence and failed verification are reported in the answer's status.
func (p *Pipeline) Run(ctx context.Context, q types.QueryAnalysis, routing types.Routing) (*types.Answer, error) {
	r := p.newRun(q)
	log := p.log.With("run_id", r.answer.Metadata.RunID)
	r.enter(types.StageAnalyzed, 0, 0)

	if q.IsEmpty() {
		return p.insufficient(r, types.EvidencePack{}, nil), nil
	}

	pack, gap := p.gather(ctx, r, q, routing)
	if err := ctx.Err(); err != nil {
		r.enter(types.StageFailed, r.answer.Metadata.Rounds, 0)
		return nil, fmt.Errorf("run %s: %w", r.answer.Metadata.RunID, err)
	}

	if pack.IsEmpty() {
		log.Warn("no usable evidence", "rounds", r.answer.Metadata.Rounds)
		return p.insufficient(r, pack, &gap), nil
	}

	// Synthesis runs on the best available pack even when coverage stayed
	// below the threshold after the fallback round; the gap summary in the
	// prompt tells the generator how weak the evidence is.
	res, err := p.gate.Synthesize(ctx, q, pack, gap)
	if err != nil {
		r.enter(types.StageFailed, r.answer.Metadata.Rounds, pack.Len())
		log.Error("synthesis failed", "error", err)
		return nil, fmt.Errorf("run %s: %w", r.answer.Metadata.RunID, err)
	}
	r.enter(types.StageSynthesized, r.answer.Metadata.Rounds, len(res.Citations))

	vr := p.verifier.Verify(res.Text, pack)
	r.enter(types.StageVerified, r.answer.Metadata.Rounds, vr.CitedClaims)

	a := r.answer
	a.Text = res.Text
	a.Citations = res.Citations
	a.Gap = &gap
	a.Verification = &vr
	a.Metadata.SourceCounts = pack.SourceCounts()
	a.Metadata.GroundingScore = vr.GroundingScore
	a.Metadata.CostUSD = res.Usage.CostUSD
	a.Metadata.Model = res.Usage.Model

	var warnings []string
	if res.Warning != "" {
		warnings = append(warnings, res.Warning)
	}
	if vr.Passed {
		a.Status = types.StatusVerified
	} else {
		a.Status = types.StatusGroundingFailed
		warnings = append(warnings, "Citation verification failed: "+verify.Err(vr).Error())
		log.Warn("grounding check failed", "score", vr.GroundingScore, "invalid", vr.InvalidCitations)
	}
	a.Warning = strings.Join(warnings, "; ")

	r.enter(types.StageDone, a.Metadata.Rounds, pack.Len())
	p.finish(r)
	return a, nil
}

// gather runs the first retrieval round and, when the gap analysis does not
// recommend proceeding, exactly one fallback round over every registered
// source. The fallback merges its candidates with the first round's.
func (p *Pipeline) gather(ctx context.Context, r *run, q types.QueryAnalysis, routing types.Routing) (types.EvidencePack, types.GapAnalysis) {
	log := p.log.With("run_id", r.answer.Metadata.RunID)
	cons := types.Constraints{Drugs: q.Entities.Drugs}

	round := p.coord.Retrieve(ctx, 1, q.Variants(), routing, cons)
	r.answer.Metadata.Rounds = 1
	r.answer.Metadata.BackendErrors = round.Errors()
	r.enter(types.StageRetrieved, 1, len(round.Candidates))
	raw := round.Candidates

	pack, gap := p.rank(ctx, r, q, raw, 1)
	log.Info("gap checked", "round", 1, "pack", pack.Len(), "coverage", gap.CoverageScore, "recommendation", gap.Recommendation)
	if gap.Proceed() || ctx.Err() != nil {
		return pack, gap
	}

	variants, fcons := p.fallbackQuery(q, gap, cons)
	fb := p.coord.Retrieve(ctx, 2, variants, p.coord.Registry().AllRouting(), fcons)
	r.answer.Metadata.Rounds = 2
	r.answer.Metadata.FallbackUsed = true
	r.answer.Metadata.BackendErrors = append(r.answer.Metadata.BackendErrors, fb.Errors()...)
	r.enter(types.StageRetrieved, 2, len(fb.Candidates))

	raw = append(raw[:len(raw):len(raw)], fb.Candidates...)
	pack, gap = p.rank(ctx, r, q, raw, 2)
	log.Info("gap checked", "round", 2, "pack", pack.Len(), "coverage", gap.CoverageScore, "recommendation", gap.Recommendation)
	return pack, gap
}

// rank runs the pure stages over raw candidates and returns the pack and
// its gap analysis.
func (p *Pipeline) rank(ctx context.Context, r *run, q types.QueryAnalysis, raw []types.EvidenceCandidate, round int) (types.EvidencePack, types.GapAnalysis) {
	normalized, dropped := normalize.Normalize(raw)
	deduped, merged := normalize.Deduplicate(normalized)
	r.enter(types.StageNormalized, round, len(deduped))
	for _, d := range append(dropped, merged...) {
		p.log.Debug("normalize", "round", round, "diagnostic", d.String())
	}

	kept, rejected := p.filter.Apply(q, deduped)
	r.enter(types.StageFiltered, round, len(kept))
	for _, rej := range rejected {
		p.log.Debug("rejected", "round", round, "key", rej.Candidate.Key(), "reason", rej.Reason)
	}

	rr := p.reranker.Rerank(ctx, q.Text, kept)
	r.enter(types.StageReranked, round, len(rr.Scored))

	pack := types.BuildPack(rr.Scored, p.cfg.Synthesis.MaxPackSize)
	gap := p.suff.Analyze(q, pack)
	r.enter(types.StageGapChecked, round, pack.Len())
	return pack, gap
}

// fallbackQuery derives the second round's variants and constraints from
// the gap analysis: a date floor when the evidence is stale, otherwise the
// missing entities as an extra variant.
func (p *Pipeline) fallbackQuery(q types.QueryAnalysis, gap types.GapAnalysis, cons types.Constraints) ([]string, types.Constraints) {
	variants := q.Variants()
	switch gap.Recommendation {
	case types.RecommendSearchRecent:
		years := p.cfg.Sufficiency.StalenessYears
		if years <= 0 {
			years = types.DefaultConfig().Sufficiency.StalenessYears
		}
		cons.DateFrom = p.now().AddDate(-years, 0, 0)
	default:
		if missing := sufficiency.MissingEntities(gap); len(missing) > 0 {
			v := strings.Join(missing, " ")
			out := []string{variants[0], v}
			for _, rest := range variants[1:] {
				if rest != v {
					out = append(out, rest)
				}
			}
			variants = out
		}
	}
	return variants, cons
}

// insufficient finishes the run with the fixed no-evidence answer. The
// generator is never called.
func (p *Pipeline) insufficient(r *run, pack types.EvidencePack, gap *types.GapAnalysis) *types.Answer {
	a := r.answer
	a.Status = types.StatusInsufficientEvidence
	a.Text = InsufficientEvidenceMessage
	a.Gap = gap
	a.Metadata.SourceCounts = pack.SourceCounts()
	a.Warning = ErrNoEvidence.Error()
	r.enter(types.StageFailed, a.Metadata.Rounds, 0)
	p.finish(r)
	return a
}

func (p *Pipeline) finish(r *run) {
	r.answer.Metadata.Elapsed = p.now().Sub(r.start)
	p.sink.Answer(r.answer)
	p.log.Info("run finished",
		"run_id", r.answer.Metadata.RunID,
		"status", r.answer.Status,
		"rounds", r.answer.Metadata.Rounds,
		"citations", len(r.answer.Citations),
		"grounding", r.answer.Metadata.GroundingScore,
		"elapsed", r.answer.Metadata.Elapsed,
	)
}

// Err maps an answer's status to the error taxonomy: nil when verified,
// ErrNoEvidence when evidence was insufficient, and verify.ErrGrounding
// when verification failed.
func Err(a *types.Answer) error {
	if a == nil {
		return nil
	}
	switch a.Status {
	case types.StatusInsufficientEvidence:
		return ErrNoEvidence
	case types.StatusGroundingFailed:
		if a.Verification != nil {
			return verify.Err(*a.Verification)
		}
		return verify.ErrGrounding
	default:
		return nil
	}
}
