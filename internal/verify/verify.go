// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package verify checks that every citation marker in a generated answer
// resolves to the evidence pack it was generated from and scores how much
// of the answer is grounded.
package verify

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/citation"
	"github.com/pdiddy/evidence-engine/internal/synthesis"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// ErrGrounding marks a result that failed verification. It is not terminal:
// the answer is still returned, flagged.
var ErrGrounding = errors.New("grounding check failed")

// Verifier scores generated text against a pack.
type Verifier struct {
	cfg types.VerifyConfig
}

// New returns a Verifier. Zero settings fall back to the defaults.
func New(cfg types.VerifyConfig) *Verifier {
	def := types.DefaultConfig().Verify
	if cfg.GroundingFloor <= 0 {
		cfg.GroundingFloor = def.GroundingFloor
	}
	if cfg.MinClaimWords <= 0 {
		cfg.MinClaimWords = def.MinClaimWords
	}
	return &Verifier{cfg: cfg}
}

// Verify extracts claims and markers from text. A claim is grounded when it
// carries at least one marker and every marker in it resolves to a rank in
// pack. The result passes when the grounding score reaches the floor and no
// marker anywhere is invalid.
func (v *Verifier) Verify(text string, pack types.EvidencePack) types.VerificationResult {
	var res types.VerificationResult

	invalid := make(map[int]bool)
	for _, m := range citation.Parse(text) {
		if _, ok := pack.ByRank(m.Rank); !ok {
			res.InvalidMarkerCount++
			invalid[m.Rank] = true
		}
	}
	for r := range invalid {
		res.InvalidCitations = append(res.InvalidCitations, r)
	}
	sort.Ints(res.InvalidCitations)

	grounded := 0
	for _, claim := range Claims(text, v.cfg.MinClaimWords) {
		res.TotalClaims++
		markers := citation.Parse(claim)
		if len(markers) == 0 {
			res.UnsupportedClaims = append(res.UnsupportedClaims, citation.Strip(claim))
			continue
		}
		res.CitedClaims++
		ok := true
		for _, m := range markers {
			if invalid[m.Rank] {
				ok = false
				break
			}
		}
		if ok {
			grounded++
		}
	}

	if res.TotalClaims > 0 {
		res.GroundingScore = float64(grounded) / float64(res.TotalClaims)
	}
	res.HallucinationDetected = res.InvalidMarkerCount > 0
	res.SectionsInOrder, res.MissingSections = CheckSections(text, synthesis.Sections)
	res.Passed = res.TotalClaims > 0 &&
		res.GroundingScore >= v.cfg.GroundingFloor &&
		len(res.InvalidCitations) == 0
	return res
}

// Err returns ErrGrounding wrapped with the failure detail, or nil when res
// passed.
func Err(res types.VerificationResult) error {
	if res.Passed {
		return nil
	}
	switch {
	case len(res.InvalidCitations) > 0:
		return fmt.Errorf("%w: citations to absent ranks %v", ErrGrounding, res.InvalidCitations)
	case res.TotalClaims == 0:
		return fmt.Errorf("%w: no factual claims found", ErrGrounding)
	default:
		return fmt.Errorf("%w: grounding score %.2f", ErrGrounding, res.GroundingScore)
	}
}

// sentenceEnd splits after ., ! or ? followed by whitespace, keeping any
// citation markers that trail the punctuation with the sentence.
var sentenceEnd = regexp.MustCompile(`[.!?]((?:\s*\[\[\d+\]\](?:\([^)\s]*\))?)*)\s+`)

// Claims returns the sentences of text that look like factual claims:
// prose lines (not headings) with at least minWords words once markers are
// removed.
func Claims(text string, minWords int) []string {
	var claims []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimLeft(line, "-*> ")
		if isNumberedItem(line) {
			line = line[strings.IndexByte(line, '.')+1:]
		}
		for _, s := range splitSentences(line) {
			if len(strings.Fields(citation.Strip(s))) >= minWords {
				claims = append(claims, s)
			}
		}
	}
	return claims
}

func splitSentences(line string) []string {
	line += " "
	var out []string
	last := 0
	for _, m := range sentenceEnd.FindAllStringSubmatchIndex(line, -1) {
		// m[3] ends the punctuation plus trailing markers.
		end := m[3]
		if s := strings.TrimSpace(line[last:end]); s != "" {
			out = append(out, s)
		}
		last = m[1]
	}
	if s := strings.TrimSpace(line[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isNumberedItem(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i < len(line) && line[i] == '.'
}

// CheckSections reports whether the required headings appear in order and
// which are missing. Headings are Markdown lines starting with '#' or bold
// lines, compared case-insensitively.
func CheckSections(text string, required []string) (inOrder bool, missing []string) {
	var headings []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#"):
			headings = append(headings, strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#"))))
		case strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") && len(line) > 4:
			headings = append(headings, strings.ToLower(strings.Trim(line, "*: ")))
		}
	}

	pos := -1
	inOrder = true
	for _, want := range required {
		idx := indexOf(headings, strings.ToLower(want))
		if idx < 0 {
			missing = append(missing, want)
			continue
		}
		if idx < pos {
			inOrder = false
		}
		pos = idx
	}
	return inOrder && len(missing) == 0, missing
}

func indexOf(headings []string, want string) int {
	for i, h := range headings {
		if h == want || strings.TrimRight(h, ":") == want {
			return i
		}
	}
	return -1
}
