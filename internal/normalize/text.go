// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanText strips markup (Europe PMC abstracts carry inline HTML such as
// <h4> and <i>), decodes entities, and collapses whitespace. Block-level
// tags become spaces so words on either side stay separate.
func CleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if !inlineTags[string(name)] {
				b.WriteByte(' ')
			}
		}
	}
}

var inlineTags = map[string]bool{
	"i": true, "b": true, "em": true, "strong": true, "sup": true, "sub": true,
	"span": true, "a": true, "u": true, "small": true,
}

// NormalizeTitle returns a lowercased, accent-folded, punctuation-stripped
// version of title with single spaces between words.
func NormalizeTitle(title string) string {
	// Transformers carry state, so each call builds its own chain.
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "can": true, "do": true, "does": true, "for": true, "from": true,
	"how": true, "in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"should": true, "than": true, "that": true, "the": true, "there": true, "this": true,
	"to": true, "vs": true, "versus": true, "was": true, "what": true, "when": true,
	"which": true, "who": true, "why": true, "will": true, "with": true, "patients": true,
	"patient": true, "use": true, "used": true, "using": true, "any": true, "best": true,
	"current": true, "evidence": true, "about": true, "into": true, "after": true,
}

// Tokens returns the content words of s: normalized as by NormalizeTitle,
// without stopwords or tokens shorter than three characters, in first
// appearance order and without repeats.
func Tokens(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(NormalizeTitle(s)) {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries,
// after both are normalized. An empty phrase never matches.
func ContainsPhrase(text, phrase string) bool {
	p := NormalizeTitle(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+NormalizeTitle(text)+" ", " "+p+" ")
}
