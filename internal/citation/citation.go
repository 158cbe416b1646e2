// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citation parses and formats the inline citation markers used in
// generated answers. A marker has the form [[n]](url), where n is a rank in
// the evidence pack and url is that rank's canonical link.
package citation

import (
	"regexp"
	"strconv"
	"strings"
)

// markerRe matches [[n]] optionally followed by a parenthesized target.
// The target may be empty: [[3]]().
var markerRe = regexp.MustCompile(`\[\[(\d+)\]\](?:\(([^)\s]*)\))?`)

// InvalidRank marks a marker whose number does not fit an int. No pack
// holds it, so such markers always fail to resolve.
const InvalidRank = -1

// Marker is one citation occurrence in a text.
type Marker struct {
	// Rank is the cited pack rank, or InvalidRank when unparseable.
	Rank int

	// Target is the link inside the parentheses; empty when absent or blank.
	Target string

	// HasTarget is set when the marker carries parentheses, even empty ones.
	HasTarget bool

	// Start and End are byte offsets of the whole marker.
	Start, End int
}

// Parse returns every marker in text in order of appearance. Repeated
// markers are all returned.
func Parse(text string) []Marker {
	var markers []Marker
	for _, m := range markerRe.FindAllStringSubmatchIndex(text, -1) {
		rank, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			rank = InvalidRank
		}
		mk := Marker{Rank: rank, Start: m[0], End: m[1]}
		if m[4] >= 0 {
			mk.HasTarget = true
			mk.Target = text[m[4]:m[5]]
		}
		markers = append(markers, mk)
	}
	return markers
}

// Ranks returns the distinct ranks cited in text, in order of first
// appearance.
func Ranks(text string) []int {
	seen := make(map[int]bool)
	var ranks []int
	for _, m := range Parse(text) {
		if !seen[m.Rank] {
			seen[m.Rank] = true
			ranks = append(ranks, m.Rank)
		}
	}
	return ranks
}

// Format renders a marker for rank pointing at url.
func Format(rank int, url string) string {
	return "[[" + strconv.Itoa(rank) + "]](" + url + ")"
}

// Strip removes every marker from text.
func Strip(text string) string {
	return markerRe.ReplaceAllString(text, "")
}

// placeholderTargets are link texts generators emit instead of a real URL.
var placeholderTargets = []string{"url", "link", "source", "placeholder", "tbd", "todo", "n/a", "none", "#", "..."}

// IsPlaceholder reports whether target is empty or a stand-in rather than a
// usable http(s) link.
func IsPlaceholder(target string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	if t == "" {
		return true
	}
	for _, p := range placeholderTargets {
		if t == p || strings.Trim(t, "<>{}[]") == p {
			return true
		}
	}
	if strings.Contains(t, "example.com") || strings.Contains(t, "placeholder") {
		return true
	}
	return !strings.HasPrefix(t, "http://") && !strings.HasPrefix(t, "https://")
}

// Context returns up to 40 characters on each side of [start,end), trimmed
// to word boundaries.
func Context(text string, start, end int) string {
	const window = 40
	ctxStart := max(start-window, 0)
	ctxEnd := min(end+window, len(text))
	snippet := text[ctxStart:ctxEnd]
	if ctxStart > 0 {
		if i := strings.IndexByte(snippet, ' '); i >= 0 && i < window {
			snippet = snippet[i+1:]
		}
	}
	if ctxEnd < len(text) {
		if i := strings.LastIndexByte(snippet, ' '); i >= 0 && i > len(snippet)-window {
			snippet = snippet[:i]
		}
	}
	return strings.TrimSpace(snippet)
}
