// Package query normalizes free-text search input: tokenization, stopword
// removal, synonym expansion, FTS match-expression and fuzzy-pattern
// construction, and coercion of heterogeneous filter values.
package query

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxFuzzyTerms bounds the cost of the LIKE fallback query.
const maxFuzzyTerms = 12

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "by": {}, "for": {}, "with": {}, "at": {},
	"from": {}, "near": {},
}

// synonyms maps a surface form to the set of equivalent forms searched in
// its place. Every retained token expands to its group (or itself).
var synonyms = map[string][]string{
	"scramble":  {"scramble", "scrambling"},
	"scrambles": {"scramble", "scrambling"},
	"airy":      {"airy", "exposed", "exposure"},
	"bus":       {"bus", "buses"},
	"train":     {"train", "rail", "railway", "station"},
}

var gradeWords = map[string]int{
	"easy":     3,
	"moderate": 4,
	"hard":     5,
	"serious":  5,
}

var tokenSplit = regexp.MustCompile(`[^\w']+`)

// Tokenize lowercases the input and splits on any non-word, non-apostrophe
// run, dropping empty tokens.
func Tokenize(q string) []string {
	parts := tokenSplit.Split(strings.ToLower(q), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// expandTokens runs the shared tokenize → stopword-filter → synonym-expand
// pipeline and dedupes case-insensitively, preserving first-seen order.
func expandTokens(q string) []string {
	var candidates []string
	for _, t := range Tokenize(q) {
		if _, stop := stopwords[t]; stop {
			continue
		}
		if group, ok := synonyms[t]; ok {
			candidates = append(candidates, group...)
		} else {
			candidates = append(candidates, t)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// quoteOrPrefix renders one expanded term for the text index: quoted phrase
// for multi-word synonyms, a 5-character prefix wildcard to approximate
// stemming, or the term verbatim when too short to truncate.
func quoteOrPrefix(term string) string {
	if strings.Contains(term, " ") {
		return `"` + term + `"`
	}
	if len(term) >= 5 {
		return term[:5] + "*"
	}
	return term
}

// ExpandForMatch builds the OR-combined match expression submitted to the
// text index. An empty result means the text-match pass should be skipped.
func ExpandForMatch(q string) string {
	terms := expandTokens(q)
	rendered := make([]string, len(terms))
	for i, t := range terms {
		rendered[i] = quoteOrPrefix(t)
	}
	return strings.Join(rendered, " OR ")
}

// BuildFuzzyTerms builds wildcard-wrapped substring patterns for the LIKE
// fallback pass, capped at maxFuzzyTerms.
func BuildFuzzyTerms(q string) []string {
	terms := expandTokens(q)
	if len(terms) > maxFuzzyTerms {
		terms = terms[:maxFuzzyTerms]
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = "%" + t + "%"
	}
	return out
}

// NormalizeGradeCeiling coerces a grade ceiling into the 3..5+ ordinal scale.
// Accepts ints, numeric strings, or the difficulty words easy/moderate/hard/
// serious. Values below 3 are floored to 3 (the scale's minimum meaningful
// ceiling). Unparseable input yields nil: no ceiling filter, not an error.
func NormalizeGradeCeiling(value any) *int {
	switch v := value.(type) {
	case nil:
		return nil
	case int:
		return floorGrade(v)
	case int64:
		return floorGrade(int(v))
	case float64:
		return floorGrade(int(v))
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if n, err := strconv.Atoi(s); err == nil {
			return floorGrade(n)
		}
		if n, ok := gradeWords[s]; ok {
			return &n
		}
		return nil
	default:
		return nil
	}
}

func floorGrade(n int) *int {
	if n < 3 {
		n = 3
	}
	return &n
}

// NormText canonicalizes a name for loose matching: curly quotes unified,
// diacritics stripped, lowercased, trimmed. Used to dedupe near-identical
// names from ingestion and to match across independently built tables.
func NormText(s string) string {
	if s == "" {
		return ""
	}
	r := strings.NewReplacer("’", "'", "‘", "'", "`", "'")
	s = r.Replace(s)
	// NFKD decomposition followed by an ASCII filter strips diacritics.
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, ru := range decomposed {
		if ru < 128 {
			b.WriteRune(ru)
		}
	}
	return strings.ToLower(strings.TrimSpace(b.String()))
}
