package query

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("An Teallach's great RIDGE, near Dundonnell!")
	want := []string{"an", "teallach's", "great", "ridge", "near", "dundonnell"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestExpandForMatch_StopwordsOnly(t *testing.T) {
	if expr := ExpandForMatch("the and of near"); expr != "" {
		t.Errorf("stopword-only query produced %q, want empty", expr)
	}
	if terms := BuildFuzzyTerms("the and of near"); len(terms) != 0 {
		t.Errorf("stopword-only query produced fuzzy terms %v", terms)
	}
}

func TestExpandForMatch_SynonymGroupsIdentical(t *testing.T) {
	a := ExpandForMatch("scramble")
	b := ExpandForMatch("scrambles")
	if a != b {
		t.Errorf("synonym group members differ: %q vs %q", a, b)
	}
	if !strings.Contains(a, "scram") {
		t.Errorf("expected scramble terms in %q", a)
	}
}

func TestExpandForMatch_PrefixAndVerbatim(t *testing.T) {
	// "airy" expands to airy/exposed/exposure; the longer forms become
	// 5-char prefix wildcards.
	expr := ExpandForMatch("airy ridge")
	for _, want := range []string{"airy", "expos", "ridge"} {
		if !strings.Contains(expr, want) {
			t.Errorf("expr %q missing %q", expr, want)
		}
	}
	if !strings.Contains(expr, " OR ") {
		t.Errorf("expr %q not OR-combined", expr)
	}
}

func TestExpandForMatch_PrefixWildcard(t *testing.T) {
	expr := ExpandForMatch("buachaille")
	if expr != "buach*" {
		t.Errorf("expr = %q, want buach*", expr)
	}
}

func TestExpandForMatch_ShortTermVerbatim(t *testing.T) {
	expr := ExpandForMatch("ben")
	if expr != "ben" {
		t.Errorf("expr = %q, want ben", expr)
	}
}

func TestBuildFuzzyTerms_WildcardWrapped(t *testing.T) {
	got := BuildFuzzyTerms("airy ridge")
	want := []string{"%airy%", "%exposed%", "%exposure%", "%ridge%"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildFuzzyTerms = %v, want %v", got, want)
	}
}

func TestBuildFuzzyTerms_Cap(t *testing.T) {
	long := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen"
	if got := BuildFuzzyTerms(long); len(got) > 12 {
		t.Errorf("fuzzy terms = %d, want <= 12", len(got))
	}
}

func TestNormalizeGradeCeiling(t *testing.T) {
	cases := []struct {
		in   any
		want *int
	}{
		{"easy", intp(3)},
		{"moderate", intp(4)},
		{"hard", intp(5)},
		{"serious", intp(5)},
		{2, intp(3)},
		{"7", intp(7)},
		{4.0, intp(4)},
		{"banana", nil},
		{nil, nil},
		{[]string{"x"}, nil},
	}
	for _, tc := range cases {
		got := NormalizeGradeCeiling(tc.in)
		if (got == nil) != (tc.want == nil) {
			t.Errorf("NormalizeGradeCeiling(%v) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		if got != nil && *got != *tc.want {
			t.Errorf("NormalizeGradeCeiling(%v) = %d, want %d", tc.in, *got, *tc.want)
		}
	}
}

func TestNormText(t *testing.T) {
	cases := map[string]string{
		"Sgùrr a’ Mhàim": "sgurr a' mhaim",
		"  Ben Nevis  ":  "ben nevis",
		"":               "",
	}
	for in, want := range cases {
		if got := NormText(in); got != want {
			t.Errorf("NormText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseNumericFilters_Distance(t *testing.T) {
	f := ParseNumericFilters("something between 10 and 15 km long")
	if f.DistanceMinKM == nil || *f.DistanceMinKM != 10 {
		t.Errorf("min = %v, want 10", f.DistanceMinKM)
	}
	if f.DistanceMaxKM == nil || *f.DistanceMaxKM != 15 {
		t.Errorf("max = %v, want 15", f.DistanceMaxKM)
	}

	f = ParseNumericFilters("over 10 miles")
	if f.DistanceMinKM == nil || *f.DistanceMinKM != 10*1.60934 {
		t.Errorf("miles min = %v", f.DistanceMinKM)
	}
	if f.DistanceMaxKM != nil {
		t.Errorf("unexpected max %v", *f.DistanceMaxKM)
	}

	f = ParseNumericFilters("under 5 km please")
	if f.DistanceMaxKM == nil || *f.DistanceMaxKM != 5 {
		t.Errorf("max = %v, want 5", f.DistanceMaxKM)
	}

	f = ParseNumericFilters("15km+")
	if f.DistanceMinKM == nil || *f.DistanceMinKM != 15 {
		t.Errorf("plus min = %v, want 15", f.DistanceMinKM)
	}

	f = ParseNumericFilters("between 5 miles and 10 miles")
	if f.DistanceMinKM == nil || *f.DistanceMinKM != 5*1.60934 {
		t.Errorf("miles min = %v", f.DistanceMinKM)
	}
	if f.DistanceMaxKM == nil || *f.DistanceMaxKM != 10*1.60934 {
		t.Errorf("miles max = %v", f.DistanceMaxKM)
	}
}

func TestParseNumericFilters_Time(t *testing.T) {
	f := ParseNumericFilters("a walk of 3-5 hours")
	if f.TimeMinH == nil || *f.TimeMinH != 3 {
		t.Errorf("time min = %v, want 3", f.TimeMinH)
	}
	if f.TimeMaxH == nil || *f.TimeMaxH != 5 {
		t.Errorf("time max = %v, want 5", f.TimeMaxH)
	}

	f = ParseNumericFilters("at least 4 hrs")
	if f.TimeMinH == nil || *f.TimeMinH != 4 {
		t.Errorf("time min = %v, want 4", f.TimeMinH)
	}

	f = ParseNumericFilters("between 3 and 5 hours")
	if f.TimeMinH == nil || *f.TimeMinH != 3 {
		t.Errorf("time min = %v, want 3", f.TimeMinH)
	}
	if f.TimeMaxH == nil || *f.TimeMaxH != 5 {
		t.Errorf("time max = %v, want 5", f.TimeMaxH)
	}
}

func TestParseNumericFilters_Empty(t *testing.T) {
	if f := ParseNumericFilters("a fine airy ridge"); !f.Empty() {
		t.Errorf("expected empty filters, got %+v", f)
	}
}

func TestResolver(t *testing.T) {
	pool := []Candidate{
		{1, "Ben Nevis"},
		{2, "Sgùrr a’ Mhàim"},
		{3, "Buachaille Etive Mòr"},
	}
	r := NewResolver(pool)

	if c, ok := r.Resolve("Ben Nevis"); !ok || c.ID != 1 {
		t.Errorf("exact: got %+v ok=%v", c, ok)
	}
	// Normalized: straight apostrophe, no diacritics.
	if c, ok := r.Resolve("sgurr a' mhaim"); !ok || c.ID != 2 {
		t.Errorf("normalized: got %+v ok=%v", c, ok)
	}
	// Substring last resort.
	if c, ok := r.Resolve("Buachaille"); !ok || c.ID != 3 {
		t.Errorf("substring: got %+v ok=%v", c, ok)
	}
	if _, ok := r.Resolve("Scafell Pike"); ok {
		t.Error("unknown name should not resolve")
	}
}

func intp(n int) *int { return &n }
