package models

import "sort"

// Tag ontology. Tags are one word except river_crossing and loose_rock.
// Routes are tagged in bulk by the batch tagger; the search core only reads
// the relation and silently drops anything outside this set.
var ontology = map[string][]string{
	"terrain": {
		"ridge", "scramble", "technical", "steep", "rocky", "boggy",
		"heather", "scree", "handson", "knifeedge", "airy", "slab", "gully",
	},
	"difficulty":  {"easy", "moderate", "hard", "serious"},
	"nav":         {"pathless"},
	"hazards":     {"loose_rock", "cornice", "river_crossing", "slippery", "exposure"},
	"access":      {"bus", "train", "bike"},
	"features":    {"classic", "views", "waterfalls", "bothy", "scrambling", "camping", "multiday"},
	"crowding":    {"popular", "quiet"},
	"suitability": {"family"},
}

var allowedTags = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, tags := range ontology {
		for _, t := range tags {
			set[t] = struct{}{}
		}
	}
	return set
}()

// AllowedTags returns the full tag vocabulary, sorted.
func AllowedTags() []string {
	out := make([]string, 0, len(allowedTags))
	for t := range allowedTags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsAllowedTag reports whether t belongs to the ontology.
func IsAllowedTag(t string) bool {
	_, ok := allowedTags[t]
	return ok
}

// FilterAllowed drops tags outside the ontology, preserving order.
// Unknown tags are never an error; callers may not conform perfectly.
func FilterAllowed(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if IsAllowedTag(t) {
			out = append(out, t)
		}
	}
	return out
}
