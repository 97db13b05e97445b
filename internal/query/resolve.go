package query

import "strings"

// Candidate is one entry in a name-resolution pool.
type Candidate struct {
	ID   int64
	Name string
}

// Resolver maps loosely spelled names onto a fixed candidate pool. It
// tolerates spelling and encoding drift between tables populated by
// independent batch jobs: exact match first, then a normalized
// (diacritic-insensitive) match, then a substring match as last resort.
type Resolver struct {
	pool  []Candidate
	exact map[string]int
	loose map[string]int
}

// NewResolver builds a resolver over the given pool. On duplicate keys the
// first candidate wins, matching first-seen-order dedup elsewhere.
func NewResolver(pool []Candidate) *Resolver {
	r := &Resolver{
		pool:  pool,
		exact: make(map[string]int, len(pool)),
		loose: make(map[string]int, len(pool)),
	}
	for i, c := range pool {
		if _, ok := r.exact[c.Name]; !ok {
			r.exact[c.Name] = i
		}
		key := NormText(c.Name)
		if _, ok := r.loose[key]; !ok {
			r.loose[key] = i
		}
	}
	return r
}

// Resolve returns the candidate matching name, or ok=false.
func (r *Resolver) Resolve(name string) (Candidate, bool) {
	if i, ok := r.exact[name]; ok {
		return r.pool[i], true
	}
	if i, ok := r.loose[NormText(name)]; ok {
		return r.pool[i], true
	}
	// Last-chance substring scan; the pool is small (full route table).
	needle := NormText(name)
	if needle == "" {
		return Candidate{}, false
	}
	for _, c := range r.pool {
		if strings.Contains(NormText(c.Name), needle) {
			return c, true
		}
	}
	return Candidate{}, false
}
