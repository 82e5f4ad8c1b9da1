// Package variant models variant call records and the score join between a
// raw callset and its recalibration stream.
package variant

import (
	"sort"
	"strings"

	"github.com/openvariant/tranchefilter/internal/genome"
)

// INFO keys written by the recalibration step and carried through filtering.
const (
	KeyVQSLOD  = "VQSLOD"
	KeyCulprit = "culprit"
	KeyEnd     = "END"
)

// PassFilter is the FILTER value for a call that passes every tranche.
const PassFilter = "PASS"

// Kind is the variation class of a call.
type Kind string

const (
	KindSNP   Kind = "SNP"
	KindIndel Kind = "INDEL"
	KindMixed Kind = "MIXED"
	KindOther Kind = "OTHER"
)

// Mode selects which variation classes a filtering pass operates on.
type Mode string

const (
	ModeSNP   Mode = "SNP"
	ModeIndel Mode = "INDEL"
	ModeBoth  Mode = "BOTH"
)

// Matches reports whether a call of kind k should be recalibrated under m.
// Calls outside the mode are emitted untouched by the filtering pass.
func (m Mode) Matches(k Kind) bool {
	switch m {
	case ModeSNP:
		return k == KindSNP
	case ModeIndel:
		return k == KindIndel || k == KindMixed
	case ModeBoth:
		return k == KindSNP || k == KindIndel || k == KindMixed
	}
	return false
}

// Call is one record of a coordinate-sorted callset. Calls are never mutated
// in place; annotation produces a copy.
type Call struct {
	Locus   genome.Locus
	ID      string
	Ref     string
	Alts    []string
	Qual    string
	Filters []string
	Info    map[string]string
}

// Kind classifies the call from its ref and alt alleles.
func (c *Call) Kind() Kind {
	if len(c.Alts) == 0 {
		return KindOther
	}
	var snp, indel bool
	for _, alt := range c.Alts {
		switch {
		case alt == "" || strings.HasPrefix(alt, "<"):
			return KindOther
		case len(alt) == len(c.Ref) && len(c.Ref) == 1:
			snp = true
		case len(alt) != len(c.Ref):
			indel = true
		default:
			// Same-length multi-base substitution (MNP).
			return KindOther
		}
	}
	if snp && indel {
		return KindMixed
	}
	if snp {
		return KindSNP
	}
	return KindIndel
}

// NotFiltered reports whether no filter has been applied to the call. A lone
// "." or "PASS" marker counts as unfiltered.
func (c *Call) NotFiltered() bool {
	if len(c.Filters) == 0 {
		return true
	}
	if len(c.Filters) == 1 && (c.Filters[0] == "." || c.Filters[0] == PassFilter) {
		return true
	}
	return false
}

// FilteredOnlyBy reports whether every filter already on the call is in
// allowed. Used to honor the ignore-filter allowance.
func (c *Call) FilteredOnlyBy(allowed map[string]bool) bool {
	if c.NotFiltered() {
		return false
	}
	for _, f := range c.Filters {
		if !allowed[f] {
			return false
		}
	}
	return true
}

// WithInfo returns a copy of the call with key set to value in its INFO map.
func (c *Call) WithInfo(key, value string) *Call {
	out := c.clone()
	out.Info[key] = value
	return out
}

// WithFilter returns a copy of the call whose filter status is exactly name,
// or PASS semantics when name is PassFilter.
func (c *Call) WithFilter(name string) *Call {
	out := c.clone()
	out.Filters = []string{name}
	return out
}

func (c *Call) clone() *Call {
	out := &Call{
		Locus: c.Locus,
		ID:    c.ID,
		Ref:   c.Ref,
		Qual:  c.Qual,
		Alts:  append([]string(nil), c.Alts...),
		Info:  make(map[string]string, len(c.Info)+2),
	}
	if len(c.Filters) > 0 {
		out.Filters = append([]string(nil), c.Filters...)
	}
	for k, v := range c.Info {
		out.Info[k] = v
	}
	return out
}

// InfoKeys returns the call's INFO keys in sorted order, for stable output.
func (c *Call) InfoKeys() []string {
	keys := make([]string, 0, len(c.Info))
	for k := range c.Info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Loc returns the call's locus. Satisfies traverse.Interval.
func (c *Call) Loc() genome.Locus { return c.Locus }
