package tranche

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
)

// ErrNoTranches is returned when no tranche survives retention filtering.
// The pass cannot start without at least one tier to classify against.
var ErrNoTranches = eris.New("no tranches at or above the truth sensitivity filter level")

// Table is the normalized tranche table a pass classifies against.
// Index 0 is the retained tranche closest to the retention level (the most
// exclusive one kept) and the last index is the most permissive tranche.
// Tables are immutable once built.
type Table struct {
	tranches []Tranche
	level    float64
}

// NewTable retains the tranches whose truth sensitivity is at or above level
// and normalizes their order for classification. Input order does not matter.
func NewTable(tranches []Tranche, level float64) (*Table, error) {
	var retained []Tranche
	for _, tr := range tranches {
		if tr.TruthSensitivity >= level {
			retained = append(retained, tr)
		}
	}
	if len(retained) == 0 {
		return nil, eris.Wrapf(ErrNoTranches, "level %.2f", level)
	}

	sort.SliceStable(retained, func(i, j int) bool {
		return retained[i].TruthSensitivity < retained[j].TruthSensitivity
	})

	return &Table{tranches: retained, level: level}, nil
}

// Len returns the number of retained tranches.
func (t *Table) Len() int { return len(t.tranches) }

// Tranches returns the retained tranches in classification order.
func (t *Table) Tranches() []Tranche {
	out := make([]Tranche, len(t.tranches))
	copy(out, t.tranches)
	return out
}

// Level returns the retention level the table was built with.
func (t *Table) Level() float64 { return t.level }

// Lowest returns the tranche at index 0. Scores below every tranche are
// filtered with this tranche's name plus "+".
func (t *Table) Lowest() Tranche { return t.tranches[0] }

// Decision is the outcome of classifying one score.
type Decision struct {
	// Pass is true when the score meets the most permissive tranche.
	Pass bool
	// Filter is the filter name to apply when Pass is false.
	Filter string
}

// Classify maps a score to a Decision. Tranches are scanned from the most
// permissive end (last index) toward index 0 and the first tranche whose
// threshold the score meets wins; meeting the last tranche is a pass. The
// scan direction is load-bearing: changing it changes the outcome for
// borderline scores whenever thresholds are not monotonic across the table,
// so it must not be "corrected" without sign-off. The threshold comparison
// is inclusive.
func (t *Table) Classify(score float64) Decision {
	for i := len(t.tranches) - 1; i >= 0; i-- {
		if score >= t.tranches[i].MinScore {
			if i == len(t.tranches)-1 {
				return Decision{Pass: true}
			}
			return Decision{Filter: t.tranches[i].Name}
		}
	}
	return Decision{Filter: t.tranches[0].Name + "+"}
}

// HeaderLine is one FILTER header entry describing a tranche cut, for the
// output writer.
type HeaderLine struct {
	ID          string
	Description string
}

// FilterHeaderLines describes every filter value Classify can produce, in
// table order, ending with the below-everything "+" filter.
func (t *Table) FilterHeaderLines() []HeaderLine {
	var lines []HeaderLine
	for i, tr := range t.tranches {
		if i == len(t.tranches)-1 {
			break // the most permissive tranche is the PASS cut, not a filter
		}
		lines = append(lines, HeaderLine{
			ID: tr.Name,
			Description: fmt.Sprintf("Truth sensitivity tranche level for %s model at VQS Lod >= %g",
				tr.Mode, tr.MinScore),
		})
	}
	low := t.Lowest()
	lines = append(lines, HeaderLine{
		ID: low.Name + "+",
		Description: fmt.Sprintf("Truth sensitivity tranche level for %s model at VQS Lod < %g",
			low.Mode, low.MinScore),
	})
	return lines
}
