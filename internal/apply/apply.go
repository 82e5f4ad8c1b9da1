// Package apply implements the recalibration-filtering walker: at each site
// it joins raw calls with their trained quality scores, classifies the score
// against a tranche table, and emits the annotated calls.
package apply

import (
	"github.com/rotisserie/eris"

	"github.com/openvariant/tranchefilter/internal/genome"
	"github.com/openvariant/tranchefilter/internal/tranche"
	"github.com/openvariant/tranchefilter/internal/traverse"
	"github.com/openvariant/tranchefilter/internal/variant"
)

// Auxiliary source names the walker expects on the traversal tracker.
const (
	SourceCalls = "input"
	SourceRecal = "recal"
)

// Sink receives annotated calls in emission order.
type Sink interface {
	Write(*variant.Call) error
}

// Counts is the walker's accumulator. Add is associative and commutative,
// so shard results merge in any grouping.
type Counts struct {
	Sites        int64 `json:"sites"`
	Emitted      int64 `json:"emitted"`
	Recalibrated int64 `json:"recalibrated"`
	Passed       int64 `json:"passed"`
	Filtered     int64 `json:"filtered"`
	Untouched    int64 `json:"untouched"`
}

// Add combines two counts.
func (c Counts) Add(other Counts) Counts {
	return Counts{
		Sites:        c.Sites + other.Sites,
		Emitted:      c.Emitted + other.Emitted,
		Recalibrated: c.Recalibrated + other.Recalibrated,
		Passed:       c.Passed + other.Passed,
		Filtered:     c.Filtered + other.Filtered,
		Untouched:    c.Untouched + other.Untouched,
	}
}

// TreeReduce merges shard accumulators.
func TreeReduce(a, b Counts) Counts { return a.Add(b) }

// Walker holds the per-pass classification state. One Walker serves one
// traversal (or one shard); it is not safe for concurrent use because its
// sink is written in site order.
type Walker struct {
	table         *tranche.Table
	mode          variant.Mode
	ignoreFilters map[string]bool
	sink          Sink
}

// New builds a Walker classifying against table under mode. Calls already
// filtered by a name in ignoreFilters are recalibrated as if unfiltered.
func New(table *tranche.Table, mode variant.Mode, ignoreFilters []string, sink Sink) *Walker {
	ignore := make(map[string]bool, len(ignoreFilters))
	for _, f := range ignoreFilters {
		ignore[f] = true
	}
	return &Walker{table: table, mode: mode, ignoreFilters: ignore, sink: sink}
}

// HeaderLines returns the FILTER header entries describing every filter
// value this walker can write.
func (w *Walker) HeaderLines() []tranche.HeaderLine {
	return w.table.FilterHeaderLines()
}

// Hooks exposes the walker as traversal callbacks.
func (w *Walker) Hooks() traverse.Hooks[Counts, Counts] {
	return traverse.Hooks[Counts, Counts]{
		Zero:   Counts{},
		Map:    w.processSite,
		Reduce: func(m, sum Counts) Counts { return sum.Add(m) },
	}
}

func (w *Walker) processSite(site *traverse.SiteContext) (Counts, error) {
	delta := Counts{Sites: 1}

	calls := callsStartingAt(site.Tracker.Values(SourceCalls), site.Locus)
	recals := recalData(site.Tracker.Values(SourceRecal))

	for _, call := range calls {
		if !w.mode.Matches(call.Kind()) || !(call.NotFiltered() || call.FilteredOnlyBy(w.ignoreFilters)) {
			// Valid call outside this mode (or already hard-filtered):
			// emit untouched so the output remains a complete callset.
			if err := w.sink.Write(call); err != nil {
				return delta, eris.Wrapf(err, "emit %s", call.Locus)
			}
			delta.Emitted++
			delta.Untouched++
			continue
		}

		datum, err := variant.MatchRecal(call, recals)
		if err != nil {
			return delta, err
		}

		annotated := call.
			WithInfo(variant.KeyVQSLOD, datum.ScoreTxt).
			WithInfo(variant.KeyCulprit, datum.Culprit)

		score, err := datum.Score()
		if err != nil {
			// MatchRecal already validated the score text.
			return delta, eris.Wrapf(err, "score at %s", call.Locus)
		}

		decision := w.table.Classify(score)
		if decision.Pass {
			annotated = annotated.WithFilter(variant.PassFilter)
			delta.Passed++
		} else {
			annotated = annotated.WithFilter(decision.Filter)
			delta.Filtered++
		}

		if err := w.sink.Write(annotated); err != nil {
			return delta, eris.Wrapf(err, "emit %s", call.Locus)
		}
		delta.Emitted++
		delta.Recalibrated++
	}

	return delta, nil
}

// callsStartingAt narrows overlapping entries to the calls anchored at the
// site itself, so a spanning call is processed once, at its own start.
func callsStartingAt(entries []traverse.Interval, site genome.Locus) []*variant.Call {
	calls := make([]*variant.Call, 0, len(entries))
	for _, e := range entries {
		if call, ok := e.(*variant.Call); ok && call.Locus.Start == site.Start && call.Locus.Rank == site.Rank {
			calls = append(calls, call)
		}
	}
	return calls
}

func recalData(entries []traverse.Interval) []*variant.RecalDatum {
	data := make([]*variant.RecalDatum, 0, len(entries))
	for _, e := range entries {
		if datum, ok := e.(*variant.RecalDatum); ok {
			data = append(data, datum)
		}
	}
	return data
}
